package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chriscow/sous-voice/pkg/timer"
)

// GenericError is shown when the backend fails without saying why.
const GenericError = "Something went wrong."

type payload struct {
	Error     string `json:"error"`
	Expired   bool   `json:"expired"`
	Message   string `json:"message"`
	ModelUsed string `json:"modelUsed"`
	SessionID int64  `json:"sessionId"`

	Disambiguation bool            `json:"disambiguation"`
	Sessions       []SessionOption `json:"sessions"`

	RecipeDisambiguation bool        `json:"recipeDisambiguation"`
	Recipes              []Candidate `json:"recipes"`
	PendingText          string      `json:"pendingText"`

	SessionStarted bool   `json:"sessionStarted"`
	Recipe         string `json:"recipe"`
	FirstStep      string `json:"firstStep"`

	AwaitingEndConfirmation bool `json:"awaitingEndConfirmation"`
	SessionCompleted        bool `json:"sessionCompleted"`

	KitchenQA          bool           `json:"kitchenQA"`
	AwaitingCompletion bool           `json:"awaitingCompletion"`
	SuggestedTimers    []timerPayload `json:"suggestedTimers"`
	StartedTimers      []timerPayload `json:"startedTimers"`
}

type timerPayload struct {
	Label           string `json:"label"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Classify decodes a successful reply into exactly one Response. Markers
// are checked in a fixed order and the first one present wins: error,
// session disambiguation, recipe disambiguation, session started, awaiting
// end confirmation, session completed, and otherwise a normal message.
// originalText is the text the turn carried; a session choice resends it.
func Classify(body []byte, originalText string) (Response, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	base := Reply{SessionID: p.SessionID, ModelUsed: p.ModelUsed}

	switch {
	case p.Error != "":
		base.Display = p.Error
		return ErrorResponse{Reply: base, Expired: p.Expired}, nil

	case p.Disambiguation:
		names := make([]string, 0, len(p.Sessions))
		for _, s := range p.Sessions {
			names = append(names, s.Recipe)
		}
		base.Display = p.Message
		base.Spoken = withOptions(p.Message, names)
		return SessionDisambiguation{Reply: base, Sessions: p.Sessions, OriginalText: originalText}, nil

	case p.RecipeDisambiguation:
		names := make([]string, 0, len(p.Recipes))
		for _, r := range p.Recipes {
			names = append(names, r.Title)
		}
		base.Display = p.Message
		base.Spoken = withOptions(p.Message, names)
		return RecipeDisambiguation{Reply: base, Candidates: p.Recipes, PendingText: p.PendingText}, nil

	case p.SessionStarted:
		text := p.Message
		if text == "" {
			text = p.FirstStep
		}
		if text == "" {
			text = "Starting your recipe."
		}
		base.Display = StripTimerTags(text)
		base.Spoken = base.Display
		return SessionStarted{
			Reply:           base,
			Recipe:          p.Recipe,
			SuggestedTimers: suggestions(p.SuggestedTimers, p.Recipe, p.SessionID),
		}, nil

	case p.AwaitingEndConfirmation:
		base.Display = p.Message
		base.Spoken = StripTimerTags(p.Message)
		return AwaitingEndConfirmation{Reply: base}, nil

	case p.SessionCompleted:
		base.Display = p.Message
		base.Spoken = StripTimerTags(p.Message)
		return SessionCompleted{Reply: base}, nil
	}

	recipe := p.Recipe
	if recipe == "" && p.KitchenQA {
		recipe = "Kitchen Q&A"
	}
	timerRecipe := p.Recipe
	if timerRecipe == "" {
		timerRecipe = "Timer"
	}
	base.Display = StripTimerTags(p.Message)
	base.Spoken = base.Display
	return Normal{
		Reply:              base,
		Recipe:             recipe,
		SuggestedTimers:    suggestions(p.SuggestedTimers, timerRecipe, p.SessionID),
		StartedTimers:      suggestions(p.StartedTimers, timerRecipe, p.SessionID),
		AwaitingCompletion: p.AwaitingCompletion,
	}, nil
}

// withOptions appends the option names to a prompt for reading aloud.
func withOptions(message string, names []string) string {
	spoken := StripTimerTags(message)
	if len(names) == 0 {
		return spoken
	}
	return strings.TrimSpace(spoken + " Your options are: " + strings.Join(names, ", or ") + ".")
}

func suggestions(in []timerPayload, recipe string, sessionID int64) []timer.Suggestion {
	if len(in) == 0 {
		return nil
	}
	out := make([]timer.Suggestion, 0, len(in))
	for _, t := range in {
		out = append(out, timer.Suggestion{
			Label:           t.Label,
			DurationSeconds: t.DurationSeconds,
			Recipe:          recipe,
			SessionID:       sessionID,
		})
	}
	return out
}
