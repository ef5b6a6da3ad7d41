// Package conversation sends user turns to the cooking backend and turns
// its replies into one of seven response shapes. It also holds the pending
// recipe choice that a user's next free-text message may resolve.
package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chriscow/sous-voice/pkg/timer"
)

// Turn is one user action sent to the backend.
type Turn struct {
	Text             string
	SessionID        int64 // route to this session, skipping session disambiguation
	ResolvedRecipeID int64 // the recipe the user picked for an ambiguous request
	ConfirmEnd       bool
}

// Kind discriminates the Response variants.
type Kind int

const (
	KindError Kind = iota
	KindSessionDisambiguation
	KindRecipeDisambiguation
	KindSessionStarted
	KindAwaitingEndConfirmation
	KindSessionCompleted
	KindNormal
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindSessionDisambiguation:
		return "session_disambiguation"
	case KindRecipeDisambiguation:
		return "recipe_disambiguation"
	case KindSessionStarted:
		return "session_started"
	case KindAwaitingEndConfirmation:
		return "awaiting_end_confirmation"
	case KindSessionCompleted:
		return "session_completed"
	case KindNormal:
		return "normal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reply is what every response carries.
type Reply struct {
	Display   string
	Spoken    string // empty means nothing to say
	SessionID int64
	ModelUsed string
}

// Response is a classified backend reply. The set of implementations is
// closed; switch on the concrete type or on Kind.
type Response interface {
	Kind() Kind
	Base() Reply
	isResponse()
}

// ErrorResponse is a failed turn. It is shown as a system message and never
// spoken.
type ErrorResponse struct {
	Reply
	Expired     bool // the backend says the session is gone
	Unreachable bool // no reply at all
	StatusCode  int  // zero unless the backend answered with a non-2xx status
}

// SessionOption is one of the sessions a message could have been meant for.
type SessionOption struct {
	SessionID   int64  `json:"sessionId"`
	Recipe      string `json:"recipe"`
	CurrentStep int    `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
}

// SessionDisambiguation asks which active session a message was for.
// Choosing one resends OriginalText to that session.
type SessionDisambiguation struct {
	Reply
	Sessions     []SessionOption
	OriginalText string
}

// Candidate is a recipe an ambiguous request could mean.
type Candidate struct {
	RecipeID int64  `json:"recipeId"`
	Title    string `json:"title"`
	Steps    int    `json:"steps"`
}

// RecipeDisambiguation asks which recipe to start. Choosing one resends
// PendingText with the recipe id.
type RecipeDisambiguation struct {
	Reply
	Candidates  []Candidate
	PendingText string
}

// SessionStarted opens a cooking session.
type SessionStarted struct {
	Reply
	Recipe          string
	SuggestedTimers []timer.Suggestion
}

// AwaitingEndConfirmation asks the user to confirm ending SessionID.
type AwaitingEndConfirmation struct {
	Reply
}

// SessionCompleted reports that a session ended.
type SessionCompleted struct {
	Reply
}

// Normal is an ordinary assistant message, possibly with timers.
type Normal struct {
	Reply
	Recipe             string // "Kitchen Q&A" for general questions outside a session
	SuggestedTimers    []timer.Suggestion
	StartedTimers      []timer.Suggestion
	AwaitingCompletion bool
}

func (ErrorResponse) Kind() Kind           { return KindError }
func (SessionDisambiguation) Kind() Kind   { return KindSessionDisambiguation }
func (RecipeDisambiguation) Kind() Kind    { return KindRecipeDisambiguation }
func (SessionStarted) Kind() Kind          { return KindSessionStarted }
func (AwaitingEndConfirmation) Kind() Kind { return KindAwaitingEndConfirmation }
func (SessionCompleted) Kind() Kind        { return KindSessionCompleted }
func (Normal) Kind() Kind                  { return KindNormal }

func (r Reply) Base() Reply { return r }

func (ErrorResponse) isResponse()           {}
func (SessionDisambiguation) isResponse()   {}
func (RecipeDisambiguation) isResponse()    {}
func (SessionStarted) isResponse()          {}
func (AwaitingEndConfirmation) isResponse() {}
func (SessionCompleted) isResponse()        {}
func (Normal) isResponse()                  {}

var (
	timerTagRE   = regexp.MustCompile(`\[\s*TIMER(?:_START)?:\d+:[^\]]+?\s*\]`)
	multiSpaceRE = regexp.MustCompile(`\s{2,}`)
)

// StripTimerTags removes inline [TIMER:secs:label] and
// [TIMER_START:secs:label] markup and collapses the whitespace it leaves.
func StripTimerTags(text string) string {
	text = timerTagRE.ReplaceAllString(text, "")
	text = multiSpaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
