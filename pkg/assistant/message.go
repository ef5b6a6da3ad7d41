package assistant

import (
	"time"

	"github.com/chriscow/sous-voice/pkg/conversation"
	"github.com/chriscow/sous-voice/pkg/timer"
)

// Role says who a transcript message is from.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the transcript, with whatever prompts came with
// it. Prompts are cleared as the user answers them.
type Message struct {
	ID        int
	Role      Role
	Text      string
	At        time.Time
	ModelUsed string
	Recipe    string
	SessionID int64

	Sessions     []conversation.SessionOption // session choice chips
	OriginalText string                       // resent to the chosen session
	Candidates   []conversation.Candidate     // recipe choice chips
	Suggestions  []timer.Suggestion           // timers awaiting accept or dismiss

	AwaitingEndConfirmation bool
	AwaitingCompletion      bool
}

// Welcome is the first line of every transcript.
const Welcome = "Welcome back! What are we cooking today?"
