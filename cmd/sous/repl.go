package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/sous-voice/pkg/assistant"
	"github.com/chriscow/sous-voice/pkg/timer"
	"github.com/chriscow/sous-voice/pkg/voice"
)

const replHelp = `commands:
  /mic              turn the microphone on or off
  /status           show the microphone state
  /pick <n>         answer the last session or recipe question
  /accept [label]   start a suggested timer
  /dismiss [label]  drop a suggested timer
  /yes, /no         answer an end-of-session question
  /timers           show running timers
  /done <n>         dismiss timer n
  /sessions         reload and show active sessions
  /end <id>         end a session
  /quit             exit
anything else is sent as a typed message`

// repl prints the transcript and turns typed lines into assistant calls.
type repl struct {
	mu  sync.Mutex
	out io.Writer

	// the most recent message carrying each kind of prompt
	choice  assistant.Message
	timers  assistant.Message
	confirm assistant.Message
}

func newREPL(out io.Writer) *repl {
	return &repl{out: out}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) message(m assistant.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(m.Sessions) > 0 || len(m.Candidates) > 0 {
		r.choice = m
	}
	if len(m.Suggestions) > 0 {
		r.timers = m
	}
	if m.AwaitingEndConfirmation {
		r.confirm = m
	}
	printMessage(r.out, m)
}

func (r *repl) state(s voice.MicState) {
	r.printf("   [mic %s]\n", s)
}

func (r *repl) run(ctx context.Context, in io.Reader, asst *assistant.Assistant, ctrl *voice.Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.handle(ctx, strings.TrimSpace(line), asst, ctrl); quit {
				return nil
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string, asst *assistant.Assistant, ctrl *voice.Controller) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		asst.SendTyped(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	r.mu.Lock()
	choice, suggested, confirm := r.choice, r.timers, r.confirm
	r.mu.Unlock()

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s\n", replHelp)
	case "/mic":
		ctrl.Toggle(ctx)
	case "/status":
		r.printf("%s\n", micStatus(ctrl.State(), ctrl.StateSince(), time.Now()))
	case "/pick":
		n, err := strconv.Atoi(arg)
		switch {
		case err != nil || n < 1:
			r.printf("-- usage: /pick <n>\n")
		case n <= len(choice.Sessions):
			asst.SelectSession(ctx, choice.Sessions[n-1].SessionID, choice.OriginalText)
		case n <= len(choice.Candidates):
			asst.SelectRecipe(ctx, choice.Candidates[n-1].RecipeID)
		default:
			r.printf("-- nothing to pick\n")
		}
	case "/accept", "/dismiss":
		label := arg
		if label == "" && len(suggested.Suggestions) > 0 {
			label = suggested.Suggestions[0].Label
		}
		var ok bool
		if cmd == "/accept" {
			_, ok = asst.AcceptTimer(ctx, suggested.ID, label)
		} else {
			ok = asst.DismissSuggestion(suggested.ID, label)
		}
		if !ok {
			r.printf("-- no suggested timer %q\n", label)
		}
	case "/yes":
		if !confirm.AwaitingEndConfirmation {
			r.printf("-- nothing to confirm\n")
			break
		}
		r.clearConfirm()
		asst.ConfirmEnd(ctx, confirm.ID, confirm.SessionID)
	case "/no":
		if confirm.AwaitingEndConfirmation {
			r.clearConfirm()
			asst.DismissEndConfirmation(confirm.ID)
			r.printf("-- ok, keep cooking\n")
		}
	case "/timers":
		r.printTimers(asst.Timers(), time.Now())
	case "/done":
		timers := asst.Timers()
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(timers) {
			r.printf("-- usage: /done <n>\n")
			break
		}
		asst.DismissTimer(ctx, timers[n-1].ID)
	case "/sessions":
		if err := asst.RefreshSessions(ctx); err != nil {
			r.printf("-- %v\n", err)
			break
		}
		for _, s := range asst.Sessions() {
			r.printf("   #%d %s (step %d/%d)\n", s.SessionID, s.Recipe, s.CurrentStep, s.TotalSteps)
		}
	case "/end":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			r.printf("-- usage: /end <sessionId>\n")
			break
		}
		if err := asst.EndSession(ctx, id); err != nil {
			r.printf("-- %v\n", err)
		}
	default:
		r.printf("-- unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (r *repl) clearConfirm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirm = assistant.Message{}
}

func (r *repl) printTimers(timers []timer.Started, now time.Time) {
	if len(timers) == 0 {
		r.printf("   no timers\n")
		return
	}
	for i, t := range timers {
		r.printf("   %d. ⏲ %-24s %8s  %s\n", i+1, t.Label, timer.FormatClock(t.Remaining(now)), t.Recipe)
	}
}

// micStatus describes the mic state and how long it has held.
func micStatus(state voice.MicState, since, now time.Time) string {
	return fmt.Sprintf("   [mic %s for %s]", state, now.Sub(since).Round(time.Second))
}

func printMessage(w io.Writer, m assistant.Message) {
	prefix := "sous>"
	switch m.Role {
	case assistant.RoleUser:
		prefix = "you>"
	case assistant.RoleSystem:
		prefix = "--"
	}
	if m.Recipe != "" {
		prefix += " [" + m.Recipe + "]"
	}
	fmt.Fprintf(w, "%s %s\n", prefix, m.Text)

	for i, s := range m.Sessions {
		fmt.Fprintf(w, "   %d. %s (step %d/%d)\n", i+1, s.Recipe, s.CurrentStep, s.TotalSteps)
	}
	for i, c := range m.Candidates {
		fmt.Fprintf(w, "   %d. %s\n", i+1, c.Title)
	}
	for _, s := range m.Suggestions {
		fmt.Fprintf(w, "   ⏲ %s for %s? /accept %s\n", s.Label, timer.SpokenDuration(s.DurationSeconds), s.Label)
	}
	if m.AwaitingEndConfirmation {
		fmt.Fprintf(w, "   end this session? /yes or /no\n")
	}
	if m.AwaitingCompletion {
		fmt.Fprintf(w, "   say \"done\" when you have finished this step\n")
	}
}
