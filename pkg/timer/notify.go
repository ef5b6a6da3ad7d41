package timer

import (
	"github.com/gen2brain/beeep"
)

// Notifier tells the user a timer finished outside of speech.
type Notifier interface {
	TimerDone(t Started) error
}

// DesktopNotifier raises a desktop notification.
type DesktopNotifier struct {
	AppName string
}

// TimerDone shows the completion message, titled with the recipe when known.
func (n DesktopNotifier) TimerDone(t Started) error {
	title := n.AppName
	if title == "" {
		title = "Sous"
	}
	if t.Recipe != "" {
		title += ": " + t.Recipe
	}
	return beeep.Notify(title, DoneMessage(t), "")
}
