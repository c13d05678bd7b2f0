package tui

import (
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/pkg/browser"

	"github.com/kiva-corp/localrun/internal/session"
)

// sessionEventMsg wraps one Session event for the Bubble Tea update loop.
type sessionEventMsg session.Event

// tickMsg fires every second to drive any time-based redraws.
type tickMsg time.Time

// listenForEvents returns a command that blocks on the session's event channel and
// forwards the next event into the Bubble Tea runtime.
func listenForEvents(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.Events
		if !ok {
			return nil
		}
		return sessionEventMsg(ev)
	}
}

// tickEvery returns a command that sends a tickMsg every second.
func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// openBrowserMsg is sent after attempting to open a URL in the browser.
type openBrowserMsg struct {
	err error
}

// openBrowser returns a command that opens the given URL in the default browser.
func openBrowser(url string) tea.Cmd {
	return func() tea.Msg {
		return openBrowserMsg{err: browser.OpenURL(url)}
	}
}
