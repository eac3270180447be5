// Package tray shows the connection status in the system tray.
package tray

import (
	"fmt"

	"github.com/getlantern/systray"

	"inputshare/internal/session"
)

// Tray is the systray status indicator: one read-only status line plus
// Disconnect and Quit items.
type Tray struct {
	name    string
	updates chan session.Status

	// OnDisconnect and OnQuit are invoked from the tray loop.
	OnDisconnect func()
	OnQuit       func()
}

// New creates a tray for the given peer name.
func New(name string) *Tray {
	return &Tray{
		name:    name,
		updates: make(chan session.Status, 16),
	}
}

// StatusChanged implements session.Observer: the update hops onto the
// tray loop via a buffered channel so the session queue never blocks.
func (t *Tray) StatusChanged(st session.Status, reason string) {
	select {
	case t.updates <- st:
	default:
	}
}

// Run enters the systray loop. Blocks until Quit; call from the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit leaves the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("InputShare")
	systray.SetTooltip(fmt.Sprintf("InputShare — %s", t.name))

	statusItem := systray.AddMenuItem("Status: disconnected", "Connection state")
	statusItem.Disable()
	systray.AddSeparator()
	disconnectItem := systray.AddMenuItem("Disconnect", "Drop the current session")
	quitItem := systray.AddMenuItem("Quit", "Exit InputShare")

	go func() {
		for {
			select {
			case st := <-t.updates:
				statusItem.SetTitle(fmt.Sprintf("Status: %s", st))
			case <-disconnectItem.ClickedCh:
				if t.OnDisconnect != nil {
					t.OnDisconnect()
				}
			case <-quitItem.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	if t.OnQuit != nil {
		t.OnQuit()
	}
}
