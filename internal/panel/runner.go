package panel

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Drain runs cmd and every task it leads to, feeding results back through
// e.Update, until nothing is in flight. Tasks run concurrently; their
// results are applied one at a time on the calling goroutine.
func Drain(ctx context.Context, e *Engine, cmd tea.Cmd) error {
	msgs := make(chan tea.Msg)
	inflight := 0

	spawn := func(c tea.Cmd) {
		if c == nil {
			return
		}
		inflight++
		go func() {
			msg := c()
			select {
			case msgs <- msg:
			case <-ctx.Done():
			}
		}()
	}

	spawn(cmd)
	for inflight > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			inflight--
			switch msg := msg.(type) {
			case nil:
			case tea.BatchMsg:
				for _, c := range msg {
					spawn(c)
				}
			default:
				spawn(e.Update(msg))
			}
		}
	}
	return nil
}
