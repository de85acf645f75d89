package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Listen reads newline-terminated commands from r and passes each one to
// handle, until r reaches EOF or ctx is done. Lines that do not parse go to
// onErr when it is non-nil.
func Listen(ctx context.Context, r io.Reader, handle func(Command), onErr func(line string, err error)) error {
	lines := make(chan string)
	done := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
		done <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case line := <-lines:
			cmd, err := Parse(line)
			if err != nil {
				if onErr != nil {
					onErr(line, err)
				}
				continue
			}
			handle(cmd)
		}
	}
}

// Mailbox holds the most recent command until the control task takes it.
// Older commands that were never taken are dropped.
type Mailbox struct {
	ch chan Command
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan Command, 1)}
}

// Post replaces any pending command. Safe to call from any goroutine.
func (m *Mailbox) Post(c Command) {
	for {
		select {
		case m.ch <- c:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// Take returns the pending command, if any.
func (m *Mailbox) Take() (Command, bool) {
	select {
	case c := <-m.ch:
		return c, true
	default:
		return Command{}, false
	}
}

// Send writes one command line to w.
func Send(w io.Writer, c Command) error {
	_, err := fmt.Fprintf(w, "%s\n", c)
	return err
}
