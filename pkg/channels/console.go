package channels

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/widget"
)

const (
	commandLogout = "/logout"
	commandQuit   = "/quit"
)

// lineReader is the input side of the console: a raw-mode terminal when
// stdin is a TTY, a plain line scanner otherwise.
type lineReader interface {
	ReadLine(masked bool) (string, error)
}

// ConsoleChannel is a line-mode front end for plain terminals and pipes.
type ConsoleChannel struct {
	*BaseChannel
	widget *widget.Widget
	in     io.Reader
	out    io.Writer

	mu            sync.Mutex
	masked        bool
	logoutVisible bool
}

func NewConsoleChannel(cfg *config.Config, backend widget.Backend, in io.Reader, out io.Writer) *ConsoleChannel {
	c := &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", cfg.UI),
		in:          in,
		out:         out,
	}
	c.widget = widget.New(backend, c, c.widgetOptions()...)
	return c
}

type readResult struct {
	line string
	err  error
}

// Run reads lines until /quit, end of input or ctx is cancelled.
func (c *ConsoleChannel) Run(ctx context.Context) error {
	reader, restore, err := c.openReader()
	if err != nil {
		return err
	}
	defer restore()

	c.setRunning(true)
	defer c.setRunning(false)
	defer c.widget.Close()

	logger.InfoC("channels", "Console channel started")
	c.printWelcome()

	lines := make(chan readResult)
	next := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			line, err := reader.ReadLine(c.isMasked())
			select {
			case lines <- readResult{line: line, err: err}:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
			select {
			case <-next:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var res readResult
		select {
		case <-ctx.Done():
			return nil
		case res = <-lines:
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				logger.InfoC("channels", "Console input closed")
				return nil
			}
			return fmt.Errorf("reading input: %w", res.err)
		}

		if !c.handle(ctx, res.line) {
			return nil
		}
		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle processes one input line. It reports false when the user quits.
func (c *ConsoleChannel) handle(ctx context.Context, line string) bool {
	masked := c.isMasked()
	if !masked {
		switch strings.TrimSpace(line) {
		case commandQuit:
			return false
		case commandLogout:
			c.widget.Logout(ctx)
			return true
		}
	}
	if strings.TrimSpace(line) == "" {
		return true
	}
	if !c.widget.Submit(ctx, line) {
		c.printf("(please wait, the assistant is busy)\n")
	}
	return true
}

func (c *ConsoleChannel) openReader() (lineReader, func(), error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("entering raw mode: %w", err)
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{c.in, c.out}, "> ")
		c.mu.Lock()
		c.out = t
		c.mu.Unlock()
		restore := func() {
			if err := term.Restore(fd, state); err != nil {
				logger.WarnCF("channels", "Failed to restore terminal", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		return &ttyReader{t: t}, restore, nil
	}
	return &scanReader{s: bufio.NewScanner(c.in)}, func() {}, nil
}

type ttyReader struct {
	t *term.Terminal
}

func (r *ttyReader) ReadLine(masked bool) (string, error) {
	if masked {
		return r.t.ReadPassword("password: ")
	}
	return r.t.ReadLine()
}

type scanReader struct {
	s *bufio.Scanner
}

func (r *scanReader) ReadLine(bool) (string, error) {
	if r.s.Scan() {
		return r.s.Text(), nil
	}
	if err := r.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (c *ConsoleChannel) isMasked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masked
}

func (c *ConsoleChannel) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *ConsoleChannel) printWelcome() {
	if welcome := c.Welcome(); welcome != "" {
		c.printf("%s\n\n", welcome)
	}
	c.printf("Commands: %s, %s\n", commandLogout, commandQuit)
}

func (c *ConsoleChannel) Append(e widget.Entry) {
	name := "you"
	if e.Sender == widget.SenderBot {
		name = "bot"
	}
	c.printf("%s %s: %s\n", e.Timestamp, name, e.Text)
}

// Line mode has no typing placeholder.
func (c *ConsoleChannel) ShowTyping() {}

func (c *ConsoleChannel) HideTyping() {}

// RemoveWelcome is a no-op: printed lines cannot be taken back.
func (c *ConsoleChannel) RemoveWelcome() {}

func (c *ConsoleChannel) ResetTranscript() {
	c.printf("\n--- session ended ---\n\n")
	c.printWelcome()
}

func (c *ConsoleChannel) SetInputMasked(masked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masked = masked
}

func (c *ConsoleChannel) ClearInput() {}

func (c *ConsoleChannel) FocusInput() {}

func (c *ConsoleChannel) SetSubmitEnabled(bool) {}

func (c *ConsoleChannel) SetLogoutVisible(visible bool) {
	c.mu.Lock()
	changed := visible != c.logoutVisible
	c.logoutVisible = visible
	c.mu.Unlock()
	if changed && visible {
		c.printf("(signed in, type %s to end the session)\n", commandLogout)
	}
}
