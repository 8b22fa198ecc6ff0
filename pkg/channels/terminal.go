package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
	"github.com/sipeed/picochat/pkg/widget"
)

const (
	inputLabel      = " > "
	inputLabelBusy  = " … "
	logoutLabel     = "Logout"
	updateQueueSize = 64
)

// TerminalChannel is the full-screen front end. The widget drives it from its
// own goroutines; every screen change is funnelled through a single ordered
// queue into the tview event loop.
type TerminalChannel struct {
	*BaseChannel
	widget *widget.Widget
	app    *tview.Application
	ctx    context.Context

	root       *tview.Flex
	header     *tview.Flex
	title      *tview.TextView
	logoutBtn  *tview.Button
	transcript *tview.TextView
	typing     *tview.TextView
	input      *tview.InputField

	updates  chan func()
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the event loop.
	log           transcript
	submitEnabled bool
	logoutVisible bool
}

func NewTerminalChannel(cfg *config.Config, backend widget.Backend) *TerminalChannel {
	c := &TerminalChannel{
		BaseChannel:   NewBaseChannel("terminal", cfg.UI),
		app:           tview.NewApplication(),
		updates:       make(chan func(), updateQueueSize),
		done:          make(chan struct{}),
		submitEnabled: true,
		log:           transcript{welcome: cfg.UI.Welcome, showWelcome: true, botName: cfg.UI.Title},
	}
	c.widget = widget.New(backend, c, c.widgetOptions()...)
	c.buildUI(cfg.UI.Title)
	return c
}

// SetScreen replaces the tcell screen, mainly for simulation screens.
func (c *TerminalChannel) SetScreen(screen tcell.Screen) {
	c.app.SetScreen(screen)
}

func (c *TerminalChannel) buildUI(title string) {
	c.title = tview.NewTextView()
	c.title.SetDynamicColors(true)
	c.title.SetText(fmt.Sprintf(" [::b]%s[::-]", tview.Escape(title)))

	c.logoutBtn = tview.NewButton(logoutLabel)
	c.logoutBtn.SetSelectedFunc(c.requestLogout)

	c.header = tview.NewFlex()
	c.header.SetDirection(tview.FlexColumn)
	c.header.AddItem(c.title, 0, 1, false)

	c.transcript = tview.NewTextView()
	c.transcript.SetDynamicColors(true)
	c.transcript.SetScrollable(true)
	c.transcript.SetWordWrap(true)
	c.transcript.SetBorder(true)
	c.transcript.SetText(c.log.text())

	c.typing = tview.NewTextView()
	c.typing.SetDynamicColors(true)

	c.input = tview.NewInputField()
	c.input.SetLabel(inputLabel)
	c.input.SetPlaceholder("Type your message...")
	c.input.SetFieldBackgroundColor(tcell.ColorBlack)
	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || !c.submitEnabled {
			return
		}
		text := c.input.GetText()
		go c.widget.Submit(c.ctx, text)
	})

	c.root = tview.NewFlex()
	c.root.SetDirection(tview.FlexRow)
	c.root.AddItem(c.header, 1, 0, false)
	c.root.AddItem(c.transcript, 0, 1, false)
	c.root.AddItem(c.typing, 1, 0, false)
	c.root.AddItem(c.input, 1, 0, true)

	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlL:
			if c.logoutVisible {
				c.requestLogout()
			}
			return nil
		case tcell.KeyCtrlY:
			go c.copyLastReply()
			return nil
		case tcell.KeyCtrlC:
			c.app.Stop()
			return nil
		}
		return event
	})
	c.app.EnableMouse(true)
	c.app.SetRoot(c.root, true).SetFocus(c.input)
}

// Run shows the interface and blocks until the user quits or ctx is done.
func (c *TerminalChannel) Run(ctx context.Context) error {
	c.ctx = ctx
	c.setRunning(true)
	defer c.setRunning(false)

	go c.pump()
	go func() {
		select {
		case <-ctx.Done():
			c.app.Stop()
		case <-c.done:
		}
	}()

	logger.InfoCF("channels", "Terminal channel started", map[string]interface{}{
		"title": c.log.botName,
	})

	err := c.app.Run()
	c.stopOnce.Do(func() { close(c.done) })
	c.widget.Close()

	logger.InfoC("channels", "Terminal channel stopped")
	if err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

// pump forwards queued updates to the event loop in order.
func (c *TerminalChannel) pump() {
	for {
		select {
		case f := <-c.updates:
			c.app.QueueUpdateDraw(f)
		case <-c.done:
			return
		}
	}
}

// queue schedules f on the event loop. Once the interface has stopped the
// update is dropped.
func (c *TerminalChannel) queue(f func()) {
	select {
	case c.updates <- f:
	case <-c.done:
	}
}

func (c *TerminalChannel) requestLogout() {
	go c.widget.Logout(c.ctx)
}

func (c *TerminalChannel) copyLastReply() {
	reply := c.widget.LastReply()
	if reply == "" {
		return
	}
	if err := clipboard.WriteAll(reply); err != nil {
		logger.WarnCF("channels", "Copy to clipboard failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	logger.DebugC("channels", "Last reply copied to clipboard")
}

func (c *TerminalChannel) redraw() {
	c.transcript.SetText(c.log.text())
	c.transcript.ScrollToEnd()
}

func (c *TerminalChannel) Append(e widget.Entry) {
	c.queue(func() {
		c.log.append(e)
		c.redraw()
	})
}

func (c *TerminalChannel) ShowTyping() {
	c.queue(func() {
		c.typing.SetText(fmt.Sprintf(" [gray::i]%s is typing...[-::-]", tview.Escape(c.log.botName)))
	})
}

func (c *TerminalChannel) HideTyping() {
	c.queue(func() { c.typing.SetText("") })
}

func (c *TerminalChannel) RemoveWelcome() {
	c.queue(func() {
		c.log.showWelcome = false
		c.redraw()
	})
}

func (c *TerminalChannel) ResetTranscript() {
	c.queue(func() {
		c.log.reset()
		c.redraw()
	})
}

func (c *TerminalChannel) SetInputMasked(masked bool) {
	c.queue(func() {
		if masked {
			c.input.SetMaskCharacter('*')
			c.input.SetPlaceholder("Password")
		} else {
			c.input.SetMaskCharacter(0)
			c.input.SetPlaceholder("Type your message...")
		}
	})
}

func (c *TerminalChannel) ClearInput() {
	c.queue(func() { c.input.SetText("") })
}

func (c *TerminalChannel) FocusInput() {
	c.queue(func() { c.app.SetFocus(c.input) })
}

func (c *TerminalChannel) SetSubmitEnabled(enabled bool) {
	c.queue(func() {
		c.submitEnabled = enabled
		if enabled {
			c.input.SetLabel(inputLabel)
		} else {
			c.input.SetLabel(inputLabelBusy)
		}
	})
}

func (c *TerminalChannel) SetLogoutVisible(visible bool) {
	c.queue(func() {
		if visible == c.logoutVisible {
			return
		}
		c.logoutVisible = visible
		if visible {
			c.header.AddItem(c.logoutBtn, len(logoutLabel)+4, 0, false)
		} else {
			c.header.RemoveItem(c.logoutBtn)
		}
	})
}

// transcript is the rendered conversation: an optional welcome banner followed
// by one formatted block per entry.
type transcript struct {
	welcome     string
	showWelcome bool
	botName     string
	lines       []string
}

func (t *transcript) append(e widget.Entry) {
	t.lines = append(t.lines, formatEntry(e, t.botName))
}

func (t *transcript) reset() {
	t.lines = nil
	t.showWelcome = true
}

func (t *transcript) text() string {
	var sb strings.Builder
	if t.showWelcome && t.welcome != "" {
		sb.WriteString("[gray::i]")
		sb.WriteString(tview.Escape(t.welcome))
		sb.WriteString("[-::-]\n\n")
	}
	for _, line := range t.lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatEntry renders an entry with tview color tags. Entry text is escaped so
// brackets in replies are never read as tags.
func formatEntry(e widget.Entry, botName string) string {
	name, color := "You", "green"
	if e.Sender == widget.SenderBot {
		name, color = botName, "aqua"
		if name == "" {
			name = "Bot"
		}
	}
	return fmt.Sprintf("[gray]%s[-] [%s::b]%s:[-::-] %s",
		e.Timestamp, color, tview.Escape(name), tview.Escape(e.Text))
}
