package channels

import (
	"context"
	"sync/atomic"

	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/widget"
)

// Channel is a front end that renders a widget and feeds it user input.
type Channel interface {
	Name() string
	// Run blocks until the user quits, input ends or ctx is cancelled.
	Run(ctx context.Context) error
	IsRunning() bool
}

type BaseChannel struct {
	name    string
	ui      config.UIConfig
	running atomic.Bool
}

func NewBaseChannel(name string, ui config.UIConfig) *BaseChannel {
	return &BaseChannel{name: name, ui: ui}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// Welcome returns the banner shown at the top of a fresh transcript.
func (c *BaseChannel) Welcome() string {
	return c.ui.Welcome
}

// widgetOptions maps the UI section of the config onto widget options.
func (c *BaseChannel) widgetOptions() []widget.Option {
	return []widget.Option{
		widget.WithReplyDelay(c.ui.ReplyDelay.Std()),
		widget.WithLogoutDelay(c.ui.LogoutDelay.Std()),
		widget.WithMask(c.ui.Mask),
		widget.WithApology(c.ui.Apology),
		widget.WithTimeFormat(c.ui.TimeFormat),
	}
}
