package widget

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/picochat/pkg/chatapi"
	"github.com/sipeed/picochat/pkg/logger"
)

// Backend is the pair of endpoints the widget talks to.
type Backend interface {
	Chat(ctx context.Context, message string) (chatapi.Response, error)
	Logout(ctx context.Context) error
}

const (
	DefaultReplyDelay  = 500 * time.Millisecond
	DefaultLogoutDelay = 3 * time.Second
	DefaultMask        = "********"
	DefaultApology     = "Sorry, something went wrong. Please try again."
	DefaultTimeFormat  = "15:04"
)

type options struct {
	clock       Clock
	replyDelay  time.Duration
	logoutDelay time.Duration
	mask        string
	apology     string
	timeFormat  string
}

type Option func(*options)

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithReplyDelay sets the pause between a reply arriving and it being shown.
func WithReplyDelay(d time.Duration) Option {
	return func(o *options) { o.replyDelay = d }
}

// WithLogoutDelay sets how long a logout reply stays on screen before the
// session is reset.
func WithLogoutDelay(d time.Duration) Option {
	return func(o *options) { o.logoutDelay = d }
}

func WithMask(mask string) Option {
	return func(o *options) {
		if mask != "" {
			o.mask = mask
		}
	}
}

func WithApology(text string) Option {
	return func(o *options) {
		if text != "" {
			o.apology = text
		}
	}
}

func WithTimeFormat(layout string) Option {
	return func(o *options) {
		if layout != "" {
			o.timeFormat = layout
		}
	}
}

// Widget runs the conversation flow: it turns submitted text into backend
// turns, renders both sides into the View and advances the flow state from
// the kind of each reply. At most one turn is in flight at a time.
type Widget struct {
	backend Backend
	view    View
	opts    options

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	phase       Phase
	inFlight    bool
	generation  uint64
	logouts     int
	lastReply   string
	logoutTimer Timer
	closed      bool
}

func New(backend Backend, view View, opts ...Option) *Widget {
	o := options{
		clock:       RealClock(),
		replyDelay:  DefaultReplyDelay,
		logoutDelay: DefaultLogoutDelay,
		mask:        DefaultMask,
		apology:     DefaultApology,
		timeFormat:  DefaultTimeFormat,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Widget{
		backend: backend,
		view:    view,
		opts:    o,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns a snapshot of the current flow state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{Phase: w.phase, InFlight: w.inFlight}
}

// LastReply returns the text of the most recent bot reply in this session.
func (w *Widget) LastReply() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReply
}

// Submit runs one turn and blocks until it is complete. Empty input, a turn
// already in flight, or a closed widget make it a no-op that returns false.
func (w *Widget) Submit(ctx context.Context, raw string) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}

	w.mu.Lock()
	if w.inFlight || w.closed {
		w.mu.Unlock()
		return false
	}
	passwordTurn := w.phase == PhaseAwaitingPassword
	gen := w.generation

	display := text
	if passwordTurn {
		display = w.opts.mask
	}
	w.render(display, SenderUser)
	w.view.ClearInput()
	if passwordTurn {
		// Masking covers a single turn only.
		w.phase = PhaseAnonymous
		w.view.SetInputMasked(false)
	}
	w.view.ShowTyping()
	w.inFlight = true
	w.view.SetSubmitEnabled(false)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()
	w.mu.Unlock()

	resp, err := w.backend.Chat(turnCtx, text)
	if err != nil {
		w.failTurn(gen, err, passwordTurn)
		return true
	}

	w.mu.Lock()
	if gen != w.generation {
		w.mu.Unlock()
		w.discard(resp)
		return true
	}
	w.view.HideTyping()
	w.mu.Unlock()

	if err := w.opts.clock.Sleep(turnCtx, w.opts.replyDelay); err != nil {
		w.mu.Lock()
		if gen == w.generation {
			w.inFlight = false
			w.view.SetSubmitEnabled(true)
		}
		w.mu.Unlock()
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		w.discard(resp)
		return true
	}

	w.render(normalizeBreaks(resp.Reply), SenderBot)
	w.lastReply = resp.Reply

	logger.DebugCF("widget", "Turn completed", map[string]interface{}{
		"kind":          resp.Kind.String(),
		"phase":         w.phase.String(),
		"password_turn": passwordTurn,
	})

	if w.apply(resp.Kind) {
		return true
	}

	w.inFlight = false
	w.view.SetSubmitEnabled(true)
	w.view.FocusInput()
	return true
}

// apply advances the phase for a reply kind. It reports true when the turn
// hands over to the deferred logout and must stay in flight.
func (w *Widget) apply(kind chatapi.Kind) bool {
	switch kind {
	case chatapi.KindSuccess:
		w.phase = PhaseAuthenticated
		w.view.SetLogoutVisible(true)
		w.view.RemoveWelcome()
	case chatapi.KindAuthentication:
		w.phase = PhaseAwaitingPassword
		w.view.SetInputMasked(true)
	case chatapi.KindLogout:
		w.phase = PhaseLoggingOut
		w.view.SetInputMasked(false)
		w.stopLogoutTimer()
		w.logoutTimer = w.opts.clock.AfterFunc(w.opts.logoutDelay, func() {
			w.Logout(w.ctx)
		})
		return true
	case chatapi.KindError:
		if w.phase == PhaseAwaitingPassword {
			w.phase = PhaseAnonymous
			w.view.SetInputMasked(false)
		}
	}
	return false
}

func (w *Widget) failTurn(gen uint64, err error, passwordTurn bool) {
	logger.WarnCF("widget", "Chat request failed", map[string]interface{}{
		"error":         err.Error(),
		"password_turn": passwordTurn,
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		return
	}
	w.view.HideTyping()
	w.render(w.opts.apology, SenderBot)
	w.inFlight = false
	w.view.SetSubmitEnabled(true)
}

func (w *Widget) discard(resp chatapi.Response) {
	logger.DebugCF("widget", "Dropping reply from a reset session", map[string]interface{}{
		"kind": resp.Kind.String(),
	})
}

// Logout ends the session. The backend is notified first; a failed
// notification is logged and the local reset happens regardless. Calling it
// repeatedly leaves the same state as calling it once. A turn still in flight
// runs to completion but its reply is dropped.
func (w *Widget) Logout(ctx context.Context) {
	w.mu.Lock()
	w.stopLogoutTimer()
	w.generation++
	// Hold off new turns until every pending logout has reset.
	w.logouts++
	w.inFlight = true
	w.view.SetSubmitEnabled(false)
	w.mu.Unlock()

	if err := w.backend.Logout(ctx); err != nil {
		logger.WarnCF("widget", "Logout request failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.logouts--
	w.phase = PhaseAnonymous
	w.inFlight = w.logouts > 0
	w.lastReply = ""

	w.view.HideTyping()
	w.view.ResetTranscript()
	w.view.SetLogoutVisible(false)
	w.view.SetSubmitEnabled(!w.inFlight)
	w.view.ClearInput()
	w.view.SetInputMasked(false)
	w.view.FocusInput()

	logger.InfoC("widget", "Session reset")
}

// Close stops the pending auto-logout and cancels any turn in flight.
// Subsequent Submit calls are no-ops.
func (w *Widget) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopLogoutTimer()
	w.mu.Unlock()
	w.cancel()
}

// stopLogoutTimer must be called with mu held.
func (w *Widget) stopLogoutTimer() {
	if w.logoutTimer != nil {
		w.logoutTimer.Stop()
		w.logoutTimer = nil
	}
}

// render must be called with mu held.
func (w *Widget) render(text string, sender Sender) {
	w.view.Append(Entry{
		Text:      text,
		Sender:    sender,
		Timestamp: w.opts.clock.Now().Format(w.opts.timeFormat),
	})
}

func normalizeBreaks(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
