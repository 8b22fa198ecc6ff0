package widget

// Sender tags who a transcript entry belongs to.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Entry is one rendered transcript message. It is handed to the View and not
// kept by the widget.
type Entry struct {
	Text      string
	Sender    Sender
	Timestamp string
}

// View is the surface the widget drives. Implementations must be safe to call
// from any goroutine; the widget never calls two View methods concurrently.
type View interface {
	// Append adds an entry to the end of the transcript and scrolls to it.
	Append(e Entry)
	ShowTyping()
	HideTyping()
	// RemoveWelcome drops the welcome banner if it is still shown.
	RemoveWelcome()
	// ResetTranscript clears every entry and restores the welcome banner.
	ResetTranscript()
	SetInputMasked(masked bool)
	ClearInput()
	FocusInput()
	SetSubmitEnabled(enabled bool)
	SetLogoutVisible(visible bool)
}
