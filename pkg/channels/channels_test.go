package channels

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picochat/pkg/chatapi"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/widget"
)

type stubBackend struct {
	mu      sync.Mutex
	replies []chatapi.Response
	sent    []string
	logouts int
}

func (b *stubBackend) Chat(ctx context.Context, message string) (chatapi.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, message)
	if len(b.replies) == 0 {
		return chatapi.Response{}, chatapi.ErrTransport
	}
	resp := b.replies[0]
	b.replies = b.replies[1:]
	return resp, nil
}

func (b *stubBackend) Logout(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.UI.ReplyDelay = 0
	cfg.UI.LogoutDelay = config.Duration(time.Hour)
	cfg.UI.Welcome = "Hello! How can I help?"
	return cfg
}

func runConsole(t *testing.T, backend *stubBackend, input string) string {
	t.Helper()
	var out bytes.Buffer
	ch := NewConsoleChannel(testConfig(), backend, strings.NewReader(input), &out)
	assert.Equal(t, "console", ch.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Run(ctx))
	assert.False(t, ch.IsRunning())
	return out.String()
}

func TestConsole_PlainTurn(t *testing.T) {
	backend := &stubBackend{replies: []chatapi.Response{{Reply: "We open at 10h", Kind: chatapi.KindOther}}}

	out := runConsole(t, backend, "horario\n")

	assert.Equal(t, []string{"horario"}, backend.sent)
	assert.Contains(t, out, "Hello! How can I help?")
	assert.Contains(t, out, "you: horario")
	assert.Contains(t, out, "bot: We open at 10h")
}

func TestConsole_PasswordIsMaskedInTranscript(t *testing.T) {
	backend := &stubBackend{replies: []chatapi.Response{
		{Reply: "Please enter your password", Kind: chatapi.KindAuthentication},
		{Reply: "Welcome, Ana", Kind: chatapi.KindSuccess},
	}}

	out := runConsole(t, backend, "34\nsecret\n")

	assert.Equal(t, []string{"34", "secret"}, backend.sent)
	assert.NotContains(t, out, "you: secret")
	assert.Contains(t, out, "you: ********")
	assert.Contains(t, out, "type /logout to end the session")
}

func TestConsole_LogoutCommand(t *testing.T) {
	backend := &stubBackend{replies: []chatapi.Response{{Reply: "Welcome", Kind: chatapi.KindSuccess}}}

	out := runConsole(t, backend, "secret\n/logout\n")

	assert.Equal(t, 1, backend.logouts)
	assert.Equal(t, []string{"secret"}, backend.sent)
	assert.Contains(t, out, "--- session ended ---")
	assert.Equal(t, 2, strings.Count(out, "Hello! How can I help?"))
}

func TestConsole_QuitStopsBeforeRemainingInput(t *testing.T) {
	backend := &stubBackend{}

	runConsole(t, backend, "/quit\nhello\n")

	assert.Empty(t, backend.sent)
}

func TestConsole_QuitReleasesReader(t *testing.T) {
	backend := &stubBackend{}
	before := runtime.NumGoroutine()

	var out bytes.Buffer
	ch := NewConsoleChannel(testConfig(), backend, strings.NewReader("/quit\nhello\n"), &out)
	require.NoError(t, ch.Run(context.Background()))

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, backend.sent)
}

func TestConsole_TransportFailureShowsApology(t *testing.T) {
	backend := &stubBackend{}

	out := runConsole(t, backend, "hello\n")

	assert.Contains(t, out, "bot: "+widget.DefaultApology)
}

func TestConsole_BlankLinesAreIgnored(t *testing.T) {
	backend := &stubBackend{}

	runConsole(t, backend, "\n   \n")

	assert.Empty(t, backend.sent)
}

func TestFormatEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry widget.Entry
		want  string
	}{
		{
			name:  "user",
			entry: widget.Entry{Text: "hello", Sender: widget.SenderUser, Timestamp: "14:07"},
			want:  "[gray]14:07[-] [green::b]You:[-::-] hello",
		},
		{
			name:  "bot",
			entry: widget.Entry{Text: "hi", Sender: widget.SenderBot, Timestamp: "14:08"},
			want:  "[gray]14:08[-] [aqua::b]Assistant:[-::-] hi",
		},
		{
			name:  "brackets are escaped",
			entry: widget.Entry{Text: "[red]not a tag[-]", Sender: widget.SenderBot, Timestamp: "14:09"},
			want:  "[gray]14:09[-] [aqua::b]Assistant:[-::-] [red[]not a tag[-[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEntry(tt.entry, "Assistant"))
		})
	}
}

func TestTranscript(t *testing.T) {
	tr := transcript{welcome: "Welcome!", showWelcome: true, botName: "Assistant"}
	assert.Equal(t, "[gray::i]Welcome![-::-]\n\n", tr.text())

	tr.append(widget.Entry{Text: "hi", Sender: widget.SenderUser, Timestamp: "10:00"})
	tr.showWelcome = false
	assert.Equal(t, "[gray]10:00[-] [green::b]You:[-::-] hi\n", tr.text())

	tr.reset()
	assert.Empty(t, tr.lines)
	assert.True(t, tr.showWelcome)
	assert.Equal(t, "[gray::i]Welcome![-::-]\n\n", tr.text())
}

func TestWidgetOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.UI.Mask = "####"
	base := NewBaseChannel("test", cfg.UI)

	assert.Len(t, base.widgetOptions(), 5)
	assert.Equal(t, "Hello! How can I help?", base.Welcome())
	assert.False(t, base.IsRunning())
}
