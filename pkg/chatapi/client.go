package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

// ErrTransport marks every failure to obtain a usable reply: network errors,
// non-2xx statuses and bodies that do not decode.
var ErrTransport = errors.New("chatapi: transport failure")

// maxBodyBytes caps how much of a reply body is read.
const maxBodyBytes = 1 << 20

// Client talks to the chat backend. The backend tracks login state in its
// session cookie, so the client keeps a cookie jar for its whole lifetime.
type Client struct {
	chatURL   string
	logoutURL string
	field     string
	userAgent string
	vocab     Vocabulary

	mu   sync.Mutex
	http *http.Client
}

func New(cfg config.BackendConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("chatapi: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("chatapi: base url %q is not absolute", cfg.BaseURL)
	}

	field := cfg.MessageField
	if field == "" {
		field = "mensagem"
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	return &Client{
		chatURL:   base.JoinPath(orDefault(cfg.ChatPath, "/api/chat")).String(),
		logoutURL: base.JoinPath(orDefault(cfg.LogoutPath, "/api/logout")).String(),
		field:     field,
		userAgent: cfg.UserAgent,
		vocab:     NewVocabulary(cfg.Kinds),
		http: &http.Client{
			Timeout: cfg.Timeout.Std(),
			Jar:     jar,
		},
	}, nil
}

func newJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("chatapi: cookie jar: %w", err)
	}
	return jar, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http
}

// Chat posts one message and decodes the reply.
func (c *Client) Chat(ctx context.Context, message string) (Response, error) {
	body, err := encodeRequest(c.field, message)
	if err != nil {
		return Response{}, fmt.Errorf("chatapi: encode request: %w", err)
	}

	requestID := uuid.NewString()
	req, err := c.newRequest(ctx, c.chatURL, bytes.NewReader(body), requestID)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("%w: %s returned %s", ErrTransport, c.chatURL, resp.Status)
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return Response{}, fmt.Errorf("%w: decode reply: %v", ErrTransport, err)
	}
	reply, ok := wire.reply()
	if !ok {
		return Response{}, fmt.Errorf("%w: reply field missing", ErrTransport)
	}

	out := Response{
		Reply:   reply,
		RawKind: wire.kind(),
	}
	out.Kind = c.vocab.Lookup(out.RawKind)

	logger.DebugCF("chatapi", "Chat reply received", map[string]interface{}{
		"request_id": requestID,
		"status":     resp.StatusCode,
		"kind":       out.Kind.String(),
		"raw_kind":   out.RawKind,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})

	return out, nil
}

// Logout notifies the backend that the session ends. The response body is
// ignored. The local cookie jar is cleared whether or not the call succeeds.
func (c *Client) Logout(ctx context.Context) error {
	defer c.resetCookies()

	req, err := c.newRequest(ctx, c.logoutURL, http.NoBody, uuid.NewString())
	if err != nil {
		return err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %s", ErrTransport, c.logoutURL, resp.Status)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, target string, body io.Reader, requestID string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("chatapi: build request: %w", err)
	}
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) resetCookies() {
	jar, err := newJar()
	if err != nil {
		logger.WarnCF("chatapi", "Could not reset cookie jar", map[string]interface{}{"error": err.Error()})
		return
	}
	c.mu.Lock()
	hc := *c.http
	hc.Jar = jar
	c.http = &hc
	c.mu.Unlock()
}
