// Package realtime speaks the realtime speech model protocol over a single
// websocket: one session configuration message, base64 PCM appends out, and
// typed events in.
package realtime

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrSocket covers connect, send and receive failures.
	ErrSocket = errors.New("realtime socket error")

	// ErrClosed is returned once the socket has been closed by either side.
	ErrClosed = errors.New("realtime socket closed")

	// ErrDecode marks a malformed inbound message.
	ErrDecode = errors.New("realtime decode error")
)

const (
	DefaultURL = "wss://api.openai.com/v1/realtime"

	closeWait = time.Second
)

// Options configures Dial.
type Options struct {
	URL              string
	Model            string
	APIKey           string
	CAFile           string
	Names            EventNames
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Conn is a realtime session socket. Send methods must be called from one
// goroutine and Next from one other goroutine. Close may be called from
// anywhere.
type Conn struct {
	ws    *websocket.Conn
	names EventNames
	log   *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens the socket and returns once the handshake has completed.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	target, err := dialURL(opts.URL, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 15 * time.Second
	}
	if opts.CAFile != "" {
		tlsConfig, err := createTLSConfig(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load CA file: %w", ErrSocket, err)
		}
		dialer.TLSClientConfig = tlsConfig
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+opts.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: failed to connect (status %d): %w", ErrSocket, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: failed to connect: %w", ErrSocket, err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("Connected to realtime service", "url", target)

	return &Conn{
		ws:     ws,
		names:  opts.Names.WithDefaults(),
		log:    log,
		closed: make(chan struct{}),
	}, nil
}

func dialURL(base, model string) (string, error) {
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func createTLSConfig(caFile string) (*tls.Config, error) {
	certPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certPEM) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}

	return &tls.Config{
		RootCAs: certPool,
	}, nil
}

func eventID() string {
	return "evt_" + uuid.New().String()[:12]
}

func (c *Conn) send(v any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return c.classify(err)
	}
	return nil
}

// Configure sends the session configuration. It must precede any audio.
func (c *Conn) Configure(cfg SessionConfig) error {
	return c.send(map[string]any{
		"event_id": eventID(),
		"type":     c.names.SessionUpdate,
		"session":  cfg,
	})
}

// AppendAudio sends one PCM frame.
func (c *Conn) AppendAudio(pcm []byte) error {
	return c.send(map[string]any{
		"event_id": eventID(),
		"type":     c.names.AudioAppend,
		"audio":    EncodeAudio(pcm),
	})
}

// SendItem adds a text message to the remote conversation.
func (c *Conn) SendItem(role, text string) error {
	return c.send(map[string]any{
		"event_id": eventID(),
		"type":     c.names.ItemCreate,
		"item": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]string{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// Next blocks for the next inbound event. Malformed messages return an
// error wrapping ErrDecode and leave the socket usable.
func (c *Conn) Next() (Event, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return Event{}, c.classify(err)
		}
		if kind != websocket.TextMessage {
			c.log.Debug("Ignoring non-text realtime message", "kind", kind)
			continue
		}
		return Decode(c.names, data)
	}
}

// Close sends a close frame and releases the socket. It is safe to call more
// than once and concurrently with Next.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) classify(err error) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
	}
	if IsClosed(err) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return fmt.Errorf("%w: %w", ErrSocket, err)
}

// IsClosed reports whether err means the socket is gone rather than a
// single failed operation.
func IsClosed(err error) bool {
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
