package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tickerbox/internal/stream"
)

const (
	streamingPath = "/api/v1/streaming"
	lookupPath    = "/api/v1/accounts/lookup"

	defaultReadTimeout      = 90 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	controlWriteTimeout     = time.Second
)

// ErrNoTopics is returned by Connect when there is nothing to track.
var ErrNoTopics = errors.New("mastodon: at least one topic is required")

// Config selects the server and credentials.
type Config struct {
	// Server is a host name ("example.social") or base URL.
	Server      string
	AccessToken string
	// ReadTimeout bounds the silence tolerated on the stream, pings included.
	ReadTimeout time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for REST lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDialer sets the WebSocket dialer used for streaming.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client talks to one Mastodon server. It is safe for concurrent use.
type Client struct {
	base        *url.URL
	token       string
	readTimeout time.Duration
	http        *http.Client
	dialer      *websocket.Dialer
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	server := strings.TrimSpace(cfg.Server)
	if server == "" {
		return nil, errors.New("mastodon: server is required")
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	base, err := url.Parse(server)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("mastodon: invalid server %q", cfg.Server)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	c := &Client{
		base:        base,
		token:       cfg.AccessToken,
		readTimeout: cfg.ReadTimeout,
		http:        &http.Client{Timeout: 30 * time.Second},
		dialer:      &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
	if c.readTimeout <= 0 {
		c.readTimeout = defaultReadTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// streamingURL returns the hashtag stream URL for tag.
func (c *Client) streamingURL(tag string) string {
	u := *c.base
	u.Scheme = "wss"
	if c.base.Scheme == "http" {
		u.Scheme = "ws"
	}
	u.Path += streamingPath
	u.RawQuery = url.Values{"stream": {"hashtag"}, "tag": {tag}}.Encode()
	return u.String()
}

// subscription is a client-to-server stream control message.
type subscription struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Tag    string `json:"tag"`
}

// Connect opens the streaming connection for the first topic and
// subscribes the rest on the same socket.
func (c *Client) Connect(ctx context.Context, topics []string) (stream.Stream, error) {
	if len(topics) == 0 {
		return nil, stream.NewFault(stream.Other, ErrNoTopics)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.streamingURL(topics[0]), c.authHeader())
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake body is unused
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, handshakeFault(resp, err)
	}

	for _, topic := range topics[1:] {
		if err := conn.WriteJSON(subscription{Type: "subscribe", Stream: "hashtag", Tag: topic}); err != nil {
			conn.Close() //nolint:errcheck // already failing
			return nil, stream.NewFault(stream.Disconnected, fmt.Errorf("subscribing %q: %w", topic, err))
		}
	}

	return newWSStream(conn, c.readTimeout, topics), nil
}

// handshakeFault classifies a failed WebSocket upgrade.
func handshakeFault(resp *http.Response, err error) error {
	if resp == nil {
		return stream.NewFault(stream.Disconnected, err)
	}
	return statusFault(resp.StatusCode, fmt.Errorf("handshake: %w (HTTP %d)", err, resp.StatusCode))
}

// statusFault maps an HTTP status to a fault kind.
func statusFault(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return stream.NewFault(stream.RateLimited, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return stream.NewFault(stream.Other, err)
	case status >= http.StatusInternalServerError:
		return stream.NewFault(stream.Disconnected, err)
	}
	return stream.NewFault(stream.Other, err)
}

// account is the subset of the Mastodon Account entity tickerbox reads.
type account struct {
	Acct           string `json:"acct"`
	FollowersCount uint64 `json:"followers_count"`
	FollowingCount uint64 `json:"following_count"`
	StatusesCount  uint64 `json:"statuses_count"`
}

// Lookup fetches follower, following and post counts for acct.
func (c *Client) Lookup(ctx context.Context, acct string) (stream.Metrics, error) {
	u := *c.base
	u.Path += lookupPath
	u.RawQuery = url.Values{"acct": {strings.TrimPrefix(acct, "@")}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return stream.Metrics{}, fmt.Errorf("mastodon: building lookup request: %w", err)
	}
	req.Header = c.authHeader()
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return stream.Metrics{}, stream.NewFault(stream.Disconnected, fmt.Errorf("lookup %s: %w", acct, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stream.Metrics{}, statusFault(resp.StatusCode, fmt.Errorf("lookup %s: HTTP %d", acct, resp.StatusCode))
	}

	var a account
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return stream.Metrics{}, stream.NewFault(stream.Other, fmt.Errorf("decoding account %s: %w", acct, err))
	}
	return stream.Metrics{
		Account:   a.Acct,
		Followers: a.FollowersCount,
		Following: a.FollowingCount,
		Posts:     a.StatusesCount,
	}, nil
}

var _ stream.Source = (*Client)(nil)
