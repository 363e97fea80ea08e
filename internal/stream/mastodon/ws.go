package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tickerbox/internal/stream"
)

// envelope is one streaming API frame. Payload is itself JSON encoded as
// a string.
type envelope struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// status is the subset of the Mastodon Status entity tickerbox reads.
type status struct {
	Content string `json:"content"`
	Account struct {
		Acct string `json:"acct"`
	} `json:"account"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	topics      []string

	// interrupted is set once the current Next's ctx has ended, so handlers
	// stop pushing the deadline back out.
	interrupted atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newWSStream(conn *websocket.Conn, readTimeout time.Duration, topics []string) *wsStream {
	s := &wsStream{conn: conn, readTimeout: readTimeout, topics: topics}
	conn.SetPingHandler(func(data string) error {
		s.extendDeadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})
	return s
}

func (s *wsStream) extendDeadline() {
	if s.interrupted.Load() {
		return
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)) //nolint:errcheck // surfaced by the next read
}

// Next returns the next status update. Frames for other events and frames
// that do not decode are skipped. A Next interrupted by ctx leaves the
// stream unusable; close it.
func (s *wsStream) Next(ctx context.Context) (stream.Item, error) {
	// Unblock the read when ctx ends.
	s.interrupted.Store(false)
	stop := context.AfterFunc(ctx, func() {
		s.interrupted.Store(true)
		_ = s.conn.SetReadDeadline(time.Now()) //nolint:errcheck // best effort wake-up
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return stream.Item{}, err
		}
		s.extendDeadline()

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stream.Item{}, ctxErr
			}
			return stream.Item{}, stream.NewFault(stream.Disconnected, fmt.Errorf("reading stream: %w", err))
		}

		item, ok := s.decode(data)
		if ok {
			return item, nil
		}
	}
}

func (s *wsStream) decode(data []byte) (stream.Item, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event != "update" {
		return stream.Item{}, false
	}
	var st status
	if err := json.Unmarshal([]byte(env.Payload), &st); err != nil || st.Account.Acct == "" {
		return stream.Item{}, false
	}
	return stream.Item{
		Author: st.Account.Acct,
		Text:   htmlToText(st.Content),
		Topic:  s.matchTopic(env.Stream, st),
	}, true
}

// matchTopic picks the tracked topic an update belongs to, preferring the
// stream the server delivered it on.
func (s *wsStream) matchTopic(streams []string, st status) string {
	if len(streams) == 2 && streams[0] == "hashtag" {
		for _, t := range s.topics {
			if strings.EqualFold(t, streams[1]) {
				return t
			}
		}
	}
	for _, tag := range st.Tags {
		for _, t := range s.topics {
			if strings.EqualFold(t, tag.Name) {
				return t
			}
		}
	}
	return ""
}

// Close sends a close frame and releases the socket.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteTimeout)) //nolint:errcheck // peer may be gone
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
