// Package mqttsource is a stream.Source fed over MQTT by a bridge process.
//
// The bridge publishes one JSON message per post to <prefix>/<topic>:
//
//	{"author": "alice", "text": "hi"}
//
// and reports upstream trouble on <prefix>/_fault:
//
//	{"kind": "rate_limited"}   // or "disconnected", "other"
//
// A rate_limited fault is resumable: the broker connection is unaffected,
// so the watcher keeps reading the same stream after its cooldown.
package mqttsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tickerbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/tickerbox/internal/stream"
)

const (
	defaultBuffer        = 256
	defaultLivenessCheck = time.Second
)

var (
	// ErrBufferFull is returned by a message handler when the stream is not
	// being read fast enough. The message is dropped.
	ErrBufferFull = errors.New("mqttsource: item buffer full")

	// ErrBadPayload is returned by a message handler for an undecodable item.
	ErrBadPayload = errors.New("mqttsource: invalid payload")
)

// Broker is the subset of *mqtt.Client the source needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Options tunes a Source. The zero value is usable apart from Prefix.
type Options struct {
	// Prefix is the topic root the bridge publishes under.
	Prefix string
	QoS    byte
	// Buffer is the number of items held between broker and reader.
	Buffer int
	// LivenessCheck is how often Next polls the broker connection.
	LivenessCheck time.Duration
}

// Source subscribes stream topics on a broker.
type Source struct {
	broker Broker
	opts   Options
}

// New returns a Source over broker.
func New(broker Broker, opts Options) *Source {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.LivenessCheck <= 0 {
		opts.LivenessCheck = defaultLivenessCheck
	}
	return &Source{broker: broker, opts: opts}
}

// Connect subscribes the item topic of every tracked topic plus the fault
// topic.
func (s *Source) Connect(ctx context.Context, topics []string) (stream.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.broker.IsConnected() {
		return nil, stream.NewFault(stream.Disconnected, mqtt.ErrNotConnected)
	}

	st := &mqttStream{
		broker:   s.broker,
		prefix:   s.opts.Prefix,
		liveness: s.opts.LivenessCheck,
		items:    make(chan stream.Item, s.opts.Buffer),
		faults:   make(chan *stream.Fault, 1),
		done:     make(chan struct{}),
	}

	faultTopic := mqtt.Topics{}.StreamFault(s.opts.Prefix)
	if err := s.subscribe(st, faultTopic, st.handleFault); err != nil {
		return nil, err
	}
	for _, topic := range topics {
		if err := s.subscribe(st, mqtt.Topics{}.StreamItem(s.opts.Prefix, topic), st.handleItem); err != nil {
			st.Close() //nolint:errcheck // already failing
			return nil, err
		}
	}
	return st, nil
}

func (s *Source) subscribe(st *mqttStream, topic string, h mqtt.MessageHandler) error {
	if err := s.broker.Subscribe(topic, s.opts.QoS, h); err != nil {
		kind := stream.Other
		if errors.Is(err, mqtt.ErrNotConnected) {
			kind = stream.Disconnected
		}
		return stream.NewFault(kind, fmt.Errorf("subscribing %s: %w", topic, err))
	}
	st.mu.Lock()
	st.subscribed = append(st.subscribed, topic)
	st.mu.Unlock()
	return nil
}

// Lookup is not available over MQTT.
func (s *Source) Lookup(context.Context, string) (stream.Metrics, error) {
	return stream.Metrics{}, stream.ErrUnsupported
}

type mqttStream struct {
	broker   Broker
	prefix   string
	liveness time.Duration

	items  chan stream.Item
	faults chan *stream.Fault

	mu         sync.Mutex
	subscribed []string
	closed     bool
	done       chan struct{}
}

type itemPayload struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type faultPayload struct {
	Kind string `json:"kind"`
}

func (st *mqttStream) handleItem(topic string, payload []byte) error {
	var p itemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if p.Author == "" {
		return fmt.Errorf("%w: missing author", ErrBadPayload)
	}
	tracked, _ := mqtt.Topics{}.TopicFromStream(st.prefix, topic)

	select {
	case st.items <- stream.Item{Author: p.Author, Text: p.Text, Topic: tracked}:
		return nil
	case <-st.done:
		return nil
	default:
		return ErrBufferFull
	}
}

func (st *mqttStream) handleFault(_ string, payload []byte) error {
	var p faultPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	kind, _ := stream.ParseFaultKind(p.Kind)
	f := &stream.Fault{
		Kind:      kind,
		Resumable: kind == stream.RateLimited,
		Err:       fmt.Errorf("bridge reported %q", p.Kind),
	}

	// Only the latest unread fault matters.
	select {
	case st.faults <- f:
	default:
		select {
		case <-st.faults:
		default:
		}
		select {
		case st.faults <- f:
		default:
		}
	}
	return nil
}

// Next returns the next item or fault. Faults take precedence over items
// already buffered.
func (st *mqttStream) Next(ctx context.Context) (stream.Item, error) {
	ticker := time.NewTicker(st.liveness)
	defer ticker.Stop()

	for {
		select {
		case f := <-st.faults:
			return stream.Item{}, f
		default:
		}

		select {
		case f := <-st.faults:
			return stream.Item{}, f
		case item := <-st.items:
			return item, nil
		case <-ticker.C:
			if !st.broker.IsConnected() {
				return stream.Item{}, stream.NewFault(stream.Disconnected, mqtt.ErrNotConnected)
			}
		case <-st.done:
			return stream.Item{}, stream.NewFault(stream.Disconnected, errors.New("stream closed"))
		case <-ctx.Done():
			return stream.Item{}, ctx.Err()
		}
	}
}

// Close unsubscribes every topic the stream holds.
func (st *mqttStream) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	close(st.done)
	topics := st.subscribed
	st.subscribed = nil
	st.mu.Unlock()

	var errs []error
	for _, topic := range topics {
		if err := st.broker.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ stream.Source = (*Source)(nil)
