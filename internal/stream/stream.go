package stream

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by a Source that cannot serve an operation.
var ErrUnsupported = errors.New("stream: operation not supported")

// Item is one inbound post.
type Item struct {
	Author string
	Text   string
	// Topic is the tracked topic the item matched, when the source knows it.
	Topic string
}

// Metrics is a point-in-time snapshot of an account.
type Metrics struct {
	Account   string
	Followers uint64
	Following uint64
	Posts     uint64
}

// Source is an external event source.
type Source interface {
	// Connect opens a stream of items matching any of topics.
	Connect(ctx context.Context, topics []string) (Stream, error)
	// Lookup fetches current metrics for account.
	Lookup(ctx context.Context, account string) (Metrics, error)
}

// Stream is an open subscription. Next blocks until an item arrives, the
// source faults, or ctx ends.
type Stream interface {
	Next(ctx context.Context) (Item, error)
	Close() error
}

// FaultKind classifies a source failure.
type FaultKind int

const (
	// Other is any failure that is neither a rate limit nor a disconnect.
	Other FaultKind = iota
	RateLimited
	Disconnected
)

var kindNames = map[FaultKind]string{
	Other:        "other",
	RateLimited:  "rate_limited",
	Disconnected: "disconnected",
}

// String returns the wire name of k: "rate_limited", "disconnected" or "other".
func (k FaultKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// ParseFaultKind is the inverse of FaultKind.String.
func ParseFaultKind(s string) (FaultKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return Other, false
}

// Fault is a failure signalled by the source itself.
type Fault struct {
	Kind FaultKind
	// Resumable is set when the stream that returned this fault can keep
	// being read after the fault (the transport is still up).
	Resumable bool
	Err       error
}

// NewFault returns a non-resumable fault of kind wrapping err.
func NewFault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return "stream fault: " + f.Kind.String()
	}
	return "stream fault: " + f.Kind.String() + ": " + f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault returns the *Fault in err's chain, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf classifies err. Errors that are not faults are Other.
func KindOf(err error) FaultKind {
	if f, ok := AsFault(err); ok {
		return f.Kind
	}
	return Other
}
