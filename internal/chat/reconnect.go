package chat

import (
	"context"
	"errors"
	"time"

	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// ErrIntentionalClose is returned by a Conn whose peer (or owner) closed
// the stream deliberately. The reconnect loop treats it as final and does
// not retry.
var ErrIntentionalClose = errors.New("chat: intentional close")

// Message is one inbound chat message. IDs are assigned by the server and
// stable across redelivery, which is what makes dedup possible.
type Message struct {
	ID     string
	Sender string
	Body   string
	SentAt time.Time
}

// Conn is a single live message stream. Receive blocks until a message
// arrives, the context is cancelled, or the stream dies.
type Conn interface {
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Dialer establishes a new Conn for a chat channel.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

const (
	DefaultRetryDelay  = 3 * time.Second
	DefaultMaxAttempts = 10
	dedupRingSize      = 512
)

// Reconnector owns the reconnect loop for one open chat view. It redials
// after unexpected closes with a fixed delay, gives up after MaxAttempts
// consecutive failures, and suppresses messages already delivered on an
// earlier connection. Ordering is guaranteed only within one connection;
// there is no backfill across a reconnect gap.
type Reconnector struct {
	Dialer      Dialer
	OnMessage   func(Message)
	RetryDelay  time.Duration
	MaxAttempts int

	seen *dedupRing
}

// Run drives the loop until ctx is cancelled, the peer closes
// intentionally, or the attempt budget is exhausted. Each successful
// connection resets the budget; only consecutive failures count against it.
func (r *Reconnector) Run(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	delay := r.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if r.seen == nil {
		r.seen = newDedupRing(dedupRingSize)
	}

	attempts := 0
	for {
		conn, err := r.Dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			log.Warn("chat dial failed", "attempt", attempts, "err", err)
			if attempts >= maxAttempts {
				return errors.New("chat: reconnect attempts exhausted")
			}
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		attempts = 0

		err = r.pump(ctx, conn)
		_ = conn.Close()

		switch {
		case errors.Is(err, ErrIntentionalClose):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		// The connection was established, so the drop does not count
		// against the budget; only consecutive dial failures do.
		log.Warn("chat stream dropped", "err", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// pump reads from one connection until it dies, forwarding unseen messages.
func (r *Reconnector) pump(ctx context.Context, conn Conn) error {
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		// A reconnect can redeliver messages the previous connection
		// already handed us.
		if r.seen.observe(msg.ID) {
			continue
		}
		if r.OnMessage != nil {
			r.OnMessage(msg)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dedupRing remembers the last n message ids. Membership checks are O(1);
// once full, observing a new id evicts the oldest remembered one.
type dedupRing struct {
	ids  []string
	set  map[string]struct{}
	next int
}

func newDedupRing(n int) *dedupRing {
	return &dedupRing{
		ids: make([]string, n),
		set: make(map[string]struct{}, n),
	}
}

// observe records id and reports whether it had been seen already.
func (d *dedupRing) observe(id string) bool {
	if _, ok := d.set[id]; ok {
		return true
	}
	if old := d.ids[d.next]; old != "" {
		delete(d.set, old)
	}
	d.ids[d.next] = id
	d.set[id] = struct{}{}
	d.next = (d.next + 1) % len(d.ids)
	return false
}
