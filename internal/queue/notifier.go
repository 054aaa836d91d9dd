package queue

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
)

const wakeChannel = "generation_jobs:new"

// Notifier is a best-effort latency optimization: it tells idle workers a
// new job was enqueued so they don't have to wait out the full poll
// interval. Postgres remains the sole system of record — a Notifier that
// can't reach Redis degrades silently, and nothing downstream depends on a
// message actually arriving.
type Notifier struct {
	client *redis.Client
}

// NewNotifier builds a Notifier against a Redis instance at addr. A nil
// *Notifier is valid and simply does nothing, so callers can wire a
// notifier optionally.
func NewNotifier(addr string) *Notifier {
	if addr == "" {
		return nil
	}
	return &Notifier{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Publish announces jobID on the wake channel. Errors are logged, never
// returned: a missed nudge only costs the idle poll interval.
func (n *Notifier) Publish(ctx context.Context, jobID string) {
	if n == nil || n.client == nil {
		return
	}
	if err := n.client.Publish(ctx, wakeChannel, jobID).Err(); err != nil {
		log.Printf("queue: wake-nudge publish failed (falling back to poll): %v", err)
	}
}

// Subscribe returns a channel of wake nudges, or nil if the notifier is
// unconfigured. Callers must treat every receive as advisory: a nudge means
// "maybe poll now", not "a specific job is yours".
func (n *Notifier) Subscribe(ctx context.Context) <-chan *redis.Message {
	if n == nil || n.client == nil {
		return nil
	}
	sub := n.client.Subscribe(ctx, wakeChannel)
	return sub.Channel()
}

// Wake adapts Subscribe's Redis-specific message channel into a bare signal
// channel, so the worker's poll loop can select on "wake up early" without
// importing go-redis itself. The returned channel closes when ctx is done;
// an unconfigured notifier yields an already-closed channel, which is always
// ready to receive, so a poll loop that selects on it must first check for
// an unconfigured (nil) notifier or it never waits.
func (n *Notifier) Wake(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	sub := n.Subscribe(ctx)
	if sub == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close releases the underlying Redis connection, if any.
func (n *Notifier) Close() error {
	if n == nil || n.client == nil {
		return nil
	}
	return n.client.Close()
}
