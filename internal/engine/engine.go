package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/channel"
	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/store"
)

// DefaultLookupTimeout bounds each join or command lookup.
const DefaultLookupTimeout = 2 * time.Second

// ErrStopped is returned by Sync once the coordinator no longer accepts events.
var ErrStopped = errors.New("coordinator stopped")

// IdentityStore is the persistence the coordinator needs.
// Implemented by *store.Store.
type IdentityStore interface {
	Lookup(ctx context.Context, sessionID string) (int64, bool, error)
	Touch(ctx context.Context, sessionID, displayName string) error
	TryLink(ctx context.Context, sessionID string, accountID int64) (store.LinkOutcome, error)
}

type sessionState int

const (
	stateUnknown sessionState = iota
	stateUnregistered
	stateRegistered
)

// session is the loop-owned view of a connected participant.
type session struct {
	name  string
	state sessionState
	epoch int // bumped each time a link is applied

	// joining is set while the join lookup runs. Commands and messages
	// arriving meanwhile are held in deferred and replayed in order.
	joining  bool
	deferred []Event
}

// Coordinator is the single-writer registration event loop.
//
// Thread-safety model:
//   - Join, Command, Message, Disconnect, Enqueue: safe from any goroutine
//   - InterceptMove: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - sessions is only read or written by the Run goroutine
//   - Host.Notify is only called by the Run goroutine
//   - store calls run on the worker pool, never on the Run goroutine
//   - a joining session is frozen before Join returns
//   - a session is unfrozen only after its link is persisted, or after a
//     lookup reports it linked
type Coordinator struct {
	store         IdentityStore
	frozen        *freeze.Registry
	host          Host
	logger        *slog.Logger
	queue         *eventQueue
	pool          *workerPool
	channel       string
	workers       int
	lookupTimeout time.Duration

	sessions map[uuid.UUID]*session
}

// Option allows configuration of coordinator parameters.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithWorkers sets how many link calls may run at once.
// Default: 4 (DefaultWorkers).
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		c.workers = n
	}
}

// WithLookupTimeout bounds each join or command lookup.
// Default: 2s (DefaultLookupTimeout).
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.lookupTimeout = d
	}
}

// WithChannel sets the side-channel name assertions are accepted on.
// Default: channel.Name.
func WithChannel(name string) Option {
	return func(c *Coordinator) {
		c.channel = name
	}
}

// New creates a Coordinator. The registry is owned by the caller, which
// constructs it at startup and resets it at shutdown.
func New(st IdentityStore, frozen *freeze.Registry, host Host, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         st,
		frozen:        frozen,
		host:          host,
		logger:        slog.Default(),
		queue:         newEventQueue(),
		channel:       channel.Name,
		workers:       DefaultWorkers,
		lookupTimeout: DefaultLookupTimeout,
		sessions:      make(map[uuid.UUID]*session),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.pool = newWorkerPool(c.workers)
	return c
}

// Join freezes a session connecting at pos and enqueues its lookup.
// The session stays frozen until the lookup reports it linked.
func (c *Coordinator) Join(id uuid.UUID, name string, pos freeze.Position) bool {
	pinned := c.frozen.Freeze(id, pos)
	if c.Enqueue(Event{Type: EventTypeJoin, Session: id, Name: name, Position: pos}) {
		return true
	}
	if pinned {
		c.frozen.Unfreeze(id)
	}
	return false
}

// Command enqueues a command run by a session standing at pos.
func (c *Coordinator) Command(id uuid.UUID, command string, pos freeze.Position) bool {
	return c.Enqueue(Event{Type: EventTypeCommand, Session: id, Command: command, Position: pos})
}

// Message enqueues a side-channel payload received on id's connection.
// The payload is copied.
func (c *Coordinator) Message(id uuid.UUID, channelName string, payload []byte) bool {
	return c.Enqueue(Event{
		Type:    EventTypeMessage,
		Session: id,
		Channel: channelName,
		Payload: append([]byte(nil), payload...),
	})
}

// Disconnect enqueues a session leaving.
func (c *Coordinator) Disconnect(id uuid.UUID) bool {
	return c.Enqueue(Event{Type: EventTypeDisconnect, Session: id})
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the coordinator has been stopped or the event type is
// not one callers may submit.
func (c *Coordinator) Enqueue(ev Event) bool {
	switch ev.Type {
	case EventTypeJoin, EventTypeCommand, EventTypeMessage, EventTypeDisconnect:
	default:
		return false
	}
	ev.link = nil
	ev.lookup = nil
	ev.barrier = nil
	return c.queue.Enqueue(ev)
}

// InterceptMove checks an attempted move. While the session is frozen it
// returns the pinned position and true; the caller cancels the move and
// puts the session there.
func (c *Coordinator) InterceptMove(id uuid.UUID, attempted freeze.Position) (freeze.Position, bool) {
	return c.frozen.InterceptMovement(id, attempted)
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// ERROR HANDLING: a failed event is logged with its context and processing
// continues. No error from a single event stops the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator starting", "channel", c.channel, "workers", c.workers)

	for {
		event, ok := c.queue.TryDequeue()
		if ok {
			if err := c.processEvent(ctx, event); err != nil {
				c.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping: context cancelled")
			c.queue.Close()
			_, _ = c.pool.Wait(context.Background())
			return ctx.Err()

		case _, open := <-c.queue.Wait():
			// A closed signal channel means Stop was called; drain first.
			if !open && c.queue.Len() == 0 {
				c.logger.Info("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the coordinator.
// Closes the event queue, which will cause Run() to return once drained.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// Sync blocks until every event enqueued before the call has been
// processed, including the continuations of store calls those events started.
func (c *Coordinator) Sync(ctx context.Context) error {
	for {
		n, err := c.pool.Wait(ctx)
		if err != nil {
			return err
		}
		if err := c.barrier(ctx); err != nil {
			return err
		}
		// Nothing scheduled since the pool went idle: every continuation
		// was enqueued ahead of the barrier.
		if c.pool.Scheduled() == n {
			return nil
		}
	}
}

func (c *Coordinator) barrier(ctx context.Context) error {
	done := make(chan struct{})
	if !c.queue.Enqueue(Event{Type: eventTypeBarrier, barrier: done}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processEvent routes an event to the appropriate handler.
// Called only from the Run goroutine.
func (c *Coordinator) processEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTypeJoin:
		return c.handleJoin(ctx, ev)
	case EventTypeCommand:
		if c.hold(ev) {
			return nil
		}
		return c.handleCommand(ctx, ev)
	case EventTypeMessage:
		if c.hold(ev) {
			return nil
		}
		return c.handleMessage(ctx, ev)
	case EventTypeDisconnect:
		c.handleDisconnect(ev)
		return nil
	case eventTypeLinked:
		if ev.link == nil {
			return fmt.Errorf("linked event missing result data")
		}
		return c.handleLinked(ev)
	case eventTypeLookedUp:
		if ev.lookup == nil {
			return fmt.Errorf("looked_up event missing result data")
		}
		return c.handleLookedUp(ctx, ev)
	case eventTypeBarrier:
		close(ev.barrier)
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

// logEventError logs a failed event. Security and business rejections are
// warnings; store failures are errors.
func (c *Coordinator) logEventError(ev Event, err error) {
	attrs := []any{
		"event", ev.Type.String(),
		"session", ev.Session.String(),
		"error", err,
	}

	var re *RegistrationError
	if !errors.As(err, &re) {
		c.logger.Error("event processing failed", attrs...)
		return
	}

	attrs = append(attrs, "code", string(re.Code))
	switch re.Code {
	case ErrCodeDecode:
		c.logger.Warn("registration payload dropped", attrs...)
	case ErrCodeIdentityMismatch:
		c.logger.Warn("registration identity mismatch", attrs...)
	case ErrCodeLinkRejected:
		c.logger.Warn("registration link rejected", attrs...)
	case ErrCodeStoreUnavailable:
		c.logger.Error("identity store unavailable", attrs...)
	default:
		c.logger.Error("event processing failed", attrs...)
	}
}
