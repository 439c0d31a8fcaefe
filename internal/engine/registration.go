package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/channel"
	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/store"
)

// RegisterCommand is the only command the coordinator handles.
const RegisterCommand = "register"

// handleJoin starts the lookup that decides whether a joining session may
// move. Join has already frozen the session; it is pinned again here in case
// a disconnect processed since released it.
func (c *Coordinator) handleJoin(ctx context.Context, ev Event) error {
	s := &session{name: ev.Name, joining: true}
	c.sessions[ev.Session] = s
	c.frozen.Freeze(ev.Session, ev.Position)
	c.lookup(ctx, ev, s, true)
	return nil
}

// handleCommand runs /register: confirm a linked session, or show the
// session its own identity to paste into the external system.
func (c *Coordinator) handleCommand(ctx context.Context, ev Event) error {
	name := strings.TrimPrefix(strings.TrimSpace(ev.Command), "/")
	if !strings.EqualFold(name, RegisterCommand) {
		c.logger.Debug("ignoring command", "session", ev.Session.String(), "command", ev.Command)
		return nil
	}

	s, ok := c.sessions[ev.Session]
	if !ok {
		s = &session{}
		c.sessions[ev.Session] = s
	}
	c.lookup(ctx, ev, s, false)
	return nil
}

// hold defers a command or message that arrives while its session's join
// lookup is still running. Reports whether ev was held.
func (c *Coordinator) hold(ev Event) bool {
	s, ok := c.sessions[ev.Session]
	if !ok || !s.joining {
		return false
	}
	s.deferred = append(s.deferred, ev)
	return true
}

// lookup asks the store off the loop whether a session is linked and
// enqueues the answer. With touch set the session's row is created or
// refreshed first.
func (c *Coordinator) lookup(ctx context.Context, ev Event, s *session, touch bool) {
	name, epoch := s.name, s.epoch
	c.pool.Go(ctx, func(ctx context.Context) {
		linked, err := c.checkLinked(ctx, ev.Session, name, touch)
		ev.Type = eventTypeLookedUp
		ev.lookup = &lookupResult{join: touch, s: s, epoch: epoch, linked: linked, err: err}
		if !c.queue.Enqueue(ev) {
			c.logger.Warn("lookup result dropped: coordinator stopped",
				"session", ev.Session.String(),
			)
		}
	})
}

// handleLookedUp applies a finished lookup. Results for a session that has
// left, rejoined or been linked since the lookup started are stale.
func (c *Coordinator) handleLookedUp(ctx context.Context, ev Event) error {
	r := ev.lookup
	if c.sessions[ev.Session] != r.s || r.s.epoch != r.epoch {
		c.logger.Debug("stale lookup result dropped", "session", ev.Session.String())
		return nil
	}

	if !r.join {
		return c.commanded(ev, r)
	}

	err := c.joined(ev, r)
	c.replay(ctx, r.s)
	return err
}

// joined settles a join. A linked session is explicitly unfrozen; anything
// else stays frozen at the join position, including when the store cannot
// answer.
func (c *Coordinator) joined(ev Event, r *lookupResult) error {
	s := r.s
	s.joining = false

	if r.err != nil {
		s.state = stateUnregistered
		c.pinned(ev.Session)
		c.host.Notify(ev.Session, checkFailed())
		c.host.Notify(ev.Session, mustRegister())
		return r.err
	}

	if r.linked {
		s.state = stateRegistered
		c.frozen.Unfreeze(ev.Session)
		c.logger.Debug("session joined registered", "session", ev.Session.String())
		return nil
	}

	s.state = stateUnregistered
	c.pinned(ev.Session)
	c.host.Notify(ev.Session, mustRegister())
	return nil
}

// commanded answers /register once its lookup is back.
func (c *Coordinator) commanded(ev Event, r *lookupResult) error {
	s := r.s

	if r.err != nil {
		s.state = stateUnregistered
		c.freeze(ev.Session, ev.Position)
		c.host.Notify(ev.Session, checkFailed())
		return r.err
	}

	if r.linked {
		s.state = stateRegistered
		c.host.Notify(ev.Session, registered())
		c.frozen.Unfreeze(ev.Session)
		return nil
	}

	s.state = stateUnregistered
	c.host.Notify(ev.Session, token(ev.Session))
	c.freeze(ev.Session, ev.Position)
	c.host.Notify(ev.Session, remind())
	return nil
}

// replay processes the events held while s was joining, in arrival order.
func (c *Coordinator) replay(ctx context.Context, s *session) {
	held := s.deferred
	s.deferred = nil
	for _, ev := range held {
		if err := c.processEvent(ctx, ev); err != nil {
			c.logEventError(ev, err)
		}
	}
}

// handleMessage validates a side-channel assertion and starts persisting it.
//
// The sender is ev.Session, which the transport authenticated. The payload
// alone proves nothing: it is replayable and may be forged, so its claim
// must name the sender exactly.
func (c *Coordinator) handleMessage(ctx context.Context, ev Event) error {
	if ev.Channel != c.channel {
		c.logger.Debug("ignoring message on foreign channel",
			"session", ev.Session.String(),
			"channel", ev.Channel,
		)
		return nil
	}

	a, err := channel.Decode(ev.Payload)
	if err != nil {
		return &RegistrationError{
			Code:    ErrCodeDecode,
			Message: fmt.Sprintf("%d byte payload rejected", len(ev.Payload)),
			Session: ev.Session.String(),
			Err:     err,
		}
	}

	claimed, err := uuid.Parse(a.SessionID)
	if err != nil || claimed != ev.Session {
		return &RegistrationError{
			Code:    ErrCodeIdentityMismatch,
			Message: fmt.Sprintf("assertion claims session %q", a.SessionID),
			Session: ev.Session.String(),
		}
	}

	c.logger.Info("registration assertion accepted",
		"session", ev.Session.String(),
		"account", a.AccountID,
	)
	c.persist(ctx, ev.Session, a.AccountID)
	return nil
}

// persist links the account off the loop and enqueues the outcome.
// The session stays frozen until handleLinked runs.
func (c *Coordinator) persist(ctx context.Context, id uuid.UUID, account int64) {
	c.pool.Go(ctx, func(ctx context.Context) {
		outcome, err := c.store.TryLink(ctx, id.String(), account)
		ok := c.queue.Enqueue(Event{
			Type:    eventTypeLinked,
			Session: id,
			link:    &linkResult{account: account, outcome: outcome, err: err},
		})
		if !ok {
			c.logger.Warn("link result dropped: coordinator stopped",
				"session", id.String(),
				"account", account,
				"outcome", outcome.String(),
			)
		}
	})
}

// handleLinked applies a persisted link on the loop.
func (c *Coordinator) handleLinked(ev Event) error {
	r := ev.link
	s, online := c.sessions[ev.Session]

	if r.err != nil || r.outcome != store.LinkApplied {
		if online {
			if r.err == nil && r.outcome == store.LinkCapacityReached {
				c.host.Notify(ev.Session, registrationFull())
			} else {
				c.host.Notify(ev.Session, linkFailed())
			}
		}
		return linkError(ev.Session, r)
	}

	if !online {
		c.logger.Info("link stored for disconnected session",
			"session", ev.Session.String(),
			"account", r.account,
		)
		return nil
	}

	s.state = stateRegistered
	s.epoch++
	c.frozen.Unfreeze(ev.Session)
	c.host.Notify(ev.Session, linked())
	c.logger.Info("session registered",
		"session", ev.Session.String(),
		"account", r.account,
	)
	return nil
}

// handleDisconnect discards all transient state of a session, including
// events held while it was joining.
func (c *Coordinator) handleDisconnect(ev Event) {
	if s, ok := c.sessions[ev.Session]; ok && len(s.deferred) > 0 {
		c.logger.Debug("dropping held events", "session", ev.Session.String(), "count", len(s.deferred))
	}
	delete(c.sessions, ev.Session)
	c.frozen.Unfreeze(ev.Session)
	c.logger.Debug("session disconnected", "session", ev.Session.String())
}

// checkLinked asks the store whether a session holds an account. With touch
// set the session's row is created or refreshed first. Runs on the pool.
func (c *Coordinator) checkLinked(ctx context.Context, id uuid.UUID, name string, touch bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	if touch {
		if err := c.store.Touch(ctx, id.String(), name); err != nil {
			return false, &RegistrationError{
				Code:    ErrCodeStoreUnavailable,
				Message: "record session",
				Session: id.String(),
				Err:     err,
			}
		}
	}

	_, ok, err := c.store.Lookup(ctx, id.String())
	if err != nil {
		return false, &RegistrationError{
			Code:    ErrCodeStoreUnavailable,
			Message: "lookup",
			Session: id.String(),
			Err:     err,
		}
	}
	return ok, nil
}

// freeze pins a session, logging only the first pin.
func (c *Coordinator) freeze(id uuid.UUID, pos freeze.Position) {
	if c.frozen.Freeze(id, pos) {
		c.logger.Info("session frozen", "session", id.String(), "position", pos.String())
	}
}

// pinned logs the freeze Join applied once the join lookup confirms it.
func (c *Coordinator) pinned(id uuid.UUID) {
	if pos, ok := c.frozen.Pinned(id); ok {
		c.logger.Info("session frozen", "session", id.String(), "position", pos.String())
	}
}

func linkError(id uuid.UUID, r *linkResult) error {
	if r.err != nil {
		code := ErrCodeStoreUnavailable
		if errors.Is(r.err, store.ErrInvalidAccount) {
			code = ErrCodeLinkRejected
		}
		return &RegistrationError{
			Code:    code,
			Message: fmt.Sprintf("link account %d", r.account),
			Session: id.String(),
			Err:     r.err,
		}
	}
	return &RegistrationError{
		Code:    ErrCodeLinkRejected,
		Message: fmt.Sprintf("link account %d: %s", r.account, r.outcome),
		Session: id.String(),
	}
}
