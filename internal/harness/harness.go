package harness

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/channel"
	"github.com/roach88/linkgate/internal/engine"
	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/store"
	"github.com/roach88/linkgate/internal/testutil"
)

// FixedTime is the wall clock seen by the store during scenarios.
var FixedTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// DefaultWorld is the world of every scenario position.
const DefaultWorld = "world"

// syncTimeout bounds the wait for the coordinator to go idle after a step.
const syncTimeout = 5 * time.Second

// Harness is the test execution engine. It owns one coordinator wired to
// recording collaborators for the lifetime of a scenario.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	coord    *engine.Coordinator
	frozen   *freeze.Registry
	host     *testutil.RecordingHost
	logs     *testutil.LogCapture

	ids     map[string]uuid.UUID
	aliases map[uuid.UUID]string

	// seen is the number of host notices already attributed to a step.
	seen int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and seed links
// 2. Close the database if the scenario takes the store down
// 3. Start a coordinator and play each step, waiting for it to go idle
// 4. Read back final links and evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithClock(func() time.Time { return FixedTime }))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(scenario, st)

	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed links: %w", err)
	}
	if scenario.StoreDown {
		st.Close()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.play(runCtx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		result.Trace = append(result.Trace, event)
	}

	if !scenario.StoreDown {
		if err := h.collectLinks(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to read links: %w", err)
		}
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  st,
		Frozen: h.frozen,
		Host:   h.host,
		Logs:   h.logs,
		IDs:    h.ids,
		Trace:  result.Trace,
	}
	for _, errMsg := range EvaluateAssertions(actx, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store) *Harness {
	logs, logger := testutil.NewLogCapture()
	h := &Harness{
		scenario: scenario,
		store:    st,
		frozen:   freeze.NewRegistry(),
		host:     testutil.NewRecordingHost(),
		logs:     logs,
		ids:      make(map[string]uuid.UUID, len(scenario.Sessions)),
		aliases:  make(map[uuid.UUID]string, len(scenario.Sessions)),
	}
	for alias, def := range scenario.Sessions {
		id := uuid.MustParse(def.ID)
		h.ids[alias] = id
		h.aliases[id] = alias
	}
	h.coord = engine.New(st, h.frozen, h.host, engine.WithLogger(logger))
	return h
}

// seed stores the scenario's pre-existing links.
func (h *Harness) seed(ctx context.Context) error {
	for _, l := range h.scenario.Links {
		def := h.scenario.Sessions[l.Session]
		if err := h.store.Touch(ctx, def.ID, def.Name); err != nil {
			return err
		}
		outcome, err := h.store.TryLink(ctx, def.ID, l.Account)
		if err != nil {
			return err
		}
		if outcome != store.LinkApplied {
			return fmt.Errorf("link %s to %d: %s", l.Session, l.Account, outcome)
		}
	}
	return nil
}

// play delivers one step and records its effects once the coordinator is idle.
func (h *Harness) play(ctx context.Context, n int, step Step) (TraceEvent, error) {
	id := h.ids[step.Session]
	pos := position(step.Pos)
	event := TraceEvent{Step: n, Op: step.Op, Session: step.Session}

	accepted := true
	switch step.Op {
	case OpJoin:
		accepted = h.coord.Join(id, h.scenario.Sessions[step.Session].Name, pos)

	case OpMove:
		pin, blocked := h.coord.InterceptMove(id, pos)
		if !blocked {
			pin = pos
		}
		event.Move = &MoveTrace{Allowed: !blocked, Pos: [3]float64{pin.X, pin.Y, pin.Z}}

	case OpCommand:
		accepted = h.coord.Command(id, step.Command, pos)

	case OpMessage:
		payload, err := h.payload(step)
		if err != nil {
			return event, err
		}
		name := step.Channel
		if name == "" {
			name = channel.Name
		}
		accepted = h.coord.Message(id, name, payload)

	case OpDisconnect:
		accepted = h.coord.Disconnect(id)

	default:
		return event, fmt.Errorf("unknown op %q", step.Op)
	}

	if !accepted {
		return event, engine.ErrStopped
	}

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := h.coord.Sync(syncCtx); err != nil {
		return event, fmt.Errorf("wait for coordinator: %w", err)
	}

	notices := h.host.Notices()
	for _, notice := range notices[h.seen:] {
		event.Notices = append(event.Notices, h.aliases[notice.Session]+":"+string(notice.Feedback.Kind))
	}
	h.seen = len(notices)

	event.Frozen = []string{}
	for alias, sid := range h.ids {
		if h.frozen.IsFrozen(sid) {
			event.Frozen = append(event.Frozen, alias)
		}
	}
	slices.Sort(event.Frozen)

	return event, nil
}

// payload builds the bytes a message step sends.
func (h *Harness) payload(step Step) ([]byte, error) {
	if step.Payload != "" {
		return base64.StdEncoding.DecodeString(step.Payload)
	}

	claimed := step.Claims
	if def, ok := h.scenario.Sessions[claimed]; ok {
		claimed = def.ID
	}
	return channel.Encode(channel.Assertion{AccountID: step.Account, SessionID: claimed})
}

func (h *Harness) collectLinks(ctx context.Context, result *Result) error {
	for alias, id := range h.ids {
		account, _, err := h.store.Lookup(ctx, id.String())
		if err != nil {
			return err
		}
		result.Links[alias] = account
	}
	return nil
}

func position(p []float64) freeze.Position {
	if len(p) != 3 {
		return freeze.Position{World: DefaultWorld}
	}
	return freeze.Position{World: DefaultWorld, X: p[0], Y: p[1], Z: p[2]}
}
