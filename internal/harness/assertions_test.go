package harness

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgate/internal/engine"
	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/store"
	"github.com/roach88/linkgate/internal/testutil"
)

func newAssertionContext(t *testing.T) *AssertionContext {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logs, _ := testutil.NewLogCapture()
	return &AssertionContext{
		Ctx:    context.Background(),
		Store:  st,
		Frozen: freeze.NewRegistry(),
		Host:   testutil.NewRecordingHost(),
		Logs:   logs,
		IDs: map[string]uuid.UUID{
			"steve": uuid.MustParse(steveID),
			"alex":  uuid.MustParse(alexID),
		},
		Trace: []TraceEvent{{Step: 1, Op: OpJoin, Session: "steve", Frozen: []string{"steve"}}},
	}
}

func TestAssertFrozen(t *testing.T) {
	actx := newAssertionContext(t)
	actx.Frozen.Freeze(actx.IDs["steve"], freeze.Position{})

	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertFrozen, Session: "steve"}))
	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertUnfrozen, Session: "alex"}))

	err := evaluateAssertion(actx, Assertion{Type: AssertUnfrozen, Session: "steve"})
	require.Error(t, err)

	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, AssertUnfrozen, assertErr.Type)
	assert.Equal(t, "steve is unfrozen", assertErr.Expected)
	assert.Equal(t, "steve is frozen", assertErr.Actual)
}

func TestAssertLinked(t *testing.T) {
	actx := newAssertionContext(t)
	ctx := context.Background()
	require.NoError(t, actx.Store.Touch(ctx, steveID, "Steve"))
	_, err := actx.Store.TryLink(ctx, steveID, 555)
	require.NoError(t, err)

	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertLinked, Session: "steve"}))
	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertLinked, Session: "steve", Account: 555}))
	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertUnlinked, Session: "alex"}))

	err = evaluateAssertion(actx, Assertion{Type: AssertLinked, Session: "steve", Account: 777})
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "steve linked to 777", assertErr.Expected)
	assert.Equal(t, "steve linked to 555", assertErr.Actual)

	err = evaluateAssertion(actx, Assertion{Type: AssertUnlinked, Session: "steve"})
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "steve linked to 555", assertErr.Actual)

	err = evaluateAssertion(actx, Assertion{Type: AssertLinked, Session: "alex"})
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "alex unlinked", assertErr.Actual)
}

func TestAssertFeedback(t *testing.T) {
	actx := newAssertionContext(t)
	steve := actx.IDs["steve"]
	actx.Host.Notify(steve, engine.Feedback{Kind: engine.FeedbackMustRegister})
	actx.Host.Notify(actx.IDs["alex"], engine.Feedback{Kind: engine.FeedbackToken})
	actx.Host.Notify(steve, engine.Feedback{Kind: engine.FeedbackLinked})

	assert.NoError(t, evaluateAssertion(actx, Assertion{
		Type: AssertFeedback, Session: "steve", Kinds: []string{"must_register", "linked"},
	}))

	err := evaluateAssertion(actx, Assertion{
		Type: AssertFeedback, Session: "steve", Kinds: []string{"linked"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[must_register linked]")
}

func TestAssertFeedback_NoneExpected(t *testing.T) {
	actx := newAssertionContext(t)
	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertFeedback, Session: "steve"}))
}

func TestAssertLogContains(t *testing.T) {
	actx := newAssertionContext(t)
	logger := slog.New(actx.Logs)
	logger.Warn("registration identity mismatch", "session", steveID)

	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertLogContains, Message: "identity mismatch"}))
	assert.NoError(t, evaluateAssertion(actx, Assertion{Type: AssertLogContains, Message: "identity mismatch", Level: "warn"}))
	assert.Error(t, evaluateAssertion(actx, Assertion{Type: AssertLogContains, Message: "identity mismatch", Level: "error"}))
	assert.Error(t, evaluateAssertion(actx, Assertion{Type: AssertLogContains, Message: "session registered"}))

	err := evaluateAssertion(actx, Assertion{Type: AssertLogContains, Message: "x", Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid level "loud"`)
}

func TestEvaluateAssertions_CollectsAll(t *testing.T) {
	actx := newAssertionContext(t)

	failures := EvaluateAssertions(actx, []Assertion{
		{Type: AssertFrozen, Session: "steve"},
		{Type: AssertUnfrozen, Session: "steve"},
		{Type: AssertLogContains, Message: "never"},
	})

	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "assertions[0]")
	assert.Contains(t, failures[1], "assertions[2]")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertFrozen,
		Expected: "steve is frozen",
		Actual:   "steve is unfrozen",
		Trace: []TraceEvent{
			{Step: 1, Op: OpJoin, Session: "steve", Notices: []string{"steve:must_register"}, Frozen: []string{"steve"}},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: frozen")
	assert.Contains(t, msg, "Expected: steve is frozen")
	assert.Contains(t, msg, "Actual: steve is unfrozen")
	assert.Contains(t, msg, "[1] join steve notices=[steve:must_register] frozen=[steve]")
}
