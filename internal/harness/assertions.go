package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/freeze"
	"github.com/roach88/linkgate/internal/store"
	"github.com/roach88/linkgate/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Step, event.Op, event.Session)
			if len(event.Notices) > 0 {
				fmt.Fprintf(&buf, " notices=%v", event.Notices)
			}
			fmt.Fprintf(&buf, " frozen=%v\n", event.Frozen)
		}
	}

	return buf.String()
}

// AssertionContext is what assertions may inspect after the last step.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Frozen *freeze.Registry
	Host   *testutil.RecordingHost
	Logs   *testutil.LogCapture
	IDs    map[string]uuid.UUID
	Trace  []TraceEvent
}

// EvaluateAssertions runs every assertion and returns the failure messages.
// All assertions run even when an earlier one fails.
func EvaluateAssertions(actx *AssertionContext, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(actx, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertFrozen:
		return assertFrozen(actx, a, true)
	case AssertUnfrozen:
		return assertFrozen(actx, a, false)
	case AssertLinked:
		return assertLinked(actx, a)
	case AssertUnlinked:
		return assertUnlinked(actx, a)
	case AssertFeedback:
		return assertFeedback(actx, a)
	case AssertLogContains:
		return assertLogContains(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFrozen(actx *AssertionContext, a Assertion, want bool) error {
	id := actx.IDs[a.Session]
	if actx.Frozen.IsFrozen(id) == want {
		return nil
	}
	state := func(frozen bool) string {
		if frozen {
			return "frozen"
		}
		return "unfrozen"
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s is %s", a.Session, state(want)),
		Actual:   fmt.Sprintf("%s is %s", a.Session, state(!want)),
		Trace:    actx.Trace,
	}
}

func assertLinked(actx *AssertionContext, a Assertion) error {
	account, ok, err := actx.Store.Lookup(actx.Ctx, actx.IDs[a.Session].String())
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s linked", a.Session),
			Actual:   fmt.Sprintf("lookup failed: %v", err),
			Trace:    actx.Trace,
		}
	}
	if ok && (a.Account == 0 || a.Account == account) {
		return nil
	}

	expected := fmt.Sprintf("%s linked", a.Session)
	if a.Account != 0 {
		expected = fmt.Sprintf("%s linked to %d", a.Session, a.Account)
	}
	actual := fmt.Sprintf("%s unlinked", a.Session)
	if ok {
		actual = fmt.Sprintf("%s linked to %d", a.Session, account)
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: actx.Trace}
}

func assertUnlinked(actx *AssertionContext, a Assertion) error {
	account, ok, err := actx.Store.Lookup(actx.Ctx, actx.IDs[a.Session].String())
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s unlinked", a.Session),
			Actual:   fmt.Sprintf("lookup failed: %v", err),
			Trace:    actx.Trace,
		}
	}
	if !ok {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s unlinked", a.Session),
		Actual:   fmt.Sprintf("%s linked to %d", a.Session, account),
		Trace:    actx.Trace,
	}
}

func assertFeedback(actx *AssertionContext, a Assertion) error {
	got := []string{}
	for _, kind := range actx.Host.Kinds(actx.IDs[a.Session]) {
		got = append(got, string(kind))
	}
	want := a.Kinds
	if want == nil {
		want = []string{}
	}
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s received %v", a.Session, want),
		Actual:   fmt.Sprintf("%s received %v", a.Session, got),
		Trace:    actx.Trace,
	}
}

func assertLogContains(actx *AssertionContext, a Assertion) error {
	if a.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(a.Level)); err != nil {
			return fmt.Errorf("invalid level %q: %w", a.Level, err)
		}
		if actx.Logs.Contains(level, a.Message) {
			return nil
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s log %q", level, a.Message),
			Actual:   "not logged",
			Trace:    actx.Trace,
		}
	}

	for _, r := range actx.Logs.Records() {
		if strings.Contains(r.Message, a.Message) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("log %q", a.Message),
		Actual:   "not logged",
		Trace:    actx.Trace,
	}
}
