package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/testutil"
)

// AssertionContext provides the collaborators assertions inspect.
type AssertionContext struct {
	Store     store.Records
	Messenger *testutil.RecordingMessenger
	Tenant    string
	Ctx       context.Context
}

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
		fmt.Fprintf(&buf, "\nActions:\n")
		for _, ev := range e.Trace {
			if ev.Type != TraceAction {
				continue
			}
			outcome := "ok"
			if !ev.Success {
				outcome = "failed: " + ev.Error
			}
			fmt.Fprintf(&buf, "  [%d] %s/%s %s\n", ev.Seq, ev.Rule, ev.Action, outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertSent:
		return assertSent(actx.Messenger.Sends(), a)
	case AssertSentCount:
		return assertSentCount(actx.Messenger.Sends(), a)
	case AssertActionOrder:
		return assertActionOrder(result.Trace, a)
	case AssertActionCount:
		return assertActionCount(result.Trace, a)
	case AssertTaskExists:
		return assertTaskExists(actx, a)
	case AssertContactTags:
		return assertContactTags(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertSent checks that at least one recorded send matches the non-empty
// channel, to and subject of the assertion.
func assertSent(sends []testutil.Send, a Assertion) error {
	for _, s := range sends {
		if matchField(a.Channel, s.Channel) && matchField(a.To, s.To) && matchField(a.Subject, s.Subject) {
			return nil
		}
	}
	got := make([]string, len(sends))
	for i, s := range sends {
		got[i] = fmt.Sprintf("%s to %s %q", s.Channel, s.To, s.Subject)
	}
	return &AssertionError{
		Type:     AssertSent,
		Expected: fmt.Sprintf("send channel=%q to=%q subject=%q", a.Channel, a.To, a.Subject),
		Actual:   fmt.Sprintf("sends: %v", got),
	}
}

func matchField(want, got string) bool {
	return want == "" || want == got
}

func assertSentCount(sends []testutil.Send, a Assertion) error {
	if len(sends) != a.Count {
		return &AssertionError{
			Type:     AssertSentCount,
			Expected: fmt.Sprintf("%d sends", a.Count),
			Actual:   fmt.Sprintf("%d sends", len(sends)),
		}
	}
	return nil
}

// assertActionOrder checks that action types first ran in the given
// relative order. Other actions may run in between.
func assertActionOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Type != TraceAction {
			continue
		}
		name := string(ev.Action)
		if _, seen := positions[name]; !seen {
			positions[name] = i + 1
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertActionOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertActionOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertActionCount checks that the action type ran exactly Count times,
// successful or not.
func assertActionCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == TraceAction && string(ev.Action) == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertActionCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertTaskExists(actx *AssertionContext, a Assertion) error {
	tasks, err := actx.Store.ListTasks(actx.Ctx, actx.Tenant)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	titles := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.Title == a.Title && matchField(a.Contact, task.ContactID) {
			return nil
		}
		titles = append(titles, task.Title)
	}
	return &AssertionError{
		Type:     AssertTaskExists,
		Expected: fmt.Sprintf("task %q for contact %q", a.Title, a.Contact),
		Actual:   fmt.Sprintf("tasks: %v", titles),
	}
}

func assertContactTags(actx *AssertionContext, a Assertion) error {
	tags, err := actx.Store.ListContactTags(actx.Ctx, actx.Tenant, a.Contact)
	if err != nil {
		return fmt.Errorf("list contact tags: %w", err)
	}
	got := make([]string, len(tags))
	for i, tag := range tags {
		got[i] = tag.Name
	}
	want := slices.Clone(a.Tags)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertContactTags,
			Expected: fmt.Sprintf("contact %s tags %v", a.Contact, want),
			Actual:   fmt.Sprintf("tags %v", got),
		}
	}
	return nil
}
