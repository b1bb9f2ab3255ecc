package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

func contactRules(tenant string, ids ...string) *stubRules {
	s := &stubRules{}
	for _, id := range ids {
		s.rules = append(s.rules, ir.Rule{
			ID:       id,
			TenantID: tenant,
			Name:     id,
			IsActive: true,
			Trigger:  &ir.Trigger{Type: ir.TriggerContactCreated},
		})
	}
	return s
}

func contactEvent(tenant string) ir.TriggerEvent {
	return ir.TriggerEvent{
		Type:     ir.TriggerContactCreated,
		TenantID: tenant,
		Data:     ir.Object{"contactId": ir.String("C1")},
	}
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}

	parsed, err := uuid.Parse(gen.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	seen := make(map[string]bool)
	for range 500 {
		id := gen.Generate()
		require.False(t, seen[id], "run id %s generated twice", id)
		seen[id] = true
	}
}

func TestEmit_RunIDsFromGenerator(t *testing.T) {
	e := New(contactRules("T1", "r1", "r2"), actions.NewRegistry(),
		WithRunIDGenerator(NewFixedGenerator("run-a", "run-b")),
	)

	summary := e.Emit(context.Background(), contactEvent("T1"))

	require.Len(t, summary.Runs, 2)
	assert.Equal(t, "run-a", summary.Runs[0].RunID)
	assert.Equal(t, "run-b", summary.Runs[1].RunID)
	assert.Equal(t, StateCompleted, summary.Runs[0].State)
}

func TestEmit_ExhaustedGeneratorIsContained(t *testing.T) {
	e := New(contactRules("T1", "r1", "r2"), actions.NewRegistry(),
		WithRunIDGenerator(NewFixedGenerator("only-one")),
	)

	var summary Summary
	assert.NotPanics(t, func() {
		summary = e.Emit(context.Background(), contactEvent("T1"))
	})
	assert.Contains(t, summary.Error, "all ids exhausted")
}

func TestEmit_SeqIncreasesAcrossEmits(t *testing.T) {
	e := New(contactRules("T1", "r1", "r2"), actions.NewRegistry(),
		WithClock(NewClockAt(41)),
	)

	first := e.Emit(context.Background(), contactEvent("T1"))
	second := e.Emit(context.Background(), contactEvent("T1"))

	var seqs []int64
	for _, s := range []Summary{first, second} {
		for _, run := range s.Runs {
			seqs = append(seqs, run.Seq)
		}
	}
	assert.Equal(t, []int64{42, 43, 44, 45}, seqs)
}

func TestEmit_SeqUniqueUnderConcurrentEmits(t *testing.T) {
	clock := NewClock()
	e := New(contactRules("T1", "r1"), actions.NewRegistry(), WithClock(clock))

	const emits = 50
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seqs = make(map[int64]bool)
	)
	for range emits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := e.Emit(context.Background(), contactEvent("T1"))
			mu.Lock()
			defer mu.Unlock()
			for _, run := range s.Runs {
				seqs[run.Seq] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seqs, emits)
	assert.Equal(t, int64(emits), clock.Current())
}

func TestEmit_RejectedEventDoesNotAdvanceClock(t *testing.T) {
	clock := NewClock()
	e := New(contactRules("T1", "r1"), actions.NewRegistry(), WithClock(clock))

	summary := e.Emit(context.Background(), ir.TriggerEvent{Type: ir.TriggerContactCreated})

	assert.NotEmpty(t, summary.Error)
	assert.Equal(t, int64(0), clock.Current())
}
