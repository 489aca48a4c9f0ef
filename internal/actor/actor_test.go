package actor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chorus-dev/chorus/internal/actor"
	"github.com/chorus-dev/chorus/internal/actor/actortest"
)

// Test fixture: a counter that asks its runtime to fetch a value when it
// reaches a threshold.

type counterState struct {
	Count   int
	Fetched string
}

type cmdIncrement struct {
	actor.InputBase
	By int
}

type evFetched struct {
	actor.InputBase
	Value string
}

type effFetch struct {
	actor.EffectBase
	AtCount int
}

func reduceCounter(state counterState, input actor.Input) (counterState, []actor.Effect) {
	switch in := input.(type) {
	case cmdIncrement:
		state.Count += in.By
		if state.Count >= 3 && state.Fetched == "" {
			return state, []actor.Effect{effFetch{AtCount: state.Count}}
		}
		return state, nil
	case evFetched:
		state.Fetched = in.Value
		return state, nil
	default:
		return state, nil
	}
}

func waitForState(t *testing.T, a *actor.Actor[counterState], cond func(counterState) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(a.State()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(a.State()))
}

func TestActor_ProcessesInputsInOrder(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New(counterState{}, reduceCounter, rt)
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(cmdIncrement{By: 1}))
	require.True(t, a.Enqueue(cmdIncrement{By: 1}))

	waitForState(t, a, func(s counterState) bool { return s.Count == 2 })
	require.Empty(t, rt.Effects(), "no effect below the threshold")
}

func TestActor_EffectsFlowThroughRuntimeBackToMailbox(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{
		EmitFn: func(ctx context.Context, eff actor.Effect, emit func(actor.Input)) {
			if _, ok := eff.(effFetch); ok {
				emit(evFetched{Value: "ready"})
			}
		},
	}
	a := actor.New(counterState{}, reduceCounter, rt)
	a.Start()
	defer a.Stop()

	a.Enqueue(cmdIncrement{By: 3})

	waitForState(t, a, func(s counterState) bool { return s.Fetched == "ready" })

	effects := rt.Effects()
	require.Len(t, effects, 1)
	require.Equal(t, effFetch{AtCount: 3}, effects[0])
}

func TestActor_StopRejectsFurtherInputs(t *testing.T) {
	t.Parallel()

	a := actor.New(counterState{}, reduceCounter, &actortest.FakeRuntime{})
	a.Start()
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("actor loop did not exit after Stop")
	}
	require.False(t, a.Enqueue(cmdIncrement{By: 1}))
}

func TestActor_HooksObserveTransitions(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions int
	var observedEffects []actor.Effect

	hooks := actor.Hooks[counterState]{
		OnTransition: func(prev, next counterState, input actor.Input) {
			mu.Lock()
			transitions++
			mu.Unlock()
		},
		OnEffects: func(effects []actor.Effect) {
			mu.Lock()
			observedEffects = append(observedEffects, effects...)
			mu.Unlock()
		},
	}

	a := actor.New(counterState{}, reduceCounter, &actortest.FakeRuntime{}, actor.WithHooks(hooks))
	a.Start()
	defer a.Stop()

	a.Enqueue(cmdIncrement{By: 3})
	waitForState(t, a, func(s counterState) bool { return s.Count == 3 })

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, transitions)
	require.Len(t, observedEffects, 1)
}

func TestActor_StateSnapshotIsStable(t *testing.T) {
	t.Parallel()

	a := actor.New(counterState{}, reduceCounter, &actortest.FakeRuntime{})
	a.Start()
	defer a.Stop()

	a.Enqueue(cmdIncrement{By: 1})
	waitForState(t, a, func(s counterState) bool { return s.Count == 1 })

	snap := a.State()
	a.Enqueue(cmdIncrement{By: 1})
	waitForState(t, a, func(s counterState) bool { return s.Count == 2 })
	require.Equal(t, 1, snap.Count, "earlier snapshot unaffected by later inputs")
}

func TestStep(t *testing.T) {
	t.Parallel()

	next, effects := actor.Step(counterState{Count: 2}, cmdIncrement{By: 1}, reduceCounter)
	require.Equal(t, 3, next.Count)
	require.Len(t, effects, 1)
}
