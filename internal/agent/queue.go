package agent

import (
	"context"
	"sync"

	"github.com/agentif/agentif/pkg/models"
)

// InputQueue is a mutex-guarded FIFO of turn inputs. The queue middleware
// and the steer middleware each drain one.
type InputQueue struct {
	mu    sync.Mutex
	items []Input
}

// Push appends an input.
func (q *InputQueue) Push(in Input) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, in)
}

// Pop removes and returns the oldest input.
func (q *InputQueue) Pop() (Input, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Input{}, false
	}
	in := q.items[0]
	q.items = q.items[1:]
	return in, true
}

// DrainAll removes and returns every queued input in order.
func (q *InputQueue) DrainAll() []Input {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued inputs.
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// queueMiddleware re-runs the inner handler for every input that arrived
// while the evaluation was in flight.
func (a *Agent) queueMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			state, err := next(ctx, tc)
			if err != nil {
				return state, err
			}
			for {
				queued, ok := a.queue.Pop()
				if !ok {
					return state, nil
				}
				tc2 := tc.clone()
				tc2.State = state
				tc2.Input = queued
				state, err = next(ctx, tc2)
				if err != nil {
					return state, err
				}
			}
		}
	}
}

// steerMiddleware drains mid-evaluation user input before the next LLM
// call: the current input and all but the last drained input are committed
// to the state, and the last drained input becomes the effective input.
func (a *Agent) steerMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, tc *TurnContext) (*models.AgentState, error) {
			drained := a.steering.DrainAll()
			if len(drained) == 0 {
				return next(ctx, tc)
			}

			committed := tc.Input.ToMessages()
			for _, in := range drained[:len(drained)-1] {
				committed = append(committed, in.ToMessages()...)
			}
			tc.State.Append(committed...)

			tc2 := tc.clone()
			tc2.Input = drained[len(drained)-1]
			return next(ctx, tc2)
		}
	}
}
