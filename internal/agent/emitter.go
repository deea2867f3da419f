package agent

import (
	"sync/atomic"
	"time"

	"github.com/agentif/agentif/pkg/models"
)

// Emitter stamps and delivers events for one evaluation. All events emitted
// through an emitter (and its sink-wrapping derivatives) share one monotonic
// sequence.
type Emitter struct {
	sink         Sink
	seq          *atomic.Uint64
	evaluationID string
}

// NewEmitter returns an emitter delivering to sink. A nil sink discards.
func NewEmitter(sink Sink, evaluationID string) *Emitter {
	if sink == nil {
		sink = NopSink
	}
	return &Emitter{sink: sink, seq: &atomic.Uint64{}, evaluationID: evaluationID}
}

// WithSink derives an emitter whose sink is wrap(current sink). The derived
// emitter shares the sequence counter, preserving total event order. The
// channel and guardrail middlewares use this to interpose on the stream.
func (e *Emitter) WithSink(wrap func(Sink) Sink) *Emitter {
	return &Emitter{sink: wrap(e.sink), seq: e.seq, evaluationID: e.evaluationID}
}

// Emit stamps time, sequence and evaluation id, then delivers synchronously.
func (e *Emitter) Emit(ev models.AgentEvent) {
	ev.Time = float64(time.Now().UnixNano()) / float64(time.Second)
	ev.Sequence = e.seq.Add(1)
	if ev.EvaluationID == "" {
		ev.EvaluationID = e.evaluationID
	}
	if ev.Err != nil && ev.ErrText == "" {
		ev.ErrText = ev.Err.Error()
	}
	e.sink.OnEvent(ev)
}

func (e *Emitter) EvaluateStart() {
	e.Emit(models.AgentEvent{Type: models.EventEvaluateStart})
}

// EvaluateEnd carries a clone of the final state so sinks never alias live
// agent state.
func (e *Emitter) EvaluateEnd(state *models.AgentState) {
	e.Emit(models.AgentEvent{Type: models.EventEvaluateEnd, State: state.Clone()})
}

func (e *Emitter) TurnStart(turnID string) {
	e.Emit(models.AgentEvent{Type: models.EventTurnStart, TurnID: turnID})
}

// TurnEnd, like every message-carrying emit below, snapshots the message so
// sinks never hold a reference the stream keeps mutating.
func (e *Emitter) TurnEnd(turnID string, last *models.AssistantMessage, err error) {
	ev := models.AgentEvent{Type: models.EventTurnEnd, TurnID: turnID, Err: err}
	if last != nil {
		ev.Message = models.CloneMessage(last)
	}
	e.Emit(ev)
}

func (e *Emitter) MessageStart(role models.Role, msg models.Message) {
	e.Emit(models.AgentEvent{Type: models.EventMessageStart, Role: role, Message: models.CloneMessage(msg)})
}

func (e *Emitter) MessageUpdate(role models.Role, msg models.Message, kind models.UpdateKind, delta, itemID string) {
	e.Emit(models.AgentEvent{
		Type: models.EventMessageUpdate, Role: role, Message: models.CloneMessage(msg),
		Kind: kind, Delta: delta, ItemID: itemID,
	})
}

func (e *Emitter) MessageEnd(role models.Role, msg models.Message) {
	e.Emit(models.AgentEvent{Type: models.EventMessageEnd, Role: role, Message: models.CloneMessage(msg)})
}

func (e *Emitter) ToolCallRequest(call models.ToolCall) {
	e.Emit(models.AgentEvent{Type: models.EventToolCallRequest, ToolCall: &call})
}

func (e *Emitter) ToolExecutionStart(call models.ToolCall) {
	e.Emit(models.AgentEvent{Type: models.EventToolExecutionStart, ToolCall: &call})
}

func (e *Emitter) ToolExecutionEnd(call models.ToolCall, result *models.ToolResultMessage, durationMS int64) {
	ev := models.AgentEvent{
		Type: models.EventToolExecutionEnd, ToolCall: &call,
		DurationMS: durationMS,
	}
	if result != nil {
		ev.Result, _ = models.CloneMessage(result).(*models.ToolResultMessage)
	}
	e.Emit(ev)
}

func (e *Emitter) Error(err error) {
	e.Emit(models.AgentEvent{Type: models.EventAgentError, Err: err})
}
