package providers

import (
	"bufio"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/pkg/models"
)

// canonicalStopReason maps a provider finish reason onto the canonical set.
// Tool calls on the message win over whatever the provider reported.
func canonicalStopReason(raw string, hasToolCalls bool) models.StopReason {
	if hasToolCalls {
		return models.StopReasonToolCalls
	}
	switch strings.ToLower(raw) {
	case "", "stop", "end_turn", "stop_sequence", "completed":
		return models.StopReasonStop
	case "tool_calls", "function_call", "tool_use":
		return models.StopReasonToolCalls
	case "length", "max_tokens", "max_output_tokens", "incomplete":
		return models.StopReasonLength
	case "content_filter":
		return models.StopReasonContentFilter
	case "safety", "recitation", "blocklist", "prohibited_content", "spii":
		return models.StopReasonSafety
	case "error":
		return models.StopReasonError
	default:
		return models.StopReasonOther
	}
}

// messageAssembler reconstructs the assistant message from stream deltas and
// mirrors each step onto the emitter. MessageStart fires lazily with the
// first content, so empty streams emit nothing.
type messageAssembler struct {
	emitter *agent.Emitter
	abort   *agent.Abort
	msg     *models.AssistantMessage
	started bool
	ended   bool
}

func newAssembler(req *agent.StreamRequest) *messageAssembler {
	return &messageAssembler{
		emitter: req.Emitter,
		abort:   req.Abort,
		msg:     models.NewAssistantMessage(req.Model),
	}
}

func (a *messageAssembler) start() {
	if a.started {
		return
	}
	a.started = true
	a.emitter.MessageStart(models.RoleAssistant, a.msg)
}

func (a *messageAssembler) text(delta string) {
	if delta == "" {
		return
	}
	a.start()
	a.msg.AppendText(delta, "")
	a.emitter.MessageUpdate(models.RoleAssistant, a.msg, models.UpdateText, delta, "")
}

func (a *messageAssembler) thinking(delta, signature string) {
	if delta == "" && signature == "" {
		return
	}
	a.start()
	a.msg.AppendThinking(delta, signature)
	if delta != "" {
		a.emitter.MessageUpdate(models.RoleAssistant, a.msg, models.UpdateReasoning, delta, "")
	}
}

func (a *messageAssembler) toolArguments(delta, itemID string) {
	if delta == "" {
		return
	}
	a.start()
	a.emitter.MessageUpdate(models.RoleAssistant, a.msg, models.UpdateToolArguments, delta, itemID)
}

func (a *messageAssembler) refusal(delta string) {
	if delta == "" {
		return
	}
	a.start()
	a.emitter.MessageUpdate(models.RoleAssistant, a.msg, models.UpdateRefusal, delta, "")
}

// toolCall finalizes one accumulated tool call. Empty arguments become "{}"
// and a missing id is synthesized so the pairing invariant can always hold.
func (a *messageAssembler) toolCall(id, name, arguments, signature string) {
	if name == "" {
		return
	}
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	a.start()
	a.msg.AddToolCall(id, name, arguments, signature)
	a.emitter.ToolCallRequest(models.ToolCall{ID: id, Name: name, Arguments: arguments})
}

func (a *messageAssembler) end() {
	if !a.started || a.ended {
		return
	}
	a.ended = true
	a.emitter.MessageEnd(models.RoleAssistant, a.msg)
}

// checkAbort closes any open message before surfacing the abort.
func (a *messageAssembler) checkAbort() error {
	if err := a.abort.Check(); err != nil {
		a.end()
		return err
	}
	return nil
}

func (a *messageAssembler) result(rawStop string, usage models.Usage, responseID string) *agent.StreamResult {
	a.end()
	return &agent.StreamResult{
		Message:    a.msg,
		Usage:      usage,
		StopReason: canonicalStopReason(rawStop, len(a.msg.ToolCalls) > 0),
		ResponseID: responseID,
	}
}

// scanSSE reads a Server-Sent-Events body, invoking handler once per event
// with the event type (possibly empty) and joined data lines.
func scanSSE(r io.Reader, handler func(eventType, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var eventType string
	var dataLines []string
	flush := func() error {
		if eventType == "" && len(dataLines) == 0 {
			return nil
		}
		err := handler(eventType, strings.Join(dataLines, "\n"))
		eventType = ""
		dataLines = nil
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// Comments, id: and retry: lines are ignored.
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}
