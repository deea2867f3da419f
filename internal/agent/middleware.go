package agent

import (
	"context"

	"github.com/agentif/agentif/pkg/models"
)

// TurnContext carries everything one handler invocation needs. Middlewares
// derive modified copies via clone rather than mutating shared fields.
type TurnContext struct {
	Agent   *Agent
	State   *models.AgentState
	Input   Input
	Emitter *Emitter
	Abort   *Abort
	TurnID  string
}

func (tc *TurnContext) clone() *TurnContext {
	cp := *tc
	return &cp
}

// Handler runs one evaluation step and returns the updated state.
type Handler func(ctx context.Context, tc *TurnContext) (*models.AgentState, error)

// Middleware wraps a handler. The outermost middleware runs first on the way
// in and last on the way out.
type Middleware func(next Handler) Handler

// Chain composes middlewares outer-to-inner: Chain(a, b, c)(h) behaves as
// a(b(c(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Input is the turn input handed to the pipeline: bare user text, prebuilt
// messages, or the tool results feeding the next loop iteration.
type Input struct {
	Text     string
	Messages models.MessageList
}

// TextInput wraps bare user text.
func TextInput(text string) Input { return Input{Text: text} }

// MessagesInput wraps prebuilt messages.
func MessagesInput(msgs ...models.Message) Input {
	return Input{Messages: models.MessageList(msgs)}
}

// IsEmpty reports whether the input carries nothing.
func (in Input) IsEmpty() bool { return in.Text == "" && len(in.Messages) == 0 }

// ToMessages renders the input as messages to append to the state.
func (in Input) ToMessages() models.MessageList {
	if in.Text != "" {
		return models.MessageList{models.NewUserMessage(in.Text)}
	}
	return in.Messages
}

// GuardText extracts the string-ish content the input guardrail inspects.
// Tool-result inputs bypass the guardrail entirely (ok=false).
func (in Input) GuardText() (text string, ok bool) {
	if in.Text != "" {
		return in.Text, true
	}
	var out string
	found := false
	for _, m := range in.Messages {
		switch msg := m.(type) {
		case *models.ToolResultMessage:
			return "", false
		case *models.UserMessage:
			out += models.MessageText(msg)
			found = true
		}
	}
	return out, found
}
