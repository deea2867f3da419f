package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/agentif/agentif/internal/agent"
	"github.com/agentif/agentif/internal/backoff"
	"github.com/agentif/agentif/pkg/models"
)

const (
	// DefaultTimeout bounds one HTTP attempt, stream consumption included.
	DefaultTimeout = 10 * time.Minute

	// DefaultMaxAttempts is the per-call attempt cap when retry is enabled.
	DefaultMaxAttempts = 3
)

// adapter is one provider wire protocol.
type adapter interface {
	stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error)
}

// Dispatcher routes stream requests to the adapter matching the model's API
// and retries transient failures. It implements agent.Streamer.
type Dispatcher struct {
	logger *slog.Logger
	client *http.Client
	retry  backoff.Policy
}

// NewDispatcher builds a dispatcher sharing one transport across adapters.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		client: &http.Client{},
		retry:  backoff.Default(),
	}
}

// Stream validates the request, picks the adapter for the model's API and
// runs the call, retrying transient errors as long as nothing has been
// emitted yet. Structural problems come back fatal.
func (d *Dispatcher) Stream(ctx context.Context, req *agent.StreamRequest) (*agent.StreamResult, error) {
	if req.Model.ID == "" {
		return nil, agent.Fatal(&MissingModelError{})
	}
	if req.APIKey == "" {
		return nil, agent.Fatal(&MissingAPIKeyError{Provider: req.Model.Provider})
	}
	if req.Emitter == nil {
		req.Emitter = agent.NewEmitter(nil, "")
	}

	a, err := d.adapterFor(req.Model.API)
	if err != nil {
		return nil, err
	}

	timeout := req.HTTP.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Once any event has reached the caller a retry would replay part of the
	// message, so retries are cut off at the first emission.
	var emitted atomic.Bool
	inner := req.Emitter
	req.Emitter = inner.WithSink(func(next agent.Sink) agent.Sink {
		return agent.SinkFunc(func(ev models.AgentEvent) {
			emitted.Store(true)
			next.OnEvent(ev)
		})
	})

	maxAttempts := req.HTTP.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if req.HTTP.DisableRetry {
		maxAttempts = 1
	}

	retryable := func(err error) bool {
		return !emitted.Load() && IsRetryable(err)
	}

	return backoff.Retry(ctx, d.retry, maxAttempts, retryable, func(attempt int) (*agent.StreamResult, error) {
		if attempt > 1 {
			d.logger.Warn("retrying provider call",
				"provider", req.Model.Provider,
				"model", req.Model.ID,
				"attempt", attempt)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res, err := a.stream(attemptCtx, req)
		if err != nil {
			d.logger.Error("provider call failed",
				"provider", req.Model.Provider,
				"model", req.Model.ID,
				"attempt", attempt,
				"error", err)
			return nil, err
		}
		return res, nil
	})
}

func (d *Dispatcher) adapterFor(api models.API) (adapter, error) {
	switch api {
	case models.APIOpenAICompletions:
		return &completionsAdapter{httpClient: d.client}, nil
	case models.APIOpenAIResponses:
		return &responsesAdapter{httpClient: d.client}, nil
	case models.APIAnthropicMessages:
		return &anthropicAdapter{httpClient: d.client}, nil
	case models.APIGoogleGenerativeAI:
		return &googleAdapter{httpClient: d.client}, nil
	case models.APIGoogleGeminiCLI:
		return &geminiCLIAdapter{httpClient: d.client}, nil
	default:
		return nil, agent.Fatal(&UnsupportedAPIError{API: api})
	}
}

// headerTransport injects fixed headers into every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// clientWithHeaders wraps base so every request carries the model's extra
// headers. SDK clients without a per-request header hook go through this.
func clientWithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return base
	}
	return derivedClient(base, &headerTransport{base: baseTransport(base), headers: headers})
}

// bodyFieldTransport injects one top-level JSON field into POST bodies.
// Vendor request fields the upstream SDK has no struct slot for (ZAI's
// "thinking") go through this.
type bodyFieldTransport struct {
	base  http.RoundTripper
	field string
	value json.RawMessage
}

func (t *bodyFieldTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil {
		return t.base.RoundTrip(req)
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	var payload map[string]json.RawMessage
	if json.Unmarshal(body, &payload) == nil {
		payload[t.field] = t.value
		if rewritten, err := json.Marshal(payload); err == nil {
			body = rewritten
		}
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return t.base.RoundTrip(out)
}

func clientWithBodyField(base *http.Client, field string, value json.RawMessage) *http.Client {
	return derivedClient(base, &bodyFieldTransport{base: baseTransport(base), field: field, value: value})
}

func baseTransport(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

func derivedClient(base *http.Client, transport http.RoundTripper) *http.Client {
	return &http.Client{
		Transport:     transport,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
}
