package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// ToolFunc executes one tool call and returns its textual result.
type ToolFunc func(ctx context.Context, args string) (string, error)

// Request is one orchestrated chat turn.
type Request struct {
	// Message is the user turn to append before sending. Empty means
	// re-send the existing history as-is.
	Message string

	// Conversation is the history to build on. A nil conversation starts
	// fresh with the service defaults.
	Conversation *agentflow.Conversation

	// Tools are the tool specs offered to the model for this turn.
	Tools []ToolSpec

	// Emitter receives streaming events. Nil disables event emission.
	Emitter *event.Emitter

	// ResponseSchema, when set, constrains the model to structured output.
	ResponseSchema map[string]any

	// Provider and Model override the conversation's routing for this
	// turn only.
	Provider string
	Model    string

	// SkipHistory sends the turn without recording the user message or
	// the assistant reply in the returned conversation, and suppresses
	// chunk events. Used for side-channel requests like summarization
	// and classification.
	SkipHistory bool
}

// Result is the outcome of one orchestrated turn.
type Result struct {
	// Text is the full assistant response, possibly partial after a
	// cancellation.
	Text string

	// Conversation is the updated history.
	Conversation *agentflow.Conversation

	// Usage is the final token accounting. Estimated after cancellation.
	Usage Usage

	// Cancelled reports that the stream was cut short by cancellation.
	// Cancellation is an outcome, not an error.
	Cancelled bool
}

// Service orchestrates chat turns end to end: provider resolution,
// credentials, history, wire formatting, client-side rate limiting,
// retry with backoff, tool execution under policy, and event emission.
type Service struct {
	adapters *registry.Registry[string, Adapter]
	tools    *registry.Registry[string, ToolFunc]
	keys     KeyStore
	tracker  *Tracker
	retry    config.RetryConfig
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	defaultProvider string
	defaultModel    string
	maxFileReads    int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithKeyStore sets the credential source. Defaults to environment
// variables.
func WithKeyStore(ks KeyStore) ServiceOption {
	return func(s *Service) { s.keys = ks }
}

// WithTracker sets the client-side rate limiter. Nil disables proactive
// throttling.
func WithTracker(t *Tracker) ServiceOption {
	return func(s *Service) { s.tracker = t }
}

// WithRetry sets the retry policy for rate-limited attempts.
func WithRetry(rc config.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = rc }
}

// WithTools sets the executable tool registry.
func WithTools(tools *registry.Registry[string, ToolFunc]) ServiceOption {
	return func(s *Service) { s.tools = tools }
}

// WithServiceLogger sets the structured logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceMetrics sets the metrics recorder.
func WithServiceMetrics(m observability.MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceSpans sets the span manager.
func WithServiceSpans(sm observability.SpanManager) ServiceOption {
	return func(s *Service) { s.spans = sm }
}

// WithDefaults sets the fallback provider and model for conversations that
// carry neither.
func WithDefaults(provider, model string) ServiceOption {
	return func(s *Service) {
		s.defaultProvider = provider
		s.defaultModel = model
	}
}

// WithMaxFileReads caps per-request repeated file reads in the tool loop.
func WithMaxFileReads(n int) ServiceOption {
	return func(s *Service) { s.maxFileReads = n }
}

// NewService returns a Service backed by the given adapter registry.
func NewService(adapters *registry.Registry[string, Adapter], opts ...ServiceOption) *Service {
	eng := config.DefaultEngine()
	s := &Service{
		adapters:        adapters,
		tools:           registry.New[string, ToolFunc](),
		keys:            EnvKeyStore{},
		retry:           eng.Retry,
		logger:          slog.Default(),
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
		defaultProvider: eng.DefaultProvider,
		defaultModel:    eng.DefaultModel,
		maxFileReads:    10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat runs one orchestrated turn. Cancellation mid-stream is not an
// error: the partial text is returned with estimated usage and the
// Cancelled flag set.
func (s *Service) Chat(ctx context.Context, req Request) (Result, error) {
	conv := req.Conversation
	if conv == nil {
		conv = &agentflow.Conversation{}
	}

	provider := firstNonEmpty(req.Provider, conv.Provider, s.defaultProvider)
	model := firstNonEmpty(req.Model, conv.Model, s.defaultModel)

	adapter, ok := s.adapters.Get(provider)
	if !ok {
		return Result{}, &ProviderError{Provider: provider, Model: model, Err: ErrUnknownProvider}
	}

	key, err := s.keys.Key(provider)
	if err != nil {
		return Result{}, &ProviderError{Provider: provider, Model: model, Err: err}
	}

	working := conv.WithProviderModel(provider, model)
	if req.Message != "" {
		working = working.WithMessage(agentflow.RoleUser, req.Message)
	}
	if len(working.Messages) == 0 {
		return Result{}, ErrNoMessage
	}

	em := req.Emitter.WithProviderModel(provider, model)

	system, wireMsgs := formatConversation(provider, working.System, working.Messages)
	sreq := StreamRequest{
		Model:           model,
		System:          system,
		Messages:        wireMsgs,
		Tools:           req.Tools,
		Temperature:     working.Temperature,
		ReasoningEffort: working.ReasoningEffort,
		ResponseSchema:  req.ResponseSchema,
		APIKey:          key,
	}

	// Proactive throttle before the first attempt.
	if wait, werr := s.tracker.CheckAndWait(ctx, provider, model); werr != nil {
		return s.cancelledResult(ctx, req, working, em, "", sreq)
	} else if wait > 0 {
		em.RateLimitWait(0, wait)
		s.metrics.RecordRateLimitWait(ctx, provider, model, wait)
		observability.LogRateLimitWait(s.logger, provider, model, 0, wait)
	}

	text, usage, err := s.streamWithRetry(ctx, adapter, sreq, req, em, provider, model)
	if err != nil {
		if isCancellation(ctx, err) {
			return s.cancelledResult(ctx, req, working, em, text, sreq)
		}
		perr := &ProviderError{Provider: provider, Model: model, Err: err}
		em.Error(perr)
		return Result{}, perr
	}

	em.Usage(event.UsagePayload{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.Total(),
		Estimated:    usage.Estimated,
	})
	if usage.CacheRead > 0 || usage.CacheWrite > 0 || usage.ReasoningTokens > 0 {
		em.UsageBreakdown(event.UsageBreakdownPayload{
			CacheReadTokens:  usage.CacheRead,
			CacheWriteTokens: usage.CacheWrite,
			ReasoningTokens:  usage.ReasoningTokens,
		})
	}
	s.metrics.RecordTokens(ctx, provider, model, usage.InputTokens, usage.OutputTokens, usage.Estimated)

	result := Result{Text: text, Usage: usage, Conversation: conv}
	if !req.SkipHistory {
		result.Conversation = working.WithMessage(agentflow.RoleAssistant, text)
	}
	return result, nil
}

// streamWithRetry sends the request, retrying with exponential backoff on
// rate-limit failures only. Attempt numbers in emitted rate-limit events
// start at 1; attempt 0 is reserved for the proactive pre-send wait.
func (s *Service) streamWithRetry(ctx context.Context, adapter Adapter, sreq StreamRequest, req Request, em *event.Emitter, provider, model string) (string, Usage, error) {
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.retry.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, usage, err := s.streamOnce(ctx, adapter, sreq, req, em, provider, model)
		if err == nil || !IsRateLimit(err) || ctx.Err() != nil {
			return text, usage, err
		}
		lastErr = err

		s.tracker.UpdateFromError(provider, model, err)
		if attempt == attempts {
			break
		}

		wait := backoff
		var rle *RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > wait {
			wait = rle.RetryAfter
		}

		em.RateLimitWait(attempt, wait)
		s.metrics.RecordRateLimitWait(ctx, provider, model, wait)
		observability.LogRateLimitWait(s.logger, provider, model, attempt, wait)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", Usage{}, ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * s.retry.BackoffFactor)
		if s.retry.MaxBackoff > 0 && backoff > s.retry.MaxBackoff {
			backoff = s.retry.MaxBackoff
		}
	}
	return "", Usage{}, lastErr
}

// streamOnce sends one attempt and drains the stream.
func (s *Service) streamOnce(ctx context.Context, adapter Adapter, sreq StreamRequest, req Request, em *event.Emitter, provider, model string) (string, Usage, error) {
	llmCtx, span := s.spans.StartLLMSpan(ctx, provider, model)
	start := time.Now()

	policy := NewToolPolicy(s.maxFileReads)

	var (
		full      strings.Builder
		lastUsage Usage
		sawUsage  bool
	)

	cb := Callbacks{
		OnChunk: func(text string) {
			if text == "" {
				return
			}
			// Some backends close the stream by re-sending the whole
			// response as one final chunk. Swallow it.
			if full.Len() > 0 && text == full.String() {
				return
			}
			full.WriteString(text)
			// Classification and other internal turns set SkipHistory;
			// their output must not reach the user-visible stream.
			if !req.SkipHistory {
				em.Chunk(text)
			}
		},
		OnToolCall: func(call ToolCall) ToolResult {
			return s.runTool(llmCtx, call, policy, em)
		},
		OnUsage: func(u Usage) {
			lastUsage = u
			sawUsage = true
		},
	}

	s.tracker.RecordRequest(provider, model)

	handle, err := adapter.StreamChat(llmCtx, sreq, cb)
	if err != nil {
		s.finishLLM(ctx, span, provider, model, start, err)
		return "", Usage{}, err
	}

	// Cancellation is cooperative: cut the stream when the context dies,
	// then let Wait unwind.
	streamDone := make(chan struct{})
	go func() {
		select {
		case <-llmCtx.Done():
			handle.Cancel()
		case <-streamDone:
		}
	}()

	text, usage, err := handle.Wait()
	close(streamDone)

	if text == "" {
		text = full.String()
	}
	if !sawUsage {
		lastUsage = usage
	}

	s.finishLLM(ctx, span, provider, model, start, err)
	return text, lastUsage, err
}

// runTool executes one model-requested tool call under policy, emitting
// the tool lifecycle events around it.
func (s *Service) runTool(ctx context.Context, call ToolCall, policy *ToolPolicy, em *event.Emitter) ToolResult {
	invocationID := em.ToolStart(call.ID, call.Name, call.Args)

	if ok, msg := policy.Check(call); !ok {
		res := ToolResult{CallID: call.ID, Content: msg}
		em.ToolEnd(call.ID, invocationID, call.Name, msg)
		return res
	}

	fn, ok := s.tools.Get(call.Name)
	if !ok {
		err := errors.New("tool not registered: " + call.Name)
		em.ToolError(call.ID, invocationID, call.Name, err)
		return ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}

	content, err := fn(ctx, call.Args)
	if err != nil {
		em.ToolError(call.ID, invocationID, call.Name, err)
		return ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}

	res := ToolResult{CallID: call.ID, Content: content}
	policy.Record(call, res)
	em.ToolEnd(call.ID, invocationID, call.Name, content)
	return res
}

// cancelledResult packages a cut-short stream as a successful partial
// outcome with locally estimated usage.
func (s *Service) cancelledResult(ctx context.Context, req Request, working *agentflow.Conversation, em *event.Emitter, partial string, sreq StreamRequest) (Result, error) {
	usage := Usage{
		InputTokens:  EstimateConversation(sreq.System, sreq.Messages),
		OutputTokens: EstimateTokens(partial),
		Estimated:    true,
	}

	em.Usage(event.UsagePayload{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.Total(),
		Estimated:    true,
	})
	s.metrics.RecordTokens(ctx, working.Provider, working.Model, usage.InputTokens, usage.OutputTokens, true)

	result := Result{Text: partial, Usage: usage, Conversation: working, Cancelled: true}
	if !req.SkipHistory && partial != "" {
		result.Conversation = working.WithMessage(agentflow.RoleAssistant, partial)
	}
	return result, nil
}

func (s *Service) finishLLM(ctx context.Context, span trace.Span, provider, model string, start time.Time, err error) {
	elapsed := time.Since(start)
	s.spans.EndSpanWithError(span, err)
	s.metrics.RecordLLMRequest(ctx, provider, model, elapsed, err)
	observability.LogLLMRequest(s.logger, provider, model, float64(elapsed.Milliseconds()), err)
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || agentflow.IsCancellation(err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
