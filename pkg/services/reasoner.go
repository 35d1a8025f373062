package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/ekaya-intake/pkg/llm"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// Reasoner is the external reasoning capability. It always receives the full
// accumulated context of a session, never a diff.
type Reasoner interface {
	Reason(ctx context.Context, entries []models.ContextEntry) (*models.ReasoningReply, error)
}

// ReasonerFunc adapts a function to Reasoner.
type ReasonerFunc func(ctx context.Context, entries []models.ContextEntry) (*models.ReasoningReply, error)

// Reason implements Reasoner.
func (f ReasonerFunc) Reason(ctx context.Context, entries []models.ContextEntry) (*models.ReasoningReply, error) {
	return f(ctx, entries)
}

// ReasonerConfig bounds calls to the reasoning backend.
type ReasonerConfig struct {
	MaxConcurrent     int
	RequestsPerMinute int
	Breaker           llm.CircuitBreakerConfig
}

const reasonerSystemMessage = `You reconcile inventory source documents with a destination schema.
You are given the full history of one import session: the source sample, the destination schema,
previously learned mappings, every question asked so far and every user answer.
Propose a mapping for EVERY source field. Use target_field null when a field has no destination.
Ask a question only when you cannot resolve an ambiguity from the history.
Mark from_user_answer true on a mapping that a user answer settled.
Return JSON only.`

const reasonerReplyFormat = `Respond with:
{"questions": ["..."],
 "mappings": [{"source_field": "", "target_field": "" or null, "confidence": 0.0, "from_user_answer": false, "reasoning": ""}],
 "items": [{"row": 1, "part_number": "", "serial_number": "", "quantity": null, "confidence": 0.0}]}
Include items only when you corrected a value on a specific row.
When a user answer states the total quantity of a part whose rows disagree,
return one item for the first row of that part carrying the total.`

type llmReasoner struct {
	client  llm.LLMClient
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	breaker *llm.CircuitBreaker
	logger  *zap.Logger
}

// NewLLMReasoner creates a Reasoner backed by a language model.
func NewLLMReasoner(client llm.LLMClient, cfg ReasonerConfig, logger *zap.Logger) Reasoner {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &llmReasoner{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		breaker: llm.NewCircuitBreaker(cfg.Breaker),
		logger:  logger.Named("reasoner"),
	}
}

var _ Reasoner = (*llmReasoner)(nil)

func (r *llmReasoner) Reason(ctx context.Context, entries []models.ContextEntry) (*models.ReasoningReply, error) {
	if err := r.breaker.Allow(); err != nil {
		return nil, llm.NewError(llm.ErrorTypeEndpoint, "reasoning backend unavailable", true, err)
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, llm.ClassifyError(err)
	}
	defer r.sem.Release(1)
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, llm.ClassifyError(err)
	}

	prompt := BuildReasoningPrompt(entries)
	start := time.Now()
	resp, err := r.client.GenerateResponse(ctx, prompt, reasonerSystemMessage, 0.1, false)
	if err != nil {
		// A caller cancelling is not a backend failure.
		if !errors.Is(err, context.Canceled) {
			r.breaker.RecordFailure()
		}
		r.logger.Warn("Reasoning call failed", append(llm.LogFields(ctx),
			zap.String("model", r.client.GetModel()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))...)
		return nil, err
	}

	reply, err := llm.ParseJSONResponse[models.ReasoningReply](resp.Content)
	if err != nil {
		r.breaker.RecordFailure()
		r.logger.Warn("Unreadable reasoning reply", append(llm.LogFields(ctx),
			zap.String("content", logging.SanitizeContent(resp.Content)),
			zap.Error(err))...)
		return nil, err
	}
	r.breaker.RecordSuccess()

	r.logger.Debug("Reasoning reply", append(llm.LogFields(ctx),
		zap.Int("entries", len(entries)),
		zap.Int("questions", len(reply.Questions)),
		zap.Int("mappings", len(reply.Mappings)),
		zap.Int("total_tokens", resp.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))...)
	return &reply, nil
}

// BuildReasoningPrompt renders every context entry in seq order.
func BuildReasoningPrompt(entries []models.ContextEntry) string {
	var b strings.Builder
	b.WriteString("SESSION HISTORY\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n[#%d round %d %s]\n", e.Seq, e.Round, e.Kind)
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(reasonerReplyFormat)
	return b.String()
}
