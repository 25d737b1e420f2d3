package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"ultron/internal/cache"
	"ultron/internal/logging"
	"ultron/internal/prompt"
)

// ErrNilModel is returned by NewReviewer without a model.
var ErrNilModel = errors.New("review model cannot be nil")

// Model is the single-shot backend: one prompt in, one JSON text out.
type Model interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	CountTokens(ctx context.Context, text string) (int, error)
	ModelName() string
}

// Request holds the inputs of one review. The same inputs always map to
// the same cache fingerprint.
type Request struct {
	Code                 string
	Language             string
	AdditionalContext    string
	Frameworks           []string
	SecurityRequirements string
}

// Key returns the cache fingerprint for req under model.
func (req Request) Key(model string) string {
	return cache.Key(cache.KeyInputs{
		Code:                 req.Code,
		Language:             req.Language,
		Model:                model,
		AdditionalContext:    req.AdditionalContext,
		Frameworks:           req.Frameworks,
		SecurityRequirements: req.SecurityRequirements,
	})
}

// Reviewer runs single-shot reviews with an optional result cache.
// Concurrent reviews of identical inputs share one model call.
type Reviewer struct {
	model Model
	store *cache.Store[*Document]
	group singleflight.Group
}

// NewReviewer creates a reviewer. store may be nil to disable caching.
func NewReviewer(model Model, store *cache.Store[*Document]) (*Reviewer, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	return &Reviewer{model: model, store: store}, nil
}

// Review returns a document for req. It never fails; backend and parse
// errors are reported through Document.Error.
func (r *Reviewer) Review(ctx context.Context, req Request) *Document {
	if strings.TrimSpace(req.Code) == "" {
		return Empty()
	}
	key := req.Key(r.model.ModelName())

	if doc, ok := r.store.Get(key); ok {
		logging.Review("Review cache hit: %s", key[:12])
		return doc
	}

	v, _, shared := r.group.Do(key, func() (any, error) {
		doc := r.run(ctx, req)
		if err := r.store.Put(key, doc); err != nil {
			logging.Get(logging.CategoryReview).Warn("Failed to cache review %s: %v", key[:12], err)
		}
		return doc, nil
	})
	if shared {
		logging.ReviewDebug("Review %s shared with a concurrent caller", key[:12])
	}
	return v.(*Document).clone()
}

func (r *Reviewer) run(ctx context.Context, req Request) *Document {
	text := prompt.Review(prompt.ReviewInput{
		Code:                 req.Code,
		Language:             req.Language,
		AdditionalContext:    req.AdditionalContext,
		Frameworks:           req.Frameworks,
		SecurityRequirements: req.SecurityRequirements,
	})

	inputTokens := r.countTokens(ctx, text)
	var contextTokens *int
	if req.AdditionalContext != "" {
		contextTokens = r.countTokens(ctx, req.AdditionalContext)
	}

	start := time.Now()
	logging.Review("Requesting review from %s (%d prompt bytes)", r.model.ModelName(), len(text))
	raw, err := r.model.GenerateJSON(ctx, text)
	if err != nil {
		logging.Get(logging.CategoryReview).Error("Review request failed: %v", err)
		return Stub(fmt.Sprintf("model request failed: %v", err), "")
	}
	logging.ReviewDebug("Review reply: %d bytes in %v", len(raw), time.Since(start))

	doc := Parse(raw)
	if doc.InputCodeTokens == nil {
		doc.InputCodeTokens = inputTokens
	}
	if doc.AdditionalContextTokens == nil {
		doc.AdditionalContextTokens = contextTokens
	}
	return doc
}

// countTokens is best effort; a failure only loses the statistic.
func (r *Reviewer) countTokens(ctx context.Context, text string) *int {
	n, err := r.model.CountTokens(ctx, text)
	if err != nil {
		logging.ReviewDebug("Token count unavailable: %v", err)
		return nil
	}
	return &n
}
