package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// ModelHeavy is the high-end model used for the enrichment budget's
	// top clusters.
	ModelHeavy = "claude-sonnet-4-5-20250929"

	// ModelLight is the cost-efficient model for everything else.
	ModelLight = "claude-3-5-haiku-20241022"
)

// HeavyModel returns the heavy-tier model, checking NEEDSCAN_MODEL_HEAVY first.
func HeavyModel() string {
	if m := os.Getenv("NEEDSCAN_MODEL_HEAVY"); m != "" {
		return m
	}
	return ModelHeavy
}

// LightModel returns the light-tier model, checking NEEDSCAN_MODEL_LIGHT first.
func LightModel() string {
	if m := os.Getenv("NEEDSCAN_MODEL_LIGHT"); m != "" {
		return m
	}
	return ModelLight
}

// AnthropicGenerator implements Generator against the Anthropic API with
// retry, a concurrency cap, and rate limiting.
type AnthropicGenerator struct {
	client     anthropic.Client
	heavyModel string
	lightModel string
	retry      RetryConfig
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewAnthropicGenerator creates a generator using the ANTHROPIC_API_KEY
// environment variable.
func NewAnthropicGenerator(log *zap.Logger) (*AnthropicGenerator, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if log == nil {
		log = zap.NewNop()
	}

	cfg := DefaultRetryConfig()
	g := &AnthropicGenerator{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		heavyModel: HeavyModel(),
		lightModel: LightModel(),
		retry:      cfg,
		limiter:    rate.NewLimiter(rate.Limit(2), 4),
		log:        log,
	}
	if cfg.MaxConcurrentCalls > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	return g, nil
}

func (g *AnthropicGenerator) model(tier Tier) string {
	if tier == TierHeavy {
		return g.heavyModel
	}
	return g.lightModel
}

// Generate sends the prompt to the tier's model and returns the text of
// the response and the call's cost.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, tier Tier) (string, float64, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return "", 0, fmt.Errorf("failed to acquire generation slot: %w", err)
		}
		defer g.sem.Release(1)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	model := g.model(tier)
	var response *anthropic.Message
	err := retryWithBackoff(ctx, g.retry, "generate", func(attemptCtx context.Context) error {
		resp, apiErr := g.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", 0, fmt.Errorf("empty response from model %s", model)
	}

	cost := costUSD(model, response.Usage.InputTokens, response.Usage.OutputTokens)
	g.log.Debug("generation call completed",
		zap.String("model", model),
		zap.String("tier", string(tier)),
		zap.Int64("input_tokens", response.Usage.InputTokens),
		zap.Int64("output_tokens", response.Usage.OutputTokens),
		zap.Float64("cost_usd", cost))
	return text, cost, nil
}

// HealthCheck verifies the API is reachable with a minimal call.
func (g *AnthropicGenerator) HealthCheck(ctx context.Context) error {
	_, _, err := g.Generate(ctx, "Reply with the single word: ok", TierLight)
	if err != nil {
		return fmt.Errorf("generation capability unavailable: %w", err)
	}
	return nil
}
