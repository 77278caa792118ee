// Package llm wraps the external generation and embedding capabilities.
// Callers depend on the small interfaces here so tests can inject stubs
// and scorers can degrade gracefully when the capability is down.
package llm

import "context"

// Tier selects the cost/quality level of the generation capability.
type Tier string

const (
	TierLight Tier = "light"
	TierHeavy Tier = "heavy"
)

// Generator produces text from a prompt at a given tier and reports the
// call's cost in USD. Implementations retry transient failures internally
// with bounded backoff; an error from Generate means retries are exhausted.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier Tier) (string, float64, error)
}

// Embedder turns text into a fixed-dimensionality vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// modelPricing is USD per million tokens.
type modelPricing struct {
	inputPerMTok  float64
	outputPerMTok float64
}

var pricing = map[string]modelPricing{
	ModelHeavy: {inputPerMTok: 3.00, outputPerMTok: 15.00},
	ModelLight: {inputPerMTok: 0.80, outputPerMTok: 4.00},
}

// costUSD computes the cost of a call from its token usage. Unknown models
// cost zero rather than failing the run.
func costUSD(model string, inputTokens, outputTokens int64) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.inputPerMTok + float64(outputTokens)/1e6*p.outputPerMTok
}
