package scoring

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/llm"
	"github.com/nmery/needscan/internal/types"
)

// LLMScorer holds the generation-backed scorers. Every method absorbs
// capability failures locally: it returns the documented neutral default,
// a true degraded flag, and no error, so one flaky call never aborts a run.
type LLMScorer struct {
	gen            llm.Generator
	founderProfile string
	log            *zap.Logger
}

// NewLLMScorer creates the generation-backed scorers. founderProfile
// describes the founder the fit scorer judges against; empty disables
// founder-fit scoring.
func NewLLMScorer(gen llm.Generator, founderProfile string, log *zap.Logger) *LLMScorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMScorer{gen: gen, founderProfile: founderProfile, log: log}
}

// HasFounderProfile reports whether founder-fit scoring is enabled.
func (s *LLMScorer) HasFounderProfile() bool {
	return s.founderProfile != ""
}

// clusterDigest renders the cluster's posts for a prompt, bounded so a
// large cluster cannot blow the context window.
func clusterDigest(c *types.Cluster) string {
	const maxItems = 8
	var b strings.Builder
	for i, it := range c.Examples {
		if i >= maxItems {
			fmt.Fprintf(&b, "... and %d more posts\n", len(c.Examples)-maxItems)
			break
		}
		fmt.Fprintf(&b, "- [%s, %d points, %d comments] %s\n", it.Source, it.Score, it.Comments, it.Title)
		if it.Body != "" {
			body := it.Body
			if len(body) > 300 {
				body = body[:300] + "..."
			}
			fmt.Fprintf(&b, "  %s\n", body)
		}
	}
	return b.String()
}

// CombinedPain blends the model's judgment with the engagement heuristic.
func CombinedPain(llmScore, heuristic float64) float64 {
	return types.ClampScore(0.7*llmScore + 0.3*heuristic)
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// PainScore asks the model to judge user pain 0-10 for the cluster.
func (s *LLMScorer) PainScore(ctx context.Context, c *types.Cluster, tier llm.Tier) (score, cost float64, degraded bool) {
	prompt := fmt.Sprintf(`You are analyzing a group of related user posts to judge how painful the underlying problem is.

Posts:
%s
Rate the intensity of user pain from 0 (mild inconvenience) to 10 (severe, urgent problem people actively suffer from).

Respond with JSON only: {"score": <number>}`, clusterDigest(c))

	text, callCost, err := s.gen.Generate(ctx, prompt, tier)
	if err != nil {
		s.log.Warn("pain scorer degraded to neutral default",
			zap.Int("cluster_id", c.ID), zap.Error(err))
		return types.NeutralSignal, 0, true
	}
	parsed, err := llm.ParseJSON[scoreResponse](text)
	if err != nil {
		s.log.Warn("pain scorer got unparseable response",
			zap.Int("cluster_id", c.ID), zap.Error(err))
		return types.NeutralSignal, callCost, true
	}
	return types.ClampScore(parsed.Score), callCost, false
}

// FounderFit asks the model how well the problem suits the configured
// founder profile, 1-10. With no profile configured it reports neutral
// without spending a call.
func (s *LLMScorer) FounderFit(ctx context.Context, c *types.Cluster, tier llm.Tier) (score, cost float64, degraded bool) {
	if s.founderProfile == "" {
		return types.NeutralSignal, 0, false
	}

	prompt := fmt.Sprintf(`Founder profile:
%s

Problem cluster:
%s
Rate from 1 to 10 how well this problem fits the founder's skills and interests.

Respond with JSON only: {"score": <number>}`, s.founderProfile, clusterDigest(c))

	text, callCost, err := s.gen.Generate(ctx, prompt, tier)
	if err != nil {
		s.log.Warn("founder fit scorer degraded to neutral default",
			zap.Int("cluster_id", c.ID), zap.Error(err))
		return types.NeutralSignal, 0, true
	}
	parsed, err := llm.ParseJSON[scoreResponse](text)
	if err != nil {
		return types.NeutralSignal, callCost, true
	}
	score = parsed.Score
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score, callCost, false
}

type sectorResponse struct {
	Sector string `json:"sector"`
}

// ClassifySector assigns the cluster one label from the closed sector set.
// Anything the model invents coerces to "other".
func (s *LLMScorer) ClassifySector(ctx context.Context, c *types.Cluster, tier llm.Tier) (sector types.Sector, cost float64, degraded bool) {
	labels := make([]string, 0, len(types.AllSectors()))
	for _, sec := range types.AllSectors() {
		labels = append(labels, string(sec))
	}

	prompt := fmt.Sprintf(`Classify this group of user posts into exactly one sector.

Posts:
%s
Allowed sectors: %s

Respond with JSON only: {"sector": "<label>"}`, clusterDigest(c), strings.Join(labels, ", "))

	text, callCost, err := s.gen.Generate(ctx, prompt, tier)
	if err != nil {
		s.log.Warn("sector classifier degraded to other",
			zap.Int("cluster_id", c.ID), zap.Error(err))
		return types.SectorOther, 0, true
	}
	parsed, err := llm.ParseJSON[sectorResponse](text)
	if err != nil {
		return types.SectorOther, callCost, true
	}
	return types.ParseSector(parsed.Sector), callCost, false
}

type enrichResponse struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Enrich produces a human-readable title and problem summary for the
// cluster. On failure it falls back to the first post's title.
func (s *LLMScorer) Enrich(ctx context.Context, c *types.Cluster, tier llm.Tier) (title, summary string, cost float64, degraded bool) {
	prompt := fmt.Sprintf(`Summarize the shared problem behind this group of user posts.

Posts:
%s
Respond with JSON only: {"title": "<max 10 words>", "summary": "<2-3 sentences describing the problem and who has it>"}`, clusterDigest(c))

	text, callCost, err := s.gen.Generate(ctx, prompt, tier)
	if err == nil {
		if parsed, perr := llm.ParseJSON[enrichResponse](text); perr == nil && parsed.Title != "" {
			return parsed.Title, parsed.Summary, callCost, false
		}
	} else {
		s.log.Warn("enrichment degraded to fallback title",
			zap.Int("cluster_id", c.ID), zap.Error(err))
		callCost = 0
	}

	title = fmt.Sprintf("Cluster %d", c.ID)
	if len(c.Examples) > 0 {
		title = c.Examples[0].Title
	}
	return title, "", callCost, true
}
