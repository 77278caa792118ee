// Package scoring implements the per-cluster signal scorers. Heuristic
// scorers are pure functions of the cluster; generation-backed scorers
// degrade to neutral defaults when the capability fails, never aborting
// the run.
package scoring

import (
	"strings"

	"github.com/nmery/needscan/internal/types"
)

// painKeywords are phrases that signal real frustration in user posts.
var painKeywords = []string{
	"frustrating",
	"annoying",
	"hate",
	"nightmare",
	"waste of time",
	"wasting time",
	"tedious",
	"painful",
	"struggling",
	"can't find",
	"cannot find",
	"no good way",
	"there has to be a better way",
	"wish there was",
	"why is it so hard",
	"fed up",
	"driving me crazy",
	"manually",
	"every single time",
	"workaround",
}

func avgEngagement(c *types.Cluster) (avgScore, avgComments, peakScore float64) {
	if len(c.Examples) == 0 {
		return 0, 0, 0
	}
	for _, it := range c.Examples {
		avgScore += float64(it.Score)
		avgComments += float64(it.Comments)
		if float64(it.Score) > peakScore {
			peakScore = float64(it.Score)
		}
	}
	n := float64(len(c.Examples))
	return avgScore / n, avgComments / n, peakScore
}

// PainHeuristic estimates pain 0-10 from engagement and frustration
// vocabulary: upvotes cap at 5 points, comment volume at 3, keyword hits
// at 2.
func PainHeuristic(c *types.Cluster) float64 {
	avgScore, avgComments, _ := avgEngagement(c)

	score := avgScore / 10
	if score > 5 {
		score = 5
	}
	comments := avgComments / 7
	if comments > 3 {
		comments = 3
	}

	hits := 0
	for _, it := range c.Examples {
		text := strings.ToLower(it.Title + " " + it.Body)
		for _, kw := range painKeywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
	}
	keywords := float64(hits) * 0.5
	if keywords > 2 {
		keywords = 2
	}

	return types.ClampScore(score + comments + keywords)
}

// TractionScore estimates audience traction 0-10 from average engagement,
// discussion volume, the cluster's hottest post, and cluster size.
func TractionScore(c *types.Cluster) float64 {
	avgScore, avgComments, peak := avgEngagement(c)

	engagement := avgScore / 33.3
	if engagement > 3 {
		engagement = 3
	}
	discussion := avgComments / 25
	if discussion > 2 {
		discussion = 2
	}
	peakScore := peak / 100
	if peakScore > 3 {
		peakScore = 3
	}
	size := float64(c.MemberCount) / 10
	if size > 2 {
		size = 2
	}

	return types.ClampScore(engagement + discussion + peakScore + size)
}
