package scoring

import (
	"regexp"
	"strings"

	"github.com/nmery/needscan/internal/types"
)

// wtpPatterns classify willingness-to-pay language. Each class carries a
// bonus added once no matter how often it matches; the raw match count
// contributes separately.
var wtpPatterns = []struct {
	class   string
	bonus   float64
	regexes []*regexp.Regexp
}{
	{
		class: "direct_payment",
		bonus: 4,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(would|happy to|willing to|i'?d) pay`),
			regexp.MustCompile(`(?i)take my money`),
			regexp.MustCompile(`(?i)worth (paying|every penny)`),
		},
	},
	{
		class: "budget",
		bonus: 2,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`\$\d+`),
			regexp.MustCompile(`(?i)\d+\s*(per month|/mo|a month|per year|/yr)`),
			regexp.MustCompile(`(?i)(our|my) budget`),
		},
	},
	{
		class: "pricing_inquiry",
		bonus: 1,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)how much (does|would|is)`),
			regexp.MustCompile(`(?i)(pricing|price point|subscription cost)`),
		},
	},
	{
		class: "dissatisfaction",
		bonus: 1,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(current|existing) (tool|solution|software) is (too expensive|terrible|awful)`),
			regexp.MustCompile(`(?i)(overpriced|rip.?off)`),
			regexp.MustCompile(`(?i)cancel(ed|ing)? (my|our) subscription`),
		},
	},
	{
		class: "urgency",
		bonus: 1,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(desperately|urgently|really) need`),
			regexp.MustCompile(`(?i)need (this|it) (now|asap|yesterday)`),
		},
	},
	{
		class: "roi",
		bonus: 1,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)save (me|us) (time|money|hours)`),
			regexp.MustCompile(`(?i)(hours|days) (a|per) (week|month) on this`),
		},
	},
}

// WTPScore estimates willingness to pay 0-10 from pricing and payment
// language across the cluster's posts. Match volume caps at 6 points;
// class bonuses cap at 4.
func WTPScore(c *types.Cluster) float64 {
	matches := 0
	classBonus := 0.0
	seen := make(map[string]bool)

	for _, it := range c.Examples {
		text := strings.ToLower(it.Title + " " + it.Body)
		for _, p := range wtpPatterns {
			for _, re := range p.regexes {
				n := len(re.FindAllString(text, -1))
				if n == 0 {
					continue
				}
				matches += n
				if !seen[p.class] {
					seen[p.class] = true
					classBonus += p.bonus
				}
			}
		}
	}

	volume := float64(matches) * 2
	if volume > 6 {
		volume = 6
	}
	if classBonus > 4 {
		classBonus = 4
	}
	return types.ClampScore(volume + classBonus)
}
