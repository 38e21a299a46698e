package signals

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule adds Weight once when any needle appears, tagging the posting.
type Rule struct {
	Tag    string   `yaml:"tag"`
	Weight int      `yaml:"weight"`
	Any    []string `yaml:"any"`
}

// Penalty adds a negative Weight once when any needle appears.
type Penalty struct {
	Reason string   `yaml:"reason"`
	Weight int      `yaml:"weight"`
	Any    []string `yaml:"any"`
}

// Rules configure posting scoring.
type Rules struct {
	MinScore     int       `yaml:"min_score"`
	TitleRules   []Rule    `yaml:"title_rules"`
	KeywordRules []Rule    `yaml:"keyword_rules"`
	Penalties    []Penalty `yaml:"penalties"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() (Rules, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads rules from path, or the embedded defaults when path is empty.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read signal rules: %w", err)
	}
	return ParseRules(b)
}

// ParseRules decodes a YAML rule document.
func ParseRules(b []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("parse signal rules: %w", err)
	}
	for i, rule := range append(append([]Rule(nil), r.TitleRules...), r.KeywordRules...) {
		if rule.Tag == "" || len(rule.Any) == 0 {
			return Rules{}, fmt.Errorf("parse signal rules: rule %d needs a tag and at least one needle", i)
		}
	}
	return r, nil
}

// Scorer ranks postings against Rules.
type Scorer struct {
	rules Rules
}

// NewScorer builds a Scorer.
func NewScorer(rules Rules) Scorer {
	return Scorer{rules: rules}
}

// MinScore is the threshold below which postings are dropped.
func (s Scorer) MinScore() int { return s.rules.MinScore }

// Score returns the posting's score and the tags of the rules it matched.
// Title rules and penalties look at the title only. Keyword rules also search
// the description.
func (s Scorer) Score(p Posting) (int, []string) {
	title := strings.ToLower(p.Title)
	text := title + " " + strings.ToLower(p.Description)

	score := 0
	var tags []string
	apply := func(haystack string, rules []Rule) {
		for _, r := range rules {
			if containsAny(haystack, r.Any) {
				score += r.Weight
				tags = append(tags, r.Tag)
			}
		}
	}
	apply(title, s.rules.TitleRules)
	apply(text, s.rules.KeywordRules)
	for _, p := range s.rules.Penalties {
		if containsAny(title, p.Any) {
			score += p.Weight
		}
	}
	return score, uniq(tags)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func uniq(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
