// Package vigilis is a rule-based pre-flight threat classifier for free text.
//
// Every rule is tested against the lower-cased input; reported matches keep
// the caller's own spelling. The verdict comes from
// the matching rule with the highest severity; on equal severity the rule
// listed first wins. Classification has no side effects.
package vigilis

import (
	"regexp"
	"strings"
)

// Threshold is the risk score at or above which callers should halt.
const Threshold = 0.7

// BaselineRisk is reported for input that matches no rule.
const BaselineRisk = 0.05

type Category string

const (
	CategoryJailbreak          Category = "jailbreak"
	CategoryPromptInjection    Category = "prompt_injection"
	CategoryDataExfiltration   Category = "data_exfiltration"
	CategoryCredentialTheft    Category = "credential_theft"
	CategoryDestructiveCommand Category = "destructive_command"
	CategorySocialEngineering  Category = "social_engineering"
)

type Rule struct {
	ID       string
	Pattern  *regexp.Regexp
	Category Category
	Severity float64
}

// Verdict is the classifier output. PatternID and Category are nil when Safe.
type Verdict struct {
	Safe           bool      `json:"safe"`
	RiskScore      float64   `json:"risk_score"`
	PatternID      *string   `json:"pattern_id"`
	Category       *Category `json:"category"`
	Recommendation string    `json:"recommendation"`
	Matches        []string  `json:"matches"`
}

// Halt reports whether the verdict crosses the advisory threshold.
func (v Verdict) Halt() bool {
	return !v.Safe && v.RiskScore >= Threshold
}

type Classifier struct {
	rules []Rule
}

func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Default returns a classifier over the built-in rule table.
func Default() *Classifier {
	return New(defaultRules)
}

func (c *Classifier) Classify(text string) Verdict {
	normalized := strings.ToLower(text)

	var (
		best    *Rule
		matches = []string{}
	)
	for i := range c.rules {
		r := &c.rules[i]
		loc := r.Pattern.FindStringIndex(normalized)
		if loc == nil || loc[0] == loc[1] {
			continue
		}
		matches = append(matches, literal(text, normalized, loc))
		if best == nil || r.Severity > best.Severity {
			best = r
		}
	}

	if best == nil {
		return Verdict{
			Safe:           true,
			RiskScore:      BaselineRisk,
			Recommendation: "No threat patterns detected. Safe to proceed.",
			Matches:        matches,
		}
	}

	id := best.ID
	category := best.Category
	return Verdict{
		Safe:           false,
		RiskScore:      best.Severity,
		PatternID:      &id,
		Category:       &category,
		Recommendation: recommend(best.Category, best.Severity),
		Matches:        matches,
	}
}

// literal returns the matched span as it appears in the caller's text.
// Lower-casing can change byte lengths for some scripts; then the offsets
// only hold for the normalized form.
func literal(text, normalized string, loc []int) string {
	if len(text) == len(normalized) {
		return text[loc[0]:loc[1]]
	}
	return normalized[loc[0]:loc[1]]
}

func recommend(category Category, severity float64) string {
	var action string
	switch {
	case severity >= 0.9:
		action = "BLOCK."
	case severity >= Threshold:
		action = "Block unless a human confirms."
	default:
		action = "Review before proceeding."
	}

	switch category {
	case CategoryJailbreak:
		return action + " Input attempts to override safety constraints (jailbreak)."
	case CategoryPromptInjection:
		return action + " Input tries to replace the agent's instructions."
	case CategoryDataExfiltration:
		return action + " Input asks to move sensitive data to an external destination."
	case CategoryCredentialTheft:
		return action + " Input asks to reveal secrets or credentials."
	case CategoryDestructiveCommand:
		return action + " Input contains an irreversible destructive command."
	case CategorySocialEngineering:
		return action + " Input uses urgency or authority pressure typical of fraud."
	default:
		return action
	}
}
