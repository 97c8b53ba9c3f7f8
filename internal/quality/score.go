package quality

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"libretto/internal/mapping"
)

// neutralScore is returned when a mapping declares no quality rules: the
// record is neither trusted nor distrusted.
const neutralScore = 0.5

var patternCache sync.Map // pattern string -> *regexp.Regexp

// Score evaluates normalized data against weighted rules and returns a
// confidence value in [0, 1]. The score is advisory: it feeds merge
// precedence and the catalog's quality_score column, never data discards.
func Score(normalized map[string]any, rules []mapping.QualityRule) (float64, error) {
	if len(rules) == 0 {
		return neutralScore, nil
	}

	var weightSum, scoreSum float64
	for _, rule := range rules {
		if rule.Weight <= 0 {
			continue
		}
		sub, err := evaluate(normalized[rule.Field], rule)
		if err != nil {
			return 0, fmt.Errorf("quality rule %s on field %s: %w", rule.Rule, rule.Field, err)
		}
		weightSum += rule.Weight
		scoreSum += sub * rule.Weight
	}
	if weightSum == 0 {
		return neutralScore, nil
	}

	score := scoreSum / weightSum
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func evaluate(value any, rule mapping.QualityRule) (float64, error) {
	switch rule.Rule {
	case mapping.RuleRequired:
		return boolScore(present(value)), nil
	case mapping.RuleLength:
		s, ok := value.(string)
		return boolScore(ok && strings.TrimSpace(s) != ""), nil
	case mapping.RuleFormat:
		re, err := compiled(rule.Pattern)
		if err != nil {
			return 0, err
		}
		s, ok := value.(string)
		return boolScore(ok && re.MatchString(s)), nil
	default:
		return 0, fmt.Errorf("unknown rule kind %q", rule.Rule)
	}
}

func compiled(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("format rule requires a pattern")
	}
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func present(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
