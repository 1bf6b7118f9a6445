// Package validate classifies staged records against per-entity rule
// sets. Validation is pure: a record is either accepted or rejected with
// the ordered list of every rule it violated, and nothing is written.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

// Result is the outcome of validating one staged record.
type Result struct {
	Record  model.Record
	Reasons []string
}

// Accepted reports whether the record passed every rule.
func (r Result) Accepted() bool {
	return len(r.Reasons) == 0
}

// Validator applies entity rule sets to staged records.
type Validator struct {
	rules map[model.EntityType][]Rule
}

// New returns a Validator with the built-in rule sets.
func New() *Validator {
	return &Validator{rules: ruleSets()}
}

// Validate checks one record and returns every violation in rule order.
func (v *Validator) Validate(rec model.Record) Result {
	rules, ok := v.rules[rec.Entity]
	if !ok {
		return Result{Record: rec, Reasons: []string{fmt.Sprintf("unknown entity type %q", rec.Entity)}}
	}

	var reasons []string
	for _, rule := range rules {
		reasons = append(reasons, applyRule(rec, rule)...)
	}
	return Result{Record: rec, Reasons: reasons}
}

func applyRule(rec model.Record, rule Rule) []string {
	if rule.Check == Required {
		if !rec.Has(rule.Field) {
			return []string{fmt.Sprintf("missing required field %s", rule.Field)}
		}
		return nil
	}

	// All other checks only constrain fields that are present. Partial
	// records are legal input for Type-1 updates.
	if !rec.Has(rule.Field) {
		return nil
	}

	switch rule.Check {
	case String:
		s, ok := rec.String(rule.Field)
		if !ok {
			return []string{fmt.Sprintf("%s must be a string", rule.Field)}
		}
		if rule.MaxLen > 0 && len(s) > rule.MaxLen {
			return []string{fmt.Sprintf("%s exceeds maximum length %d", rule.Field, rule.MaxLen)}
		}

	case Number:
		n, ok := rec.Float(rule.Field)
		if !ok {
			return []string{fmt.Sprintf("%s must be a number", rule.Field)}
		}
		return checkBounds(rule, n)

	case Integer:
		n, ok := rec.Int(rule.Field)
		if !ok {
			return []string{fmt.Sprintf("%s must be an integer", rule.Field)}
		}
		return checkBounds(rule, float64(n))

	case Bool:
		if _, ok := rec.Bool(rule.Field); !ok {
			return []string{fmt.Sprintf("%s must be a boolean", rule.Field)}
		}

	case Timestamp:
		if _, ok := rec.Time(rule.Field); !ok {
			return []string{fmt.Sprintf("%s must be a timestamp", rule.Field)}
		}

	case Enum:
		s, ok := rec.String(rule.Field)
		if !ok {
			return []string{fmt.Sprintf("%s must be a string", rule.Field)}
		}
		for _, v := range rule.Values {
			if s == v {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s must be one of %s", rule.Field, strings.Join(rule.Values, ", "))}

	case Email:
		s, ok := rec.String(rule.Field)
		if !ok {
			return []string{fmt.Sprintf("%s must be a string", rule.Field)}
		}
		at := strings.Index(s, "@")
		if at < 1 || at == len(s)-1 || !strings.Contains(s[at:], ".") {
			return []string{fmt.Sprintf("%s must be a valid email address", rule.Field)}
		}

	case Sections:
		return rule.Custom(rec.Fields[rule.Field])
	}

	return nil
}

func checkBounds(rule Rule, n float64) []string {
	if rule.ExclusiveMin {
		if n <= rule.Min {
			return []string{fmt.Sprintf("%s must be greater than %g", rule.Field, rule.Min)}
		}
	} else if n < rule.Min {
		return []string{fmt.Sprintf("%s must be at least %g", rule.Field, rule.Min)}
	}
	if n > rule.Max {
		return []string{fmt.Sprintf("%s must be at most %g", rule.Field, rule.Max)}
	}
	return nil
}

// sectionArray normalizes a nested section to a slice of objects. Staged
// rows deliver sections as JSON text; in-process records may carry them
// already decoded.
func sectionArray(v any) ([]map[string]any, bool) {
	switch s := v.(type) {
	case []map[string]any:
		return s, true
	case []any:
		out := make([]map[string]any, 0, len(s))
		for _, e := range s {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	case string:
		return decodeSectionArray([]byte(s))
	case []byte:
		return decodeSectionArray(s)
	}
	return nil, false
}

func decodeSectionArray(data []byte) ([]map[string]any, bool) {
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

func sectionObject(v any) (map[string]any, bool) {
	switch s := v.(type) {
	case map[string]any:
		return s, true
	case string:
		return decodeSectionObject([]byte(s))
	case []byte:
		return decodeSectionObject(s)
	}
	return nil, false
}

func decodeSectionObject(data []byte) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

func checkAddresses(v any) []string {
	entries, ok := sectionArray(v)
	if !ok {
		return []string{"addresses must be an array of address objects"}
	}
	var reasons []string
	for i, addr := range entries {
		if s, _ := addr["city"].(string); s == "" {
			reasons = append(reasons, fmt.Sprintf("addresses[%d] missing city", i))
		}
		if s, _ := addr["country"].(string); s == "" {
			reasons = append(reasons, fmt.Sprintf("addresses[%d] missing country", i))
		}
	}
	return reasons
}

func checkPreferences(v any) []string {
	prefs, ok := sectionObject(v)
	if !ok {
		return []string{"preferences must be an object"}
	}
	cats, present := prefs["favorite_categories"]
	if !present {
		return nil
	}
	list, ok := cats.([]any)
	if !ok {
		if _, ok := cats.([]string); ok {
			return nil
		}
		return []string{"preferences.favorite_categories must be an array"}
	}
	for i, c := range list {
		if _, ok := c.(string); !ok {
			return []string{fmt.Sprintf("preferences.favorite_categories[%d] must be a string", i)}
		}
	}
	return nil
}

func checkReviews(v any) []string {
	entries, ok := sectionArray(v)
	if !ok {
		return []string{"reviews must be an array of review objects"}
	}
	var reasons []string
	for i, review := range entries {
		rating, ok := reviewRating(review["rating"])
		if !ok {
			reasons = append(reasons, fmt.Sprintf("reviews[%d] missing rating", i))
			continue
		}
		if rating < 1 || rating > 5 {
			reasons = append(reasons, fmt.Sprintf("reviews[%d] rating must be between 1 and 5", i))
		}
	}
	return reasons
}

func reviewRating(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func checkImages(v any) []string {
	entries, ok := sectionArray(v)
	if !ok {
		// A plain array of URL strings is also accepted.
		if _, ok := urlArray(v); ok {
			return nil
		}
		return []string{"images must be an array"}
	}
	var reasons []string
	for i, img := range entries {
		if s, _ := img["url"].(string); s == "" {
			reasons = append(reasons, fmt.Sprintf("images[%d] missing url", i))
		}
	}
	return reasons
}

func urlArray(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	case string:
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}
