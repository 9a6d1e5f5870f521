package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"

	"bytemomo/bastion/internal/domain"
)

var (
	requiredTop     = []string{"campaign_name", "finished_at", "ok", "results", "run_id", "score", "started_at", "summary"}
	requiredCounts  = []string{"total", "passed", "failed", "errored", "skipped"}
	requiredResult  = []string{"duration_ms", "evidence_ref", "module_id", "status"}
	stringTopFields = []string{"campaign_name", "run_id", "started_at", "finished_at"}
)

// Validate checks payload against the summary shape and returns every
// violation found, or nil.
func Validate(payload any) []string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return []string{"summary must be a JSON object"}
	}

	var errs []string
	for _, f := range requiredTop {
		if _, ok := obj[f]; !ok {
			errs = append(errs, "missing field: "+f)
		}
	}

	if v, ok := obj["ok"]; ok {
		if _, isBool := v.(bool); !isBool {
			errs = append(errs, "field ok must be boolean")
		}
	}
	for _, f := range stringTopFields {
		if v, ok := obj[f]; ok {
			if _, isStr := v.(string); !isStr {
				errs = append(errs, fmt.Sprintf("field %s must be string", f))
			}
		}
	}
	if v, ok := obj["score"]; ok && !isNumber(v) {
		errs = append(errs, "field score must be number")
	}

	if v, ok := obj["summary"]; ok {
		counts, isObj := v.(map[string]any)
		if !isObj {
			errs = append(errs, "field summary must be object")
		} else {
			errs = append(errs, checkCounts(counts)...)
		}
	}

	if v, ok := obj["results"]; ok {
		items, isList := v.([]any)
		if !isList {
			errs = append(errs, "field results must be array")
		} else {
			for i, item := range items {
				entry, isObj := item.(map[string]any)
				if !isObj {
					errs = append(errs, fmt.Sprintf("results[%d] must be object", i))
					continue
				}
				errs = append(errs, checkResult(entry, i)...)
			}
		}
	}
	return errs
}

// ValidateCounts checks a bare summary counts object.
func ValidateCounts(payload any) []string {
	counts, ok := payload.(map[string]any)
	if !ok {
		return []string{"summary must be a JSON object"}
	}
	return checkCounts(counts)
}

func checkCounts(counts map[string]any) []string {
	var errs []string
	for _, key := range requiredCounts {
		v, ok := counts[key]
		if !ok {
			errs = append(errs, "summary missing field: "+key)
			continue
		}
		if !nonNegativeInt(v) {
			errs = append(errs, fmt.Sprintf("summary field %s must be non-negative integer", key))
		}
	}
	return errs
}

func checkResult(item map[string]any, i int) []string {
	var errs []string
	for _, f := range requiredResult {
		if _, ok := item[f]; !ok {
			errs = append(errs, fmt.Sprintf("results[%d] missing field: %s", i, f))
		}
	}

	if v, ok := item["module_id"]; ok {
		if _, isStr := v.(string); !isStr {
			errs = append(errs, fmt.Sprintf("results[%d].module_id must be string", i))
		}
	}
	if v, ok := item["status"]; ok {
		s, isStr := v.(string)
		switch {
		case !isStr:
			errs = append(errs, fmt.Sprintf("results[%d].status must be string", i))
		case !slices.Contains(domain.Statuses, domain.Status(s)):
			errs = append(errs, fmt.Sprintf("results[%d].status must be pass/fail/skipped/error", i))
		}
	}
	if v, ok := item["duration_ms"]; ok {
		if !nonNegativeInt(v) {
			errs = append(errs, fmt.Sprintf("results[%d].duration_ms must be non-negative integer", i))
		}
	}
	if v, ok := item["evidence_ref"]; ok {
		if _, isStr := v.(string); !isStr {
			errs = append(errs, fmt.Sprintf("results[%d].evidence_ref must be string", i))
		}
	}
	if v, ok := item["notes"]; ok && v != nil {
		if _, isStr := v.(string); !isStr {
			errs = append(errs, fmt.Sprintf("results[%d].notes must be string or null", i))
		}
	}
	return errs
}

// nonNegativeInt accepts integral JSON numbers of any magnitude. Numbers
// written with a fraction or exponent are not integers even when their value
// is whole.
func nonNegativeInt(v any) bool {
	switch n := v.(type) {
	case json.Number:
		i, ok := new(big.Int).SetString(n.String(), 10)
		return ok && i.Sign() >= 0
	case int:
		return n >= 0
	case int64:
		return n >= 0
	case uint64:
		return true
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0) && n >= 0
	default:
		return false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case json.Number, int, int64, uint64, float64:
		return true
	default:
		return false
	}
}
