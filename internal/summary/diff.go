package summary

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"

	"bytemomo/bastion/internal/canonical"
)

// Diff compares two decoded summaries and describes every difference.
// Top-level ignoreFields are dropped from both sides first; any subtree whose
// path matches an ignorePaths glob is skipped.
func Diff(golden, candidate any, ignoreFields, ignorePaths []string) ([]string, error) {
	g, ok := golden.(map[string]any)
	if !ok {
		return []string{"golden summary must be a JSON object"}, nil
	}
	c, ok := candidate.(map[string]any)
	if !ok {
		return []string{"candidate summary must be a JSON object"}, nil
	}

	patterns := make([]*regexp.Regexp, 0, len(ignorePaths))
	for _, p := range ignorePaths {
		re, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}

	d := &differ{ignore: patterns}
	d.walk("$", without(g, ignoreFields), without(c, ignoreFields))
	return d.diffs, nil
}

func without(obj map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if !slices.Contains(fields, k) {
			out[k] = v
		}
	}
	return out
}

type differ struct {
	ignore []*regexp.Regexp
	diffs  []string
}

func (d *differ) ignored(path string) bool {
	for _, re := range d.ignore {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (d *differ) walk(path string, golden, candidate any) {
	if d.ignored(path) {
		return
	}

	gm, gIsMap := golden.(map[string]any)
	cm, cIsMap := candidate.(map[string]any)
	if gIsMap && cIsMap {
		for _, k := range sortedKeys(gm) {
			if _, ok := cm[k]; !ok {
				d.diffs = append(d.diffs, fmt.Sprintf("%s.%s missing in candidate", path, k))
			}
		}
		for _, k := range sortedKeys(cm) {
			if _, ok := gm[k]; !ok {
				d.diffs = append(d.diffs, fmt.Sprintf("%s.%s extra in candidate", path, k))
			}
		}
		for _, k := range sortedKeys(gm) {
			if cv, ok := cm[k]; ok {
				d.walk(path+"."+k, gm[k], cv)
			}
		}
		return
	}

	gl, gIsList := golden.([]any)
	cl, cIsList := candidate.([]any)
	if gIsList && cIsList {
		if len(gl) != len(cl) {
			d.diffs = append(d.diffs, fmt.Sprintf("%s length differs (golden %d vs candidate %d)", path, len(gl), len(cl)))
		}
		for i := 0; i < min(len(gl), len(cl)); i++ {
			d.walk(fmt.Sprintf("%s[%d]", path, i), gl[i], cl[i])
		}
		return
	}

	if !equalScalar(golden, candidate) {
		d.diffs = append(d.diffs, fmt.Sprintf("%s differs (golden %s vs candidate %s)", path, render(golden), render(candidate)))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// equalScalar compares numbers by value so 1 and 1.0 are equal.
func equalScalar(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func render(v any) string {
	raw, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
