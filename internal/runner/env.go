package runner

import (
	"runtime"
	"sort"
	"strings"
)

// MergeEnv overlays vars on base, a list of KEY=VALUE pairs as returned by
// os.Environ. Overlay values win; overlay keys are appended in sorted order
// so the result is stable.
func MergeEnv(base []string, vars map[string]string) []string {
	foldCase := runtime.GOOS == "windows"
	overridden := func(key string) bool {
		if _, ok := vars[key]; ok {
			return true
		}
		if foldCase {
			for k := range vars {
				if strings.EqualFold(k, key) {
					return true
				}
			}
		}
		return false
	}

	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i > 0 {
			key = kv[:i]
		}
		if overridden(key) {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}
