package decoy

import "strings"

// Record is a pre-fabricated response registered for a request path by the
// external deception agent.
type Record struct {
	ResponseType string `json:"response_type"`
	Content      string `json:"content"`
	ContentType  string `json:"content_type"`
}

// Registry maps registered request paths to their decoy records.
type Registry map[string]Record

// Resolve looks up the decoy registered for path. Exact matches win;
// otherwise the longest registered prefix of path is used. The root key
// "/" is never considered as a prefix rule, since it would shadow every
// path on the backend - it only matches "/" exactly.
//
// Longest-prefix-wins makes the result deterministic when several prefixes
// cover the same path, regardless of registry iteration order.
func Resolve(path string, registry Registry) (Record, bool) {
	if rec, ok := registry[path]; ok {
		return rec, true
	}

	var (
		best    Record
		bestLen = -1
	)
	for key, rec := range registry {
		if key == "/" {
			continue
		}
		if len(key) > bestLen && strings.HasPrefix(path, key) {
			best = rec
			bestLen = len(key)
		}
	}
	if bestLen < 0 {
		return Record{}, false
	}
	return best, true
}
