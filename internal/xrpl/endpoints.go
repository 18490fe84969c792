package xrpl

import (
	"regexp"
	"strings"
)

// DefaultEndpoint is used when no endpoint list is supplied.
const DefaultEndpoint = "wss://xrplcluster.com"

var endpointPattern = regexp.MustCompile(`^wss?://`)

// endpointSet is an ordered, deduplicated list of WebSocket endpoints with
// a rotation cursor. The cursor always indexes a valid endpoint.
type endpointSet struct {
	endpoints []string
	cursor    int
}

// newEndpointSet normalises the supplied endpoints: whitespace is trimmed,
// non-WebSocket URLs are dropped, duplicates keep their first position.
func newEndpointSet(endpoints []string) (*endpointSet, error) {
	seen := make(map[string]struct{}, len(endpoints))
	valid := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e = strings.TrimSpace(e)
		if !endpointPattern.MatchString(e) {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return nil, ErrNoEndpoints
	}
	return &endpointSet{endpoints: valid}, nil
}

// Current returns the endpoint under the cursor.
func (s *endpointSet) Current() string {
	return s.endpoints[s.cursor]
}

// Len returns the number of distinct endpoints.
func (s *endpointSet) Len() int {
	return len(s.endpoints)
}

// Advance moves the cursor to the next endpoint and reports whether it
// wrapped back to the start of the list.
func (s *endpointSet) Advance() bool {
	s.cursor = (s.cursor + 1) % len(s.endpoints)
	return s.cursor == 0
}
