package spark

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileAccessScope bounds what an agent may read and write, expressed as
// doublestar glob patterns. A nil pattern list means unrestricted; the
// forbidden list always wins over read and write grants.
type FileAccessScope struct {
	ReadPatterns      []string `json:"read_patterns,omitempty"`
	WritePatterns     []string `json:"write_patterns,omitempty"`
	ForbiddenPatterns []string `json:"forbidden_patterns,omitempty"`
	noAccess          bool
}

// Permissive returns the unconstrained scope.
func Permissive() FileAccessScope {
	return FileAccessScope{}
}

// NoAccess returns the scope that denies everything. It absorbs any scope it
// is intersected with.
func NoAccess() FileAccessScope {
	return FileAccessScope{noAccess: true}
}

// IsNoAccess reports whether the scope denies everything.
func (s FileAccessScope) IsNoAccess() bool {
	return s.noAccess
}

// IsPermissive reports whether the scope carries no constraints at all.
func (s FileAccessScope) IsPermissive() bool {
	return !s.noAccess && s.ReadPatterns == nil && s.WritePatterns == nil &&
		len(s.ForbiddenPatterns) == 0
}

// CanRead reports whether the path is readable under this scope.
func (s FileAccessScope) CanRead(path string) bool {
	if s.noAccess || matchAny(s.ForbiddenPatterns, path) {
		return false
	}
	return s.ReadPatterns == nil || matchAny(s.ReadPatterns, path)
}

// CanWrite reports whether the path is writable under this scope.
func (s FileAccessScope) CanWrite(path string) bool {
	if s.noAccess || matchAny(s.ForbiddenPatterns, path) {
		return false
	}
	return s.WritePatterns == nil || matchAny(s.WritePatterns, path)
}

// Intersect folds two scopes into one that is at most as permissive as
// either: read and write pattern sets intersect, forbidden patterns union,
// and NoAccess absorbs everything.
func (s FileAccessScope) Intersect(other FileAccessScope) FileAccessScope {
	if s.noAccess || other.noAccess {
		return NoAccess()
	}
	return FileAccessScope{
		ReadPatterns:      intersectPatterns(s.ReadPatterns, other.ReadPatterns),
		WritePatterns:     intersectPatterns(s.WritePatterns, other.WritePatterns),
		ForbiddenPatterns: unionPatterns(s.ForbiddenPatterns, other.ForbiddenPatterns),
	}
}

// intersectPatterns keeps the patterns both sides grant. nil means
// unrestricted, so the other side's constraint carries through unchanged. An
// empty non-nil result grants nothing.
func intersectPatterns(a, b []string) []string {
	if a == nil {
		return clonePatterns(b)
	}
	if b == nil {
		return clonePatterns(a)
	}
	inB := make(map[string]bool, len(b))
	for _, p := range b {
		inB[p] = true
	}
	out := []string{}
	for _, p := range a {
		if inB[p] {
			out = append(out, p)
		}
	}
	return out
}

func unionPatterns(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, p := range append(clonePatterns(a), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func clonePatterns(patterns []string) []string {
	if patterns == nil {
		return nil
	}
	return append([]string(nil), patterns...)
}

func matchAny(patterns []string, path string) bool {
	path = strings.TrimPrefix(path, "./")
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
