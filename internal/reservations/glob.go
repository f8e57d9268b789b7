package reservations

import "strings"

// PatternsIntersect reports whether two path patterns could both match at
// least one common path (spec §4.4: reservation conflict detection is glob
// intersection, not string equality). Segments are '/'-delimited; '*'
// matches exactly one path segment, '**' matches zero or more segments,
// any other segment matches only itself.
func PatternsIntersect(a, b string) bool {
	return segmentsIntersect(splitSegments(a), splitSegments(b))
}

func splitSegments(pattern string) []string {
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return []string{}
	}
	return strings.Split(pattern, "/")
}

// segmentsIntersect is a classic two-pointer wildcard match generalized to
// two pattern sequences instead of one pattern and one literal string: '**'
// on either side can consume zero or more segments from the other side.
func segmentsIntersect(a, b []string) bool {
	memo := make(map[[2]int]bool)
	var walk func(i, j int) bool
	walk = func(i, j int) bool {
		key := [2]int{i, j}
		if v, ok := memo[key]; ok {
			return v
		}
		result := matchStep(a, b, i, j, walk)
		memo[key] = result
		return result
	}
	return walk(0, 0)
}

func matchStep(a, b []string, i, j int, walk func(int, int) bool) bool {
	if i == len(a) && j == len(b) {
		return true
	}
	if i < len(a) && a[i] == "**" {
		// '**' may consume 0..remaining segments of b.
		for k := j; k <= len(b); k++ {
			if walk(i+1, k) {
				return true
			}
		}
		return false
	}
	if j < len(b) && b[j] == "**" {
		for k := i; k <= len(a); k++ {
			if walk(k, j+1) {
				return true
			}
		}
		return false
	}
	if i == len(a) || j == len(b) {
		return false
	}
	if segmentMatches(a[i], b[j]) {
		return walk(i+1, j+1)
	}
	return false
}

func segmentMatches(x, y string) bool {
	if x == "*" || y == "*" {
		return true
	}
	return x == y
}
