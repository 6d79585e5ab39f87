package common

import "unicode/utf8"

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return s
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Window returns characters [start, end) of s, clamped to its length.
func Window(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return ""
	}
	i, from, to := 0, -1, len(s)
	for pos := range s {
		if i == start {
			from = pos
		}
		if i == end {
			to = pos
			break
		}
		i++
	}
	if from < 0 {
		return ""
	}
	return s[from:to]
}

// CharLen counts characters, not bytes.
func CharLen(s string) int { return utf8.RuneCountInString(s) }
