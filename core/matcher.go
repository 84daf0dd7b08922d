package core

import "strings"

// TopicMatcher determines whether a filter pattern matches an event class
// or subclass name.
type TopicMatcher interface {
	Match(pattern string, name string) bool
}

// DefaultMatcher matches dot-separated names. It supports exact matching,
// a single-level wildcard (*) and a multi-level wildcard (#).
//
// Examples:
//
//	"CHANNEL_CREATE"   matches "CHANNEL_CREATE"      (exact)
//	"conference.*"     matches "conference.join"     (single-level)
//	"conference.*"     does NOT match "conference.room.join"
//	"conference.#"     matches "conference.room.join" (multi-level)
//	"#"                matches anything, including ""
type DefaultMatcher struct{}

func (DefaultMatcher) Match(pattern, name string) bool {
	return matchParts(strings.Split(pattern, "."), strings.Split(name, "."))
}

func matchParts(pat, parts []string) bool {
	for len(pat) > 0 && len(parts) > 0 {
		switch pat[0] {
		case "#":
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchParts(pat[1:], parts[i:]) {
					return true
				}
			}
			return false
		case "*":
		default:
			if pat[0] != parts[0] {
				return false
			}
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(pat) == 0 && len(parts) == 0
}
