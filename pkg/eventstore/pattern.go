package eventstore

import "strings"

// matchingPatterns returns the dotted wildcard patterns a subscription on
// eventType should also match against: "user.created" expands to
// ["user.created", "user.*", "*.created", "*.*"].
func matchingPatterns(eventType string) []string {
	parts := splitDotted(eventType)
	if len(parts) == 0 {
		return []string{eventType}
	}
	if len(parts) == 1 {
		return []string{eventType, "*"}
	}

	patterns := make([]string, 0, len(parts)+2)
	patterns = append(patterns, eventType)
	for i := range parts {
		wildcard := make([]string, len(parts))
		copy(wildcard, parts)
		wildcard[i] = "*"
		patterns = append(patterns, strings.Join(wildcard, "."))
	}
	allWildcard := make([]string, len(parts))
	for i := range allWildcard {
		allWildcard[i] = "*"
	}
	patterns = append(patterns, strings.Join(allWildcard, "."))
	return dedupe(patterns)
}

func splitDotted(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ".")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// patternMatches reports whether eventType satisfies the dotted wildcard
// pattern (e.g. pattern "user.*" matches eventType "user.created"). The
// bare "*" matches every event type regardless of segment count.
func patternMatches(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	pParts := splitDotted(pattern)
	eParts := splitDotted(eventType)
	if len(pParts) != len(eParts) {
		return false
	}
	for i := range pParts {
		if pParts[i] != "*" && pParts[i] != eParts[i] {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
