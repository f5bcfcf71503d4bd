package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchingPatterns(t *testing.T) {
	got := matchingPatterns("user.created")
	assert.ElementsMatch(t, []string{"user.created", "*.created", "user.*", "*.*"}, got)
}

func TestMatchingPatternsSinglePart(t *testing.T) {
	got := matchingPatterns("tick")
	assert.ElementsMatch(t, []string{"tick", "*"}, got)
}

func subscriberMatches(subscribed, eventType string) bool {
	for _, p := range matchingPatterns(eventType) {
		if p == subscribed {
			return true
		}
	}
	return false
}

func TestSubscriberMatches(t *testing.T) {
	assert.True(t, subscriberMatches("user.*", "user.created"))
	assert.True(t, subscriberMatches("*.created", "user.created"))
	assert.True(t, subscriberMatches("*.*", "org.removed"))
	assert.False(t, subscriberMatches("user.*", "org.created"))
}

func TestBareStarMatchesEverySegmentCount(t *testing.T) {
	assert.True(t, patternMatches("*", "tick"))
	assert.True(t, patternMatches("*", "org.added"))
	assert.True(t, patternMatches("*", "user.human.email.changed"))
	assert.False(t, patternMatches("*.*", "user.human.added"), "segment wildcards stay segment-exact")
}
