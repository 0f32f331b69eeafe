// Package presence pairs "user went live" presence signals with a stream
// notice and a marker role, and tears both down when the user stops.
package presence

import "strings"

// ActivityType mirrors the chat platform's activity kinds that matter here.
type ActivityType int

// Activity kinds.
const (
	ActivityOther ActivityType = iota
	ActivityStreaming
)

// Activity is a platform-neutral view of one presence activity.
type Activity struct {
	Type ActivityType
	// Name is the streaming platform, e.g. "Twitch".
	Name string
	// State usually carries the game being streamed.
	State string
	// Details usually carries the stream title.
	Details string
	URL     string
}

// Matcher decides whether an activity is a live stream of the monitored game.
type Matcher struct {
	game      string
	platforms []string
}

// NewMatcher creates a Matcher for game on the given platforms.
func NewMatcher(game string, platforms []string) Matcher {
	return Matcher{game: game, platforms: platforms}
}

// Matches reports whether a is a live stream of the monitored game on one
// of the accepted platforms.
func (m Matcher) Matches(a Activity) bool {
	if a.Type != ActivityStreaming || m.game == "" {
		return false
	}
	if !m.platformAccepted(a.Name) {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(a.State), m.game) {
		return true
	}
	return strings.Contains(strings.ToLower(a.Details), strings.ToLower(m.game))
}

// Find returns the first matching activity.
func (m Matcher) Find(activities []Activity) (Activity, bool) {
	for _, a := range activities {
		if m.Matches(a) {
			return a, true
		}
	}
	return Activity{}, false
}

func (m Matcher) platformAccepted(name string) bool {
	for _, p := range m.platforms {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}
