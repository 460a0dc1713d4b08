package schema

import "time"

// ScopeGlobal holds facts visible to every conversation. User and channel
// scopes are derived with UserScope/ChannelScope.
const ScopeGlobal = "global"

// Fact is one remembered statement under a scope key; append-only with
// exact-text duplicate suppression inside a scope.
type Fact struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func UserScope(userID string) string { return "user:" + userID }

func ChannelScope(channelID string) string { return "channel:" + channelID }
