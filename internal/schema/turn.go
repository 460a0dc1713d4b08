// Package schema holds the domain types shared across packages: conversation
// turns, capability definitions, status snapshots, and memory facts.
package schema

import "time"

// Role tags a turn with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool" // capability result
)

// Turn is one role-tagged message in a conversation.
//
// Assistant turns may carry Calls (capability requests whose Content can be
// empty). Tool turns carry the textual result of exactly one call, tagged
// with the originating CallID and capability Name.
type Turn struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Calls     []CapabilityCall `json:"calls,omitempty"`
	CallID    string           `json:"callId,omitempty"`
	Name      string           `json:"name,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// CapabilityCall is one capability invocation requested by the model.
// Arguments is the raw JSON object text exactly as the model produced it.
type CapabilityCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content, Timestamp: time.Now()}
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// AssistantCallTurn builds the assistant turn that carries capability
// requests; content may be empty when the model produced calls only.
func AssistantCallTurn(content string, calls []CapabilityCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, Calls: calls, Timestamp: time.Now()}
}

// ToolTurn builds a capability-result turn tagged to its originating call.
func ToolTurn(callID, name, result string) Turn {
	return Turn{Role: RoleTool, Content: result, CallID: callID, Name: name, Timestamp: time.Now()}
}

// CloneTurns returns a shallow copy of the slice so callers can append
// without aliasing the stored history.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
