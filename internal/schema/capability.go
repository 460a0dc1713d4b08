package schema

// CapabilityDefinition is the protocol-neutral projection of a capability
// exposed to the model backend. Adapters translate it into the function-call
// schema their wire protocol expects.
type CapabilityDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
