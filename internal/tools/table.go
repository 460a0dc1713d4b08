// Package tools provides the built-in tool set. Tools are registered from an
// explicit constructor table at startup; adding a tool means adding it to
// Builtin, not dropping a file into a scan path.
package tools

import (
	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/facts"
)

// Deps carries the shared state the built-in tools need.
type Deps struct {
	Facts           *facts.Store
	WebReadMaxChars int
	RecallLimit     int
}

// Builtin returns the built-in tools in registration order.
func Builtin(deps Deps) []*capability.Tool {
	return []*capability.Tool{
		NewWebReadTool(deps.WebReadMaxChars),
		NewSendMessageTool(),
		NewRememberFactTool(deps.Facts),
		NewRecallFactsTool(deps.Facts, deps.RecallLimit),
	}
}
