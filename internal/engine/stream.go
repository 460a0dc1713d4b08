package engine

import (
	"sort"
	"strings"

	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

// accumulator reconstructs a complete reply from streamed fragments.
//
// Text deltas append to one buffer and are forwarded to the token callback
// in arrival order. Capability-call deltas are partial and positional: each
// fragment carries an index and may contribute the call id, the name, or a
// piece of the argument text. Fragments accumulate per index; when the
// stream ends the calls are assembled and sorted by index ascending, which
// keeps reconstruction stable however fragments for different indices
// interleave.
type accumulator struct {
	onToken func(string)
	text    strings.Builder
	calls   map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newAccumulator(onToken func(string)) *accumulator {
	return &accumulator{onToken: onToken, calls: make(map[int]*partialCall)}
}

// feed consumes one fragment. Id and name take the last non-empty value
// seen; argument text concatenates in arrival order.
func (a *accumulator) feed(f model.Fragment) {
	if f.Text != "" {
		a.text.WriteString(f.Text)
		if a.onToken != nil {
			a.onToken(f.Text)
		}
	}
	if f.Call == nil {
		return
	}
	pc := a.calls[f.Call.Index]
	if pc == nil {
		pc = &partialCall{}
		a.calls[f.Call.Index] = pc
	}
	if f.Call.ID != "" {
		pc.id = f.Call.ID
	}
	if f.Call.Name != "" {
		pc.name = f.Call.Name
	}
	pc.args.WriteString(f.Call.Arguments)
}

// reply assembles the buffered text and reconstructed calls.
func (a *accumulator) reply() *model.Reply {
	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]schema.CapabilityCall, 0, len(indices))
	for _, idx := range indices {
		pc := a.calls[idx]
		calls = append(calls, schema.CapabilityCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: pc.args.String(),
		})
	}
	return &model.Reply{Text: a.text.String(), Calls: calls}
}
