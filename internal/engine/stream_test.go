package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

func callFrag(index int, id, name, args string) model.Fragment {
	return model.Fragment{Call: &model.CallDelta{Index: index, ID: id, Name: name, Arguments: args}}
}

func TestAccumulator_ScrambledFragmentsReconstructIdentically(t *testing.T) {
	inOrder := []model.Fragment{
		callFrag(0, "call_a", "web_read", ""),
		callFrag(0, "", "", `{"url":`),
		callFrag(0, "", "", `"https://x"}`),
		callFrag(1, "call_b", "recall_facts", ""),
		callFrag(1, "", "", `{"query":"tea"}`),
	}
	// Same content, fragments for the two indices interleaved.
	scrambled := []model.Fragment{
		callFrag(1, "call_b", "recall_facts", ""),
		callFrag(0, "call_a", "web_read", ""),
		callFrag(1, "", "", `{"query":`),
		callFrag(0, "", "", `{"url":`),
		callFrag(1, "", "", `"tea"}`),
		callFrag(0, "", "", `"https://x"}`),
	}

	want := []schema.CapabilityCall{
		{ID: "call_a", Name: "web_read", Arguments: `{"url":"https://x"}`},
		{ID: "call_b", Name: "recall_facts", Arguments: `{"query":"tea"}`},
	}

	for name, frags := range map[string][]model.Fragment{"in order": inOrder, "scrambled": scrambled} {
		t.Run(name, func(t *testing.T) {
			acc := newAccumulator(nil)
			for _, f := range frags {
				acc.feed(f)
			}
			require.Equal(t, want, acc.reply().Calls)
		})
	}
}

func TestAccumulator_LastNonEmptyIDAndNameWin(t *testing.T) {
	acc := newAccumulator(nil)
	acc.feed(callFrag(0, "tmp", "draft", "a"))
	acc.feed(callFrag(0, "call_final", "", "b"))
	acc.feed(callFrag(0, "", "echo", "c"))

	calls := acc.reply().Calls
	require.Len(t, calls, 1)
	require.Equal(t, "call_final", calls[0].ID)
	require.Equal(t, "echo", calls[0].Name)
	require.Equal(t, "abc", calls[0].Arguments)
}

func TestAccumulator_TextForwardedInArrivalOrder(t *testing.T) {
	var tokens []string
	acc := newAccumulator(func(tok string) { tokens = append(tokens, tok) })

	acc.feed(model.Fragment{Text: "a"})
	acc.feed(callFrag(0, "id", "name", "{}"))
	acc.feed(model.Fragment{Text: "b"})

	require.Equal(t, []string{"a", "b"}, tokens)
	reply := acc.reply()
	require.Equal(t, "ab", reply.Text)
	require.Len(t, reply.Calls, 1)
}

func TestAccumulator_NoCallsYieldsEmptySlice(t *testing.T) {
	acc := newAccumulator(nil)
	acc.feed(model.Fragment{Text: "plain"})
	require.Empty(t, acc.reply().Calls)
}
