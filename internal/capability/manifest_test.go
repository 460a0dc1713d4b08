package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadManifest(t *testing.T) {
	doc := `agents:
  - name: researcher
    description: Looks things up on the web
    systemPrompt: You research topics thoroughly.
    tools: [web_read]
    maxIterations: 5
  - name: summarizer
    description: Condenses long text
    systemPrompt: You summarize.
    tools: []
    model: gpt-4o-mini
`
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	agents, err := LoadManifest(path, &stubRunner{})
	require.NoError(t, err)
	require.Len(t, agents, 2)

	require.Equal(t, "researcher", agents[0].Definition().Name)
	require.Equal(t, []string{"web_read"}, agents[0].spec.Tools)
	require.Equal(t, 5, agents[0].spec.MaxIterations)

	require.Equal(t, "summarizer", agents[1].Definition().Name)
	require.NotNil(t, agents[1].spec.Tools)
	require.Empty(t, agents[1].spec.Tools)
	require.Equal(t, "gpt-4o-mini", agents[1].spec.Model)
}

func TestLoadManifest_Missing(t *testing.T) {
	agents, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"), &stubRunner{})
	require.NoError(t, err)
	require.Nil(t, agents)
}

func TestLoadManifest_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: {not: [valid"), 0o600))

	_, err := LoadManifest(path, &stubRunner{})
	require.Error(t, err)
}

func TestLoadManifest_RequiresName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  - description: nameless\n"), 0o600))

	_, err := LoadManifest(path, &stubRunner{})
	require.ErrorContains(t, err, "without a name")
}
