package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// agentManifest is the on-disk agents.yaml document.
type agentManifest struct {
	Agents []agentEntry `yaml:"agents"`
}

type agentEntry struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	SystemPrompt  string   `yaml:"systemPrompt"`
	Tools         []string `yaml:"tools"`
	MaxIterations int      `yaml:"maxIterations"`
	Model         string   `yaml:"model"`
}

// LoadManifest reads an agents.yaml file and returns Agent capabilities
// bound to runner. A missing file is not an error; it yields no agents.
func LoadManifest(path string, runner AgentRunner) ([]*Agent, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading agent manifest: %w", err)
	}

	var doc agentManifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing agent manifest: %w", err)
	}

	agents := make([]*Agent, 0, len(doc.Agents))
	for _, e := range doc.Agents {
		if e.Name == "" {
			return nil, fmt.Errorf("agent manifest: entry without a name")
		}
		agents = append(agents, NewAgent(AgentSpec{
			Name:          e.Name,
			Description:   e.Description,
			SystemPrompt:  e.SystemPrompt,
			Tools:         e.Tools,
			MaxIterations: e.MaxIterations,
			Model:         e.Model,
		}, runner))
	}
	return agents, nil
}
