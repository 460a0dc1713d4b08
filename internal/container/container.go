// Package container wires the core seneschal services using go.uber.org/dig.
package container

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/dig"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/engine"
	"github.com/seneschal/seneschal/internal/facts"
	"github.com/seneschal/seneschal/internal/memory"
	"github.com/seneschal/seneschal/internal/model"
	anthropicbackend "github.com/seneschal/seneschal/internal/model/anthropic"
	openaibackend "github.com/seneschal/seneschal/internal/model/openai"
	"github.com/seneschal/seneschal/internal/prompt"
	"github.com/seneschal/seneschal/internal/scheduler"
	"github.com/seneschal/seneschal/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg      *config.Config
	backend  model.Backend
	msgBus   *bus.MessageBus
	mem      *memory.Manager
	factsDB  *facts.Store
	registry *capability.Registry
	composer *prompt.Composer
	eng      *engine.Engine
	sched    *scheduler.Service
}

func (c *Container) Config() *config.Config         { return c.cfg }
func (c *Container) Backend() model.Backend         { return c.backend }
func (c *Container) MessageBus() *bus.MessageBus    { return c.msgBus }
func (c *Container) Memory() *memory.Manager        { return c.mem }
func (c *Container) Facts() *facts.Store            { return c.factsDB }
func (c *Container) Registry() *capability.Registry { return c.registry }
func (c *Container) Composer() *prompt.Composer     { return c.composer }
func (c *Container) Engine() *engine.Engine         { return c.eng }
func (c *Container) Scheduler() *scheduler.Service  { return c.sched }

// Close releases container-held resources, currently the fact store's
// database handle.
func (c *Container) Close() error {
	if c.factsDB != nil {
		return c.factsDB.Close()
	}
	return nil
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	for _, provide := range []any{
		func() *config.Config { return cfg },
		newBackend,
		newMessageBus,
		newMemoryManager,
		newFactStore,
		newCompactor,
		newRegistry,
		newComposer,
		newSendFunc,
		newScheduler,
		newEngine,
	} {
		if err := d.Provide(provide); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		backend model.Backend,
		msgBus *bus.MessageBus,
		mem *memory.Manager,
		factsDB *facts.Store,
		registry *capability.Registry,
		composer *prompt.Composer,
		eng *engine.Engine,
		sched *scheduler.Service,
	) {
		result = &Container{
			cfg:      cfg,
			backend:  backend,
			msgBus:   msgBus,
			mem:      mem,
			factsDB:  factsDB,
			registry: registry,
			composer: composer,
			eng:      eng,
			sched:    sched,
		}
	})
	if err != nil {
		return nil, err
	}

	// Manifest agents run nested loops, so they can only be registered once
	// the engine exists.
	registerAgents(result.registry, result.eng, cfg)

	// Persisted enable/disable overrides apply after every capability,
	// including manifest agents, is registered.
	result.registry.AttachToggles(capability.NewToggleStore(
		filepath.Join(config.DataDir(), "capabilities.json")))

	return result, nil
}

func newBackend(cfg *config.Config) (model.Backend, error) {
	switch strings.ToLower(cfg.Provider.Name) {
	case "", "openai":
		return openaibackend.New(func(o *openaibackend.Options) {
			if cfg.Agent.Model != "" {
				o.Model = cfg.Agent.Model
			}
			if cfg.Agent.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.Agent.MaxTokens)
			}
			o.Temperature = cfg.Agent.Temperature
			o.APIKey = cfg.Provider.APIKey
			o.BaseURL = cfg.Provider.BaseURL
		}), nil
	case "anthropic":
		return anthropicbackend.New(func(o *anthropicbackend.Options) {
			if cfg.Agent.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Agent.Model)
			}
			if cfg.Agent.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.Agent.MaxTokens)
			}
			o.Temperature = cfg.Agent.Temperature
			o.APIKey = cfg.Provider.APIKey
			o.BaseURL = cfg.Provider.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q; edit %s", cfg.Provider.Name, config.ConfigPath())
	}
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newMemoryManager(cfg *config.Config) (*memory.Manager, error) {
	dir := filepath.Join(config.DataDir(), "conversations")
	return memory.NewManager(dir, cfg.Agent.MaxHistory)
}

func newFactStore() (*facts.Store, error) {
	return facts.Open(filepath.Join(config.DataDir(), "facts.db"))
}

func newCompactor(mem *memory.Manager, backend model.Backend, cfg *config.Config) *memory.Compactor {
	return memory.NewCompactor(
		mem,
		backend,
		cfg.Agent.Model,
		cfg.Memory.CompactChunkTurns,
		cfg.Memory.SummaryMaxChars,
		requestTimeout(cfg),
	)
}

func newRegistry(cfg *config.Config, factsDB *facts.Store) *capability.Registry {
	reg := capability.NewRegistry()
	for _, t := range tools.Builtin(tools.Deps{
		Facts:           factsDB,
		WebReadMaxChars: cfg.Capabilities.WebReadMaxChars,
		RecallLimit:     cfg.Memory.ScopedFactLimit,
	}) {
		reg.Register(t)
	}
	return reg
}

func newComposer(cfg *config.Config, reg *capability.Registry, mem *memory.Manager, factsDB *facts.Store) *prompt.Composer {
	return prompt.NewComposer(prompt.Options{
		Persona:         cfg.Agent.Persona,
		Registry:        reg,
		Memory:          mem,
		Facts:           factsDB,
		GlobalFactLimit: cfg.Memory.GlobalFactLimit,
		ScopedFactLimit: cfg.Memory.ScopedFactLimit,
	})
}

// newSendFunc routes capability-originated messages onto the outbound bus.
// Destinations use the "<channel>:<chatId>" conversation key format.
func newSendFunc(b *bus.MessageBus) capability.SendFunc {
	return func(destination, text string) {
		channel, chatID, ok := strings.Cut(destination, ":")
		if !ok || channel == "" || chatID == "" {
			slog.Warn("send: unroutable destination", "destination", destination)
			return
		}
		b.PublishOutbound(bus.NewOutboundMessage(channel, chatID, text))
	}
}

func newScheduler() *scheduler.Service {
	return scheduler.NewService(filepath.Join(config.DataDir(), "scheduler", "jobs.json"))
}

func newEngine(
	backend model.Backend,
	reg *capability.Registry,
	mem *memory.Manager,
	composer *prompt.Composer,
	compactor *memory.Compactor,
	send capability.SendFunc,
	cfg *config.Config,
) *engine.Engine {
	return engine.New(engine.Options{
		Backend:   backend,
		Registry:  reg,
		Memory:    mem,
		Composer:  composer,
		Compactor: compactor,
		Send:      send,
		Config:    cfg.Agent,
	})
}

// registerAgents loads the agents.yaml manifest and registers every entry.
// A missing manifest is normal; a malformed one is logged and skipped so the
// process still starts with the built-in tools.
func registerAgents(reg *capability.Registry, runner capability.AgentRunner, cfg *config.Config) {
	path := cfg.Capabilities.ManifestPath
	if path == "" {
		path = filepath.Join(config.DataDir(), "agents.yaml")
	}
	agents, err := capability.LoadManifest(path, runner)
	if err != nil {
		slog.Warn("container: loading agent manifest failed", "path", path, "error", err)
		return
	}
	for _, a := range agents {
		reg.Register(a)
	}
	if len(agents) > 0 {
		slog.Info("container: registered manifest agents", "count", len(agents), "path", path)
	}
}

func requestTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Agent.RequestTimeoutSeconds) * time.Second
}
