package finny

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry resolves the named guard and action references used by a
// declarative Config. Hooks are registered in code before the config is
// built; an unresolved reference is an assembly-time error, never a
// runtime fallback.
type Registry struct {
	guards  map[string]Guard
	actions map[string]Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guards:  make(map[string]Guard),
		actions: make(map[string]Action),
	}
}

// RegisterGuard binds a name usable in Config guard references.
func (r *Registry) RegisterGuard(name string, guard Guard) *Registry {
	r.guards[name] = guard
	return r
}

// RegisterAction binds a name usable in Config action/entry/exit
// references.
func (r *Registry) RegisterAction(name string, action Action) *Registry {
	r.actions[name] = action
	return r
}

func (r *Registry) guard(name string) (Guard, error) {
	if name == "" {
		return nil, nil
	}
	g, ok := r.guards[name]
	if !ok {
		return nil, fmt.Errorf("guard %q not registered", name)
	}
	return g, nil
}

func (r *Registry) action(name string) (Action, error) {
	if name == "" {
		return nil, nil
	}
	a, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("action %q not registered", name)
	}
	return a, nil
}

// Duration is a time.Duration parsed from Go duration syntax ("50ms",
// "2s") in YAML documents.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the YAML-loadable machine description: the declarative form
// of what the Builder expresses in code. Guards and actions are referred
// to by registered name.
type Config struct {
	Name    string         `yaml:"name" json:"name"`
	Regions []RegionConfig `yaml:"regions" json:"regions"`
}

// RegionConfig describes one orthogonal region.
type RegionConfig struct {
	Name    string        `yaml:"name" json:"name"`
	Initial string        `yaml:"initial" json:"initial"`
	States  []StateConfig `yaml:"states" json:"states"`
}

// StateConfig describes one state, its hooks, timer, transitions and an
// optional nested submachine.
type StateConfig struct {
	Name       string             `yaml:"name" json:"name"`
	Entry      string             `yaml:"entry,omitempty" json:"entry,omitempty"`
	Exit       string             `yaml:"exit,omitempty" json:"exit,omitempty"`
	Timer      Duration           `yaml:"timer,omitempty" json:"timer,omitempty"`
	On         []TransitionConfig `yaml:"on,omitempty" json:"on,omitempty"`
	OnTimeout  []TransitionConfig `yaml:"onTimeout,omitempty" json:"onTimeout,omitempty"`
	Submachine *SubmachineConfig  `yaml:"submachine,omitempty" json:"submachine,omitempty"`
}

// TransitionConfig describes one transition candidate. An empty Target
// makes it internal. Candidates for the same event keep their document
// order.
type TransitionConfig struct {
	Event  string `yaml:"event" json:"event"`
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
	Guard  string `yaml:"guard,omitempty" json:"guard,omitempty"`
	Action string `yaml:"action,omitempty" json:"action,omitempty"`
}

// SubmachineConfig nests a complete child machine description under the
// hosting state.
type SubmachineConfig struct {
	Machine    Config `yaml:"machine" json:"machine"`
	Terminal   string `yaml:"terminal" json:"terminal"`
	Completion string `yaml:"completion" json:"completion"`
}

// ParseConfig unmarshals a YAML machine description and runs the
// structural validation that does not need a Registry.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing machine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the description's shape: name present, at least one
// region, each region with states and an initial, no unnamed states or
// events, submachine bindings complete. Table-level validation
// (reachability, target resolution) happens in Build.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("machine name is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("machine %q declares no regions", c.Name)
	}
	for _, region := range c.Regions {
		if region.Name == "" {
			return fmt.Errorf("machine %q has an unnamed region", c.Name)
		}
		if region.Initial == "" {
			return fmt.Errorf("region %q declares no initial state", region.Name)
		}
		if len(region.States) == 0 {
			return fmt.Errorf("region %q declares no states", region.Name)
		}
		for _, state := range region.States {
			if state.Name == "" {
				return fmt.Errorf("region %q has an unnamed state", region.Name)
			}
			if len(state.OnTimeout) > 0 && state.Timer <= 0 {
				return fmt.Errorf("state %q declares a timeout transition but no timer", state.Name)
			}
			for _, t := range state.On {
				if t.Event == "" {
					return fmt.Errorf("state %q has a transition with no event", state.Name)
				}
			}
			for _, t := range state.OnTimeout {
				if t.Target == "" {
					return fmt.Errorf("state %q has a timeout transition with no target", state.Name)
				}
			}
			if sub := state.Submachine; sub != nil {
				if sub.Terminal == "" || sub.Completion == "" {
					return fmt.Errorf("state %q submachine needs terminal and completion", state.Name)
				}
				if err := sub.Machine.Validate(); err != nil {
					return fmt.Errorf("state %q submachine: %w", state.Name, err)
				}
			}
		}
	}
	return nil
}

// Build resolves all named references against the registry and produces
// the validated, immutable TransitionTable, nested submachines included.
func (c *Config) Build(reg *Registry) (*TransitionTable, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	b := NewBuilder(c.Name)
	for _, regionCfg := range c.Regions {
		region := b.Region(regionCfg.Name, regionCfg.Initial)
		for _, stateCfg := range regionCfg.States {
			state := region.State(stateCfg.Name)
			if err := applyStateConfig(b, state, &stateCfg, reg); err != nil {
				return nil, fmt.Errorf("machine %q, state %q: %w", c.Name, stateCfg.Name, err)
			}
		}
	}
	return b.Build()
}

// declareForwardedEvents registers a hosted machine's event names in the
// parent's namespace, in document order, so they can be dispatched at the
// parent and forwarded across the boundary.
func declareForwardedEvents(b *Builder, cfg *Config) {
	for _, region := range cfg.Regions {
		for _, state := range region.States {
			for _, t := range state.On {
				b.Event(t.Event)
			}
			if state.Submachine != nil {
				declareForwardedEvents(b, &state.Submachine.Machine)
			}
		}
	}
}

func applyStateConfig(b *Builder, state *StateBuilder, cfg *StateConfig, reg *Registry) error {
	entry, err := reg.action(cfg.Entry)
	if err != nil {
		return err
	}
	if entry != nil {
		state.Entry(entry)
	}
	exit, err := reg.action(cfg.Exit)
	if err != nil {
		return err
	}
	if exit != nil {
		state.Exit(exit)
	}
	if cfg.Timer > 0 {
		state.Timer(time.Duration(cfg.Timer))
	}
	for _, t := range cfg.On {
		guard, err := reg.guard(t.Guard)
		if err != nil {
			return err
		}
		action, err := reg.action(t.Action)
		if err != nil {
			return err
		}
		if t.Target == "" {
			state.OnInternal(t.Event, guard, action)
		} else {
			state.On(t.Event, t.Target, guard, action)
		}
	}
	for _, t := range cfg.OnTimeout {
		guard, err := reg.guard(t.Guard)
		if err != nil {
			return err
		}
		action, err := reg.action(t.Action)
		if err != nil {
			return err
		}
		state.OnTimeout(t.Target, guard, action)
	}
	if sub := cfg.Submachine; sub != nil {
		child, err := sub.Machine.Build(reg)
		if err != nil {
			return err
		}
		state.Submachine(child, sub.Terminal, sub.Completion)
		declareForwardedEvents(b, &sub.Machine)
	}
	return nil
}
