package population

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Config stores everything needed to build a population of genomes.
type Config struct {
	Population PopulationConfig `yaml:"population"`
	Mutation   MutationParams   `yaml:"mutation"`
	Store      StoreConfig      `yaml:"store"`
	// Topology is parsed from the [Network] section.
	Topology Topology `yaml:"-"`
}

// PopulationConfig holds parameters for building a population.
type PopulationConfig struct {
	PopSize int   `ini:"pop_size" yaml:"pop_size"`
	Seed    int64 `ini:"seed" yaml:"seed"`       // 0 picks a time-based seed
	Workers int   `ini:"workers" yaml:"workers"` // 0 uses one worker per CPU
}

// StoreConfig holds persistence parameters.
type StoreConfig struct {
	Backend string `ini:"backend" yaml:"backend"` // "memory" or "sqlite"
	Path    string `ini:"path" yaml:"path"`       // sqlite database file
	SaveDir string `ini:"save_dir" yaml:"save_dir"`
}

// LoadConfig loads configuration from an INI file, or from YAML when the
// file extension is .yaml or .yml.
func LoadConfig(filePath string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		config, err = loadYAML(filePath)
	default:
		config, err = loadINI(filePath)
	}
	if err != nil {
		return nil, err
	}
	if err := config.finish(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadINI(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := &Config{}
	if err := cfg.Section("Population").MapTo(&config.Population); err != nil {
		return nil, fmt.Errorf("failed to map [Population] section: %w", err)
	}
	if err := cfg.Section("Mutation").MapTo(&config.Mutation); err != nil {
		return nil, fmt.Errorf("failed to map [Mutation] section: %w", err)
	}
	if err := cfg.Section("Store").MapTo(&config.Store); err != nil {
		return nil, fmt.Errorf("failed to map [Store] section: %w", err)
	}

	// Topology keys go through ParseTopology so that an absent key (timesteps
	// in particular) is distinguishable from a zero value.
	network := cfg.Section("Network")
	params := make(map[string]any, len(network.Keys()))
	for _, key := range network.Keys() {
		params[key.Name()] = cleanIniString(key.String())
	}
	config.Topology, err = ParseTopology(params)
	if err != nil {
		return nil, fmt.Errorf("invalid [Network] section: %w", err)
	}
	return config, nil
}

// yamlConfig mirrors Config with the network section left untyped for ParseTopology.
type yamlConfig struct {
	Population PopulationConfig `yaml:"population"`
	Network    map[string]any   `yaml:"network"`
	Mutation   MutationParams   `yaml:"mutation"`
	Store      StoreConfig      `yaml:"store"`
}

func loadYAML(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}
	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filePath, err)
	}
	topo, err := ParseTopology(raw.Network)
	if err != nil {
		return nil, fmt.Errorf("invalid network section: %w", err)
	}
	return &Config{
		Population: raw.Population,
		Mutation:   raw.Mutation,
		Store:      raw.Store,
		Topology:   topo,
	}, nil
}

// finish applies defaults and validates the non-topology sections.
func (c *Config) finish() error {
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.SaveDir == "" {
		c.Store.SaveDir = "model/"
	}
	if c.Population.Workers <= 0 {
		c.Population.Workers = runtime.NumCPU()
	}

	if c.Population.PopSize <= 0 {
		return fmt.Errorf("%w: pop_size must be positive", ErrConfiguration)
	}
	if err := c.Mutation.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: sqlite store requires a path", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: invalid store backend '%s'", ErrConfiguration, c.Store.Backend)
	}
	return nil
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
