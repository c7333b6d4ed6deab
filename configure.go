package brew

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the bootstrap configuration of a run. Zero values mean "keep
// the default": empty mode stays CPU, an empty device list keeps the
// probed root device, RandomSeed -1 leaves the run nondeterministic.
type Config struct {
	Mode         string `yaml:"mode"`
	Devices      []int  `yaml:"devices"`
	RandomSeed   int64  `yaml:"random_seed"`
	SolverCount  int    `yaml:"solver_count"`
	RestoredIter int64  `yaml:"restored_iter"`
	WorkspaceMB  int    `yaml:"workspace_mb"`
	LogLevel     string `yaml:"log_level"`
}

// DefaultConfig returns the configuration of a fresh single-solver CPU
// run.
func DefaultConfig() *Config {
	return &Config{
		Mode:         "cpu",
		RandomSeed:   -1,
		SolverCount:  1,
		RestoredIter: restoredIterNotSet,
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &BrewError{Type: ErrTypeConfig, Op: "LoadConfig", Message: fmt.Sprintf("parse %s", path), Err: err}
	}
	return cfg, nil
}

// Validate reports the first problem with the configuration. Bootstrap
// returns errors instead of faulting so a caller can reject a bad file
// before anything is torn up.
func (c *Config) Validate() error {
	if c.Mode != "" {
		if _, err := ParseBrew(c.Mode); err != nil {
			return err
		}
	}
	if c.SolverCount < 0 {
		return NewConfigError("Validate", fmt.Sprintf("solver_count must not be negative, got %d", c.SolverCount))
	}
	if c.WorkspaceMB < 0 {
		return NewConfigError("Validate", fmt.Sprintf("workspace_mb must not be negative, got %d", c.WorkspaceMB))
	}
	for _, id := range c.Devices {
		if !CheckDevice(id) {
			return NewConfigError("Validate", fmt.Sprintf("device %d not usable", id))
		}
	}
	return nil
}

// Configure applies a bootstrap configuration to the process: log level,
// execution mode, device set, solver count, seed lineage and workspace
// pre-reservation, in that order. nil applies the defaults. Configure is
// meant to run once from the main thread before solver threads start;
// accessors fault on their own after that.
func Configure(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		SetLogLevel(cfg.LogLevel)
	}

	if cfg.Mode != "" {
		m, err := ParseBrew(cfg.Mode)
		if err != nil {
			return err
		}
		SetMode(m)
	}

	if len(cfg.Devices) > 0 {
		SetDevice(cfg.Devices[0])
		SetDevices(cfg.Devices)
	}

	if cfg.SolverCount > 0 {
		SetSolverCount(cfg.SolverCount)
	}
	if cfg.RestoredIter >= 0 {
		SetRestoredIter(cfg.RestoredIter)
	}

	// Caffe-style seed convention: negative means unset.
	if cfg.RandomSeed >= 0 {
		SetRootSeed(uint64(cfg.RandomSeed))
	}

	if cfg.WorkspaceMB > 0 {
		for id := 0; id < WSTotal; id++ {
			if err := WS(id).Reserve(cfg.WorkspaceMB << 20); err != nil {
				return err
			}
		}
	}

	logger().Info("configured",
		"mode", Mode().String(),
		"devices", Devices(),
		"solvers", SolverCount(),
		"deterministic", RootSeed() != SeedNotSet)
	return nil
}
