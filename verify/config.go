package verify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/exec"
)

// DefaultConfigFile is the configuration file looked up by the CLI.
const DefaultConfigFile = ".sepexec.yaml"

// Config is the verifier configuration as stored in a YAML file.
type Config struct {
	// Subsumption keeps the facts learned while checking an assert.
	Subsumption bool `yaml:"subsumption"`
	// Parallelism bounds how many methods are verified at once.
	Parallelism int `yaml:"parallelism"`
	// MaxCaseSplits bounds the disjunctions split per solver query.
	MaxCaseSplits int `yaml:"max_case_splits"`
	// ReportAll keeps every failure of a method instead of the first.
	ReportAll bool `yaml:"report_all"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Subsumption:   true,
		Parallelism:   runtime.NumCPU(),
		MaxCaseSplits: decider.DefaultConfig().MaxCaseSplits,
	}
}

// LoadConfig reads a configuration file. Keys missing from the file keep
// their default values. An empty path yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return config, fmt.Errorf("error opening config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("error parsing config %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return config, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// WriteConfig stores config at path, replacing any existing file.
func WriteConfig(path string, config Config) error {
	d, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}

func (c Config) validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if c.MaxCaseSplits < 0 {
		return fmt.Errorf("max_case_splits must not be negative, got %d", c.MaxCaseSplits)
	}
	return nil
}

func (c Config) executor() exec.Config {
	return exec.Config{Subsumption: c.Subsumption, ReportAll: c.ReportAll}
}

func (c Config) decider() decider.Config {
	return decider.Config{MaxCaseSplits: c.MaxCaseSplits, ReportAll: c.ReportAll}
}
