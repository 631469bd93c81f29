package ga

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/GunPocket/GACar/ga/nn"
)

// Config stores the configuration parameters for the genetic algorithm.
type Config struct {
	GA      GAConfig      `yaml:"ga"`
	Network NetworkConfig `yaml:"network"`
	Output  OutputConfig  `yaml:"output"`
}

// GAConfig holds the parameters of the generation loop itself.
type GAConfig struct {
	PopulationSize     int           `ini:"population_size" yaml:"population_size"`
	EliteFraction      float64       `ini:"elite_fraction" yaml:"elite_fraction"`             // share of the population carried forward unchanged
	MatingPoolFraction float64       `ini:"mating_pool_fraction" yaml:"mating_pool_fraction"` // share of the ranked population eligible as parents, 1 = everyone
	MutationRate       float64       `ini:"mutation_rate" yaml:"mutation_rate"`
	MutationMode       string        `ini:"mutation_mode" yaml:"mutation_mode"` // "genome" or "gene"
	Selection          string        `ini:"selection" yaml:"selection"`         // "uniform" or "weighted"
	Crossover          string        `ini:"crossover" yaml:"crossover"`         // "uniform" or "layer"
	SimulationTime     time.Duration `ini:"simulation_time" yaml:"simulation_time"`
	WallClock          bool          `ini:"wall_clock" yaml:"wall_clock"` // hold the evaluation phase open for at least simulation_time
	Workers            int           `ini:"workers" yaml:"workers"`       // concurrent drivers, 0 runs them sequentially
	Seed               int64         `ini:"seed" yaml:"seed"`             // 0 seeds from the clock
	ResetEliteFitness  bool          `ini:"reset_elite_fitness" yaml:"reset_elite_fitness"`

	FitnessThreshold     float64 `ini:"fitness_threshold" yaml:"fitness_threshold"`
	NoFitnessTermination bool    `ini:"no_fitness_termination" yaml:"no_fitness_termination"` // if true, Run ignores fitness_threshold
}

// NetworkConfig holds the shape and numeric parameters of every controller.
type NetworkConfig struct {
	InputSize     int     `ini:"input_size" yaml:"input_size"`
	HiddenSizes   []int   `ini:"hidden_sizes" delim:" " yaml:"hidden_sizes"` // space-separated list
	OutputSize    int     `ini:"output_size" yaml:"output_size"`
	Activation    string  `ini:"activation" yaml:"activation"`
	WeightRange   float64 `ini:"weight_range" yaml:"weight_range"`
	WeightPerturb float64 `ini:"weight_perturb" yaml:"weight_perturb"`
	LearningRate  float64 `ini:"learning_rate" yaml:"learning_rate"`
	Epochs        int     `ini:"epochs" yaml:"epochs"`
}

// OutputConfig holds the paths of the artifacts a run produces or consumes.
// Empty paths disable the corresponding artifact.
type OutputConfig struct {
	BestGenomePath string `ini:"best_genome_path" yaml:"best_genome_path"`
	CheckpointPath string `ini:"checkpoint_path" yaml:"checkpoint_path"`
	TelemetryCSV   string `ini:"telemetry_csv" yaml:"telemetry_csv"`
	SeedGenome     string `ini:"seed_genome" yaml:"seed_genome"` // file holding a text or JSON genome used for the first slot
	Store          string `ini:"store" yaml:"store"`             // "", "memory" or "sqlite"
	StorePath      string `ini:"store_path" yaml:"store_path"`
}

// DefaultConfig returns the configuration used for every key a file leaves out.
func DefaultConfig() *Config {
	return &Config{
		GA: GAConfig{
			PopulationSize:     100,
			EliteFraction:      0.1,
			MatingPoolFraction: 1.0,
			MutationRate:       0.01,
			MutationMode:       MutationModeGenome.String(),
			Selection:          SelectionUniform.String(),
			Crossover:          nn.CrossoverUniform.String(),
			SimulationTime:     30 * time.Second,
			ResetEliteFitness:  true,

			NoFitnessTermination: true,
		},
		Network: NetworkConfig{
			InputSize:     14,
			HiddenSizes:   []int{8},
			OutputSize:    3,
			Activation:    nn.ReLU.String(),
			WeightRange:   1.0,
			WeightPerturb: 0.5,
			LearningRate:  0.01,
			Epochs:        100,
		},
		Output: OutputConfig{
			BestGenomePath: "best_genome.json",
		},
	}
}

// LoadConfig loads configuration parameters from an INI file, or from YAML
// when the file name ends in .yaml or .yml. Keys missing from the file keep
// their DefaultConfig value.
func LoadConfig(filePath string) (*Config, error) {
	config := DefaultConfig()

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", filePath, err)
		}
	default:
		cfg, err := ini.LoadSources(ini.LoadOptions{
			IgnoreInlineComment:         true, // Allow # comments starting with # or ;
			UnescapeValueCommentSymbols: true,
		}, filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
		}
		if err := cfg.Section("GA").MapTo(&config.GA); err != nil {
			return nil, fmt.Errorf("failed to map [GA] section: %w", err)
		}
		if err := cfg.Section("Network").MapTo(&config.Network); err != nil {
			return nil, fmt.Errorf("failed to map [Network] section: %w", err)
		}
		if err := cfg.Section("Output").MapTo(&config.Output); err != nil {
			return nil, fmt.Errorf("failed to map [Output] section: %w", err)
		}

		// MapTo leaves a slice untouched when the value is empty, so an
		// explicitly empty hidden_sizes has to be applied by hand.
		if key, err := cfg.Section("Network").GetKey("hidden_sizes"); err == nil && cleanIniString(key.String()) == "" {
			config.Network.HiddenSizes = nil
		}
	}

	config.clean()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) clean() {
	c.GA.MutationMode = strings.ToLower(cleanIniString(c.GA.MutationMode))
	c.GA.Selection = strings.ToLower(cleanIniString(c.GA.Selection))
	c.GA.Crossover = strings.ToLower(cleanIniString(c.GA.Crossover))
	c.Network.Activation = strings.ToLower(cleanIniString(c.Network.Activation))
	c.Output.BestGenomePath = cleanIniString(c.Output.BestGenomePath)
	c.Output.CheckpointPath = cleanIniString(c.Output.CheckpointPath)
	c.Output.TelemetryCSV = cleanIniString(c.Output.TelemetryCSV)
	c.Output.SeedGenome = cleanIniString(c.Output.SeedGenome)
	c.Output.Store = strings.ToLower(cleanIniString(c.Output.Store))
	c.Output.StorePath = cleanIniString(c.Output.StorePath)
}

// Validate checks every parameter. All errors wrap nn.ErrConfiguration.
func (c *Config) Validate() error {
	if c.GA.PopulationSize < 2 {
		return configErrorf("population_size must be at least 2")
	}
	if c.GA.EliteFraction < 0 || c.GA.EliteFraction > 1 {
		return configErrorf("elite_fraction must be between 0 and 1")
	}
	if c.GA.MatingPoolFraction <= 0 || c.GA.MatingPoolFraction > 1 {
		return configErrorf("mating_pool_fraction must be in (0, 1]")
	}
	if c.GA.MutationRate < 0 || c.GA.MutationRate > 1 {
		return configErrorf("mutation_rate must be between 0 and 1")
	}
	if _, err := ParseMutationMode(c.GA.MutationMode); err != nil {
		return configErrorf("invalid mutation_mode '%s', must be one of 'genome', 'gene'", c.GA.MutationMode)
	}
	if _, err := ParseSelection(c.GA.Selection); err != nil {
		return configErrorf("invalid selection '%s', must be one of 'uniform', 'weighted'", c.GA.Selection)
	}
	if _, err := nn.ParseCrossoverStrategy(c.GA.Crossover); err != nil {
		return configErrorf("invalid crossover '%s', must be one of 'uniform', 'layer'", c.GA.Crossover)
	}
	if c.GA.SimulationTime < 0 {
		return configErrorf("simulation_time cannot be negative")
	}
	if c.GA.Workers < 0 {
		return configErrorf("workers cannot be negative")
	}

	if _, err := c.Topology(); err != nil {
		return configErrorf("invalid topology: %v", err)
	}
	if _, err := nn.ParseActivation(c.Network.Activation); err != nil {
		return configErrorf("%v", err)
	}
	if c.Network.WeightRange <= 0 {
		return configErrorf("weight_range must be positive")
	}
	if c.Network.WeightPerturb < 0 {
		return configErrorf("weight_perturb cannot be negative")
	}
	if c.Network.LearningRate < 0 {
		return configErrorf("learning_rate cannot be negative")
	}
	if c.Network.Epochs < 0 {
		return configErrorf("epochs cannot be negative")
	}

	switch c.Output.Store {
	case "", "memory":
	case "sqlite":
		if c.Output.StorePath == "" {
			return configErrorf("store_path must be set for the sqlite store")
		}
	default:
		return configErrorf("invalid store '%s', must be one of 'memory', 'sqlite'", c.Output.Store)
	}
	return nil
}

// Topology returns the network shape described by the [Network] section.
func (c *Config) Topology() (nn.Topology, error) {
	t := nn.Topology{
		Inputs:  c.Network.InputSize,
		Hidden:  c.Network.HiddenSizes,
		Outputs: c.Network.OutputSize,
	}
	return t, t.Validate()
}

// Params returns the numeric network parameters.
func (c *Config) Params() nn.Params {
	return nn.Params{
		WeightRange:   c.Network.WeightRange,
		WeightPerturb: c.Network.WeightPerturb,
		LearningRate:  c.Network.LearningRate,
		Epochs:        c.Network.Epochs,
	}
}

// ActivationKind returns the parsed default activation. Validate must have
// accepted the config.
func (c *Config) ActivationKind() nn.ActivationKind {
	kind, _ := nn.ParseActivation(c.Network.Activation)
	return kind
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("config error: %s: %w", fmt.Sprintf(format, args...), nn.ErrConfiguration)
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
