package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shirerpeton/diarEval/internal/common"
)

// Stream configures one annotation stream. Mapping keys are raw labels and
// are case sensitive, so they live in a separate YAML file instead of the
// viper tree, which folds keys to lower case.
type Stream struct {
	Silence     string         `mapstructure:"silence" yaml:"silence"`
	MappingFile string         `mapstructure:"mapping_file" yaml:"mapping_file,omitempty"`
	Mapping     common.Mapping `mapstructure:"-" yaml:"mapping"`
}

// DefaultClass is the category frames without any interval are filled with.
func (s Stream) DefaultClass() string {
	return s.Mapping[s.Silence]
}

type Paths struct {
	Metadata  string `mapstructure:"metadata" yaml:"metadata"`
	Chats     string `mapstructure:"chats" yaml:"chats"`
	TextGrids string `mapstructure:"textgrids" yaml:"textgrids"`
	Audio     string `mapstructure:"audio" yaml:"audio"`
	AudioExt  string `mapstructure:"audio_ext" yaml:"audio_ext"`
	Outputs   string `mapstructure:"outputs" yaml:"outputs"`
	Database  string `mapstructure:"database" yaml:"database"`
}

type Config struct {
	FrameLengthMs      int64    `mapstructure:"frame_length_ms" yaml:"frame_length_ms"`
	WindowLengthS      float64  `mapstructure:"window_length_s" yaml:"window_length_s"`
	InitialFrames      int      `mapstructure:"initial_frames" yaml:"initial_frames"`
	SkipOverlap        bool     `mapstructure:"skip_overlap" yaml:"skip_overlap"`
	Workers            int      `mapstructure:"workers" yaml:"workers"`
	ChildSubcategories bool     `mapstructure:"child_subcategories" yaml:"child_subcategories"`
	SilenceCategory    string   `mapstructure:"silence_category" yaml:"silence_category"`
	Overlap            []string `mapstructure:"overlap" yaml:"overlap"`
	Speech             []string `mapstructure:"speech" yaml:"speech"`
	Hypothesis         Stream   `mapstructure:"hypothesis" yaml:"hypothesis"`
	Reference          Stream   `mapstructure:"reference" yaml:"reference"`
	Paths              Paths    `mapstructure:"paths" yaml:"paths"`
	LogLevel           string   `mapstructure:"log_level" yaml:"log_level"`
	MaxGapS            float64  `mapstructure:"max_gap_s" yaml:"max_gap_s"`
}

// DefaultHypothesisMapping collapses LENA segment codes. Far and overlapped
// segments are not attributed to a speaker.
func DefaultHypothesisMapping() common.Mapping {
	return common.Mapping{
		"FAN": "Female",
		"MAN": "Male",
		"CHN": "Child",
		"CXN": "Other",
		"FAF": "Other",
		"MAF": "Other",
		"CHF": "Other",
		"CXF": "Other",
		"OLN": "Other",
		"OLF": "Other",
		"TVN": "TV",
		"TVF": "TV",
		"NON": "Noise",
		"NOF": "Noise",
		"SIL": "Silence",
	}
}

func DefaultReferenceMapping() common.Mapping {
	return common.Mapping{
		"Female":  "Female",
		"Female2": "Female",
		"Male":    "Male",
		"Male2":   "Male",
		"Child":   "Child",
		"Other":   "Other",
		"Noise":   "Noise",
		"TV":      "TV",
		"Silence": "Silence",
	}
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("frame_length_ms", common.DefaultFrameLength)
	v.SetDefault("window_length_s", common.DefaultWindowLength)
	v.SetDefault("initial_frames", common.DefaultInitialFrames)
	v.SetDefault("skip_overlap", true)
	v.SetDefault("workers", 4)
	v.SetDefault("child_subcategories", false)
	v.SetDefault("silence_category", "Silence")
	v.SetDefault("overlap", []string{"Female", "Male", "Child"})
	v.SetDefault("speech", []string{"Female", "Male", "Child"})
	v.SetDefault("hypothesis.silence", "SIL")
	v.SetDefault("reference.silence", "Silence")
	v.SetDefault("paths.metadata", "data/clip_data.csv")
	v.SetDefault("paths.chats", "data/chats")
	v.SetDefault("paths.textgrids", "data/textgrids")
	v.SetDefault("paths.audio_ext", ".wav")
	v.SetDefault("paths.outputs", "output")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_gap_s", 1.0)
}

// Load reads path (optional) into v and resolves the mapping files.
// Environment variables prefixed DIAREVAL_ override file values.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("DIAREVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	var err error
	if cfg.Hypothesis.Mapping, err = loadMapping(cfg.Hypothesis.MappingFile, DefaultHypothesisMapping); err != nil {
		return nil, err
	}
	if cfg.Reference.Mapping, err = loadMapping(cfg.Reference.MappingFile, DefaultReferenceMapping); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadMapping(path string, fallback func() common.Mapping) (common.Mapping, error) {
	if path == "" {
		return fallback(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mapping common.Mapping
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return mapping, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.FrameLengthMs <= 0 {
		errs = append(errs, fmt.Errorf("frame_length_ms must be > 0, got %d", c.FrameLengthMs))
	}
	if c.WindowLengthS <= 0 {
		errs = append(errs, fmt.Errorf("window_length_s must be > 0, got %v", c.WindowLengthS))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.MaxGapS < 0 {
		errs = append(errs, fmt.Errorf("max_gap_s must be >= 0, got %v", c.MaxGapS))
	}
	if len(c.Speech) == 0 {
		errs = append(errs, errors.New("speech categories must not be empty"))
	}
	streams := []struct {
		name string
		Stream
	}{{"hypothesis", c.Hypothesis}, {"reference", c.Reference}}
	for _, s := range streams {
		if len(s.Mapping) == 0 {
			errs = append(errs, fmt.Errorf("%s mapping is empty", s.name))
			continue
		}
		if _, ok := s.Mapping[s.Silence]; !ok {
			errs = append(errs, fmt.Errorf("%s mapping has no entry for silence label %q", s.name, s.Silence))
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) OverlapSet() common.Set {
	return common.NewSet(c.Overlap...)
}

func (c *Config) SpeechSet() common.Set {
	return common.NewSet(c.Speech...)
}

// Write dumps the effective configuration, mappings included.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
