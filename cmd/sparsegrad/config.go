package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the sparsegrad configuration file passed with --config.
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Tables
	Rows  *int64 `yaml:"rows"`
	Dim   *int64 `yaml:"dim"`
	DType string `yaml:"dtype"`

	// Optimizer
	LearningRate *float64 `yaml:"learning_rate"`
	Epsilon      *float64 `yaml:"epsilon"`
	WeightDecay  *float64 `yaml:"weight_decay"`
	Rowwise      *bool    `yaml:"rowwise"`
	Weighted     *bool    `yaml:"weighted"`
	StrictUnique *bool    `yaml:"strict_unique"`

	// Execution
	Backend string `yaml:"backend"`
	Workers *int64 `yaml:"workers"`

	// Data
	Source    string `yaml:"source"`
	Encoding  string `yaml:"encoding"`
	Segments  *int64 `yaml:"segments"`
	MaxLength *int64 `yaml:"max_length"`
	BatchSize *int64 `yaml:"batch_size"`
	Steps     *int64 `yaml:"steps"`
	Seed      *int64 `yaml:"seed"`

	// Output
	Compression string `yaml:"compression"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadConfig reads the config file. An empty path yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	//nolint:gosec // G304: path comes from the --config flag
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobalConfig applies config file defaults to the root flags that were
// not set on the command line.
func applyGlobalConfig(isSet func(string) bool, cfg Config) {
	if cfg.LogLevel != "" && !isSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !isSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.MetricsAddr != "" && !isSet("metrics-addr") {
		metricsAddr = cfg.MetricsAddr
	}
}

// applyOptimizerConfig applies config file defaults to optimizer flags.
func applyOptimizerConfig(isSet func(string) bool, cfg Config, o *optimizerOptions) {
	if cfg.DType != "" && !isSet("dtype") {
		o.dtype = cfg.DType
	}
	if cfg.Epsilon != nil && !isSet("epsilon") {
		o.epsilon = *cfg.Epsilon
	}
	if cfg.WeightDecay != nil && !isSet("weight-decay") {
		o.weightDecay = *cfg.WeightDecay
	}
	if cfg.Rowwise != nil && !isSet("rowwise") {
		o.rowwise = *cfg.Rowwise
	}
	if cfg.Weighted != nil && !isSet("weighted") {
		o.weighted = *cfg.Weighted
	}
	if cfg.StrictUnique != nil && !isSet("strict-unique") {
		o.strictUnique = *cfg.StrictUnique
	}
	if cfg.Backend != "" && !isSet("backend") {
		o.backend = cfg.Backend
	}
	if cfg.Workers != nil && !isSet("workers") {
		o.workers = *cfg.Workers
	}
}

// applyTrainConfig applies config file defaults to train flags.
func applyTrainConfig(isSet func(string) bool, cfg Config, o *trainOptions) {
	applyOptimizerConfig(isSet, cfg, &o.optimizerOptions)
	if cfg.Rows != nil && !isSet("rows") {
		o.rows = *cfg.Rows
	}
	if cfg.Dim != nil && !isSet("dim") {
		o.dim = *cfg.Dim
	}
	if cfg.LearningRate != nil && !isSet("lr") {
		o.lr = *cfg.LearningRate
	}
	if cfg.Source != "" && !isSet("source") {
		o.source = cfg.Source
	}
	if cfg.Encoding != "" && !isSet("encoding") {
		o.encoding = cfg.Encoding
	}
	if cfg.Segments != nil && !isSet("segments") {
		o.segments = *cfg.Segments
	}
	if cfg.MaxLength != nil && !isSet("max-length") {
		o.maxLength = *cfg.MaxLength
	}
	if cfg.BatchSize != nil && !isSet("batch-size") {
		o.batchSize = *cfg.BatchSize
	}
	if cfg.Steps != nil && !isSet("steps") {
		o.steps = *cfg.Steps
	}
	if cfg.Seed != nil && !isSet("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.Compression != "" && !isSet("compression") {
		o.compression = cfg.Compression
	}
}
