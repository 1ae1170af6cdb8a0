package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chimechallenge/chime6-synchronisation/internal/corpus"
	"github.com/chimechallenge/chime6-synchronisation/internal/transcript"
)

// EnvPrefix prefixes every environment variable read by Load,
// e.g. CHIME_SYNC_SOX_PATH.
const EnvPrefix = "CHIME_SYNC"

// Keys shared by the command line flags, the environment and the config file.
const (
	KeyConfig      = "config"
	KeyCorpus      = "corpus"
	KeyDatasets    = "datasets"
	KeySessions    = "sessions"
	KeySoxPath     = "sox-path"
	KeyTmpDir      = "tmp-dir"
	KeyMaxParallel = "max-parallel"
	KeyLogLevel    = "log-level"
	KeyReport      = "report"
	KeyFormat      = "format"
)

type Config struct {
	// Corpus
	CorpusPath string
	Datasets   []string
	Sessions   []string // empty: every session of Datasets

	// Resampling
	SoxPath string // directory holding sox; empty uses PATH
	TmpDir  string

	// Processing
	MaxParallel      int // devices corrected concurrently within a session
	TranscriptFormat transcript.Format

	// Output
	ReportPath string
	LogLevel   string
}

// Load merges, from highest to lowest precedence, the flags set in flags,
// CHIME_SYNC_* environment variables (after loading .env when present), the
// YAML file named by the config key, and defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables only")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyCorpus, corpus.DefaultPath)
	v.SetDefault(KeyDatasets, strings.Join(corpus.DefaultDatasets, ","))
	v.SetDefault(KeyMaxParallel, 1)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyFormat, string(transcript.Consolidated))

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		CorpusPath: v.GetString(KeyCorpus),
		Datasets:   stringList(v, KeyDatasets),
		Sessions:   stringList(v, KeySessions),

		SoxPath: v.GetString(KeySoxPath),
		TmpDir:  v.GetString(KeyTmpDir),

		MaxParallel:      v.GetInt(KeyMaxParallel),
		TranscriptFormat: transcript.Format(v.GetString(KeyFormat)),

		ReportPath: v.GetString(KeyReport),
		LogLevel:   v.GetString(KeyLogLevel),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.CorpusPath == "" {
		return fmt.Errorf("corpus metadata path is required")
	}

	if len(c.Datasets) == 0 {
		return fmt.Errorf("at least one dataset is required")
	}

	if c.MaxParallel < 1 {
		return fmt.Errorf("max-parallel must be at least 1, got %d", c.MaxParallel)
	}

	if _, err := transcript.ParseFormat(string(c.TranscriptFormat)); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error")
	}

	return nil
}

// stringList reads a key that is either a YAML list or a delimited string.
func stringList(v *viper.Viper, key string) []string {
	if _, ok := v.Get(key).([]any); ok {
		return v.GetStringSlice(key)
	}
	return splitList(v.GetString(key))
}

// splitList accepts comma and/or whitespace separated values, so both
// --sessions "S02 S04" and --sessions S02,S04 work.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
