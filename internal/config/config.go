package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"corpusprep/internal/language"
	"corpusprep/internal/transcriber"
)

// EnvPrefix is prepended to every environment variable the configuration reads
const EnvPrefix = "CORPUSPREP"

// Pipeline modes
const (
	// ModeLong separates, transcribes and segments long recordings
	ModeLong = "long"
	// ModeShorts converts and transcribes each short clip whole
	ModeShorts = "shorts"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file.
// Environment variables still override values read from the file.
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	bindEnv(v)

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables.
// A .env file in the working directory is loaded first; it never overrides variables already set.
func NewConfigurationFromEnv() (*Configuration, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	return &Configuration{viper: v}, nil
}

// Load builds the run configuration: defaults, optional config file, .env, environment,
// then any flags that were explicitly set on the command line.
func Load(configFile string, flags *pflag.FlagSet) (*Configuration, error) {
	var (
		cfg *Configuration
		err error
	)
	if configFile != "" {
		cfg, err = NewConfigurationFromFile(configFile)
	} else {
		cfg, err = NewConfigurationFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if flags != nil {
		for flagName, key := range FlagKeys {
			if f := flags.Lookup(flagName); f != nil {
				if err := cfg.viper.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// FlagKeys maps CLI flag names onto configuration keys
var FlagKeys = map[string]string{
	"input-dir":              "input_dir",
	"output-dir":             "output_dir",
	"speaker":                "speaker",
	"sample-rate":            "sample_rate",
	"bit-depth":              "bit_depth",
	"languages":              "languages",
	"tag-languages":          "tag_languages",
	"recognition-model-size": "recognition_model_size",
	"annotation-path":        "annotation_path",
	"shorts-annotation-path": "shorts_annotation_path",
	"work-dir":               "work_dir",
	"keep-denoised":          "keep_denoised",
	"device":                 "device",
	"separator-command":      "separator.command",
	"transcriber-command":    "transcriber.command",
	"log-level":              "log.level",
	"log-file":               "log.file",
	"log-development":        "log.development",
	"log-benchmark":          "log.benchmark",
	"mode":                   "mode",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input_dir", "raw_data")
	v.SetDefault("output_dir", ".")
	v.SetDefault("speaker", "speaker")
	v.SetDefault("sample_rate", 0)
	v.SetDefault("bit_depth", 0)
	v.SetDefault("languages", string(language.PresetCJE))
	v.SetDefault("tag_languages", true)
	v.SetDefault("recognition_model_size", "small")
	v.SetDefault("annotation_path", "long_character_anno.txt")
	v.SetDefault("shorts_annotation_path", "")
	v.SetDefault("work_dir", "work")
	v.SetDefault("keep_denoised", true)
	v.SetDefault("device", "auto")
	v.SetDefault("separator.command", "demucs")
	v.SetDefault("separator.model", "htdemucs")
	v.SetDefault("separator.stem", "vocals")
	v.SetDefault("transcriber.command", "whisper")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.development", false)
	v.SetDefault("log.benchmark", false)
	v.SetDefault("mode", ModeLong)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate rejects settings the pipeline cannot run with
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.GetSpeaker()) == "" {
		return fmt.Errorf("speaker cannot be empty")
	}
	if strings.ContainsAny(c.GetSpeaker(), `/\`) {
		return fmt.Errorf("speaker %q must not contain path separators", c.GetSpeaker())
	}
	if strings.Contains(c.GetSpeaker(), "|") {
		return fmt.Errorf("speaker %q must not contain the annotation separator '|'", c.GetSpeaker())
	}
	if strings.Contains(c.GetOutputDir(), "|") {
		return fmt.Errorf("output_dir %q must not contain the annotation separator '|'", c.GetOutputDir())
	}
	if sp := c.GetSpeaker(); sp == "." || sp == ".." {
		return fmt.Errorf("speaker %q would wipe the output directory itself", sp)
	}
	if _, err := language.ParsePreset(c.GetLanguages()); err != nil {
		return fmt.Errorf("invalid languages: %w", err)
	}
	if c.GetSampleRate() < 0 {
		return fmt.Errorf("sample_rate cannot be negative")
	}
	switch c.GetBitDepth() {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("bit_depth must be 0, 16, 24 or 32, got %d", c.GetBitDepth())
	}
	if !transcriber.IsValidModelSize(c.GetRecognitionModelSize()) {
		return fmt.Errorf("unknown recognition_model_size %q", c.GetRecognitionModelSize())
	}
	switch c.GetMode() {
	case ModeLong, ModeShorts:
	default:
		return fmt.Errorf("mode must be %s or %s, got %q", ModeLong, ModeShorts, c.GetMode())
	}
	switch c.GetDevice() {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("device must be auto, cpu or cuda, got %q", c.GetDevice())
	}
	return nil
}

// GetInputDir returns the directory scanned for raw recordings
func (c *Configuration) GetInputDir() string {
	return c.viper.GetString("input_dir")
}

// GetOutputDir returns the root under which the speaker directory is created
func (c *Configuration) GetOutputDir() string {
	return c.viper.GetString("output_dir")
}

// GetSpeaker returns the speaker name used for the destination directory
func (c *Configuration) GetSpeaker() string {
	return c.viper.GetString("speaker")
}

// GetDestinationDir returns <output_dir>/<speaker>
func (c *Configuration) GetDestinationDir() string {
	return filepath.Join(c.GetOutputDir(), c.GetSpeaker())
}

// GetSampleRate returns the target sample rate; 0 keeps the original
func (c *Configuration) GetSampleRate() int {
	return c.viper.GetInt("sample_rate")
}

// GetBitDepth returns the target bit depth; 0 keeps the original
func (c *Configuration) GetBitDepth() int {
	return c.viper.GetInt("bit_depth")
}

// GetLanguages returns the language preset name
func (c *Configuration) GetLanguages() string {
	return c.viper.GetString("languages")
}

// GetTagLanguages reports whether transcripts are wrapped in language tags
func (c *Configuration) GetTagLanguages() bool {
	return c.viper.GetBool("tag_languages")
}

// GetRecognitionModelSize returns the whisper model size
func (c *Configuration) GetRecognitionModelSize() string {
	return c.viper.GetString("recognition_model_size")
}

// GetAnnotationPath returns where the annotation manifest is written
func (c *Configuration) GetAnnotationPath() string {
	return c.viper.GetString("annotation_path")
}

// GetWorkDir returns the directory holding denoised tracks and separator scratch space
func (c *Configuration) GetWorkDir() string {
	return c.viper.GetString("work_dir")
}

// GetKeepDenoised reports whether denoised tracks survive past their file's processing
func (c *Configuration) GetKeepDenoised() bool {
	return c.viper.GetBool("keep_denoised")
}

// GetDevice returns auto, cpu or cuda
func (c *Configuration) GetDevice() string {
	return strings.ToLower(c.viper.GetString("device"))
}

// GetSeparatorCommand returns the source-separation binary
func (c *Configuration) GetSeparatorCommand() string {
	return c.viper.GetString("separator.command")
}

// GetSeparatorModel returns the separation model name, which also names its output subdirectory
func (c *Configuration) GetSeparatorModel() string {
	return c.viper.GetString("separator.model")
}

// GetSeparatorStem returns the isolated stem name
func (c *Configuration) GetSeparatorStem() string {
	return c.viper.GetString("separator.stem")
}

// GetTranscriberCommand returns the speech-recognition binary
func (c *Configuration) GetTranscriberCommand() string {
	return c.viper.GetString("transcriber.command")
}

// GetLogLevel returns the configured log level
func (c *Configuration) GetLogLevel() string {
	return c.viper.GetString("log.level")
}

// GetLogFile returns the rotating log file path, empty for console only
func (c *Configuration) GetLogFile() string {
	return c.viper.GetString("log.file")
}

// GetLogDevelopment reports whether the console uses the development encoder
func (c *Configuration) GetLogDevelopment() bool {
	return c.viper.GetBool("log.development")
}

// GetLogBenchmark reports whether every stage timing is logged as it completes
func (c *Configuration) GetLogBenchmark() bool {
	return c.viper.GetBool("log.benchmark")
}

// GetMode returns long or shorts
func (c *Configuration) GetMode() string {
	return strings.ToLower(c.viper.GetString("mode"))
}

// GetShortsAnnotationPath returns the manifest path used in shorts mode
func (c *Configuration) GetShortsAnnotationPath() string {
	if p := c.viper.GetString("shorts_annotation_path"); p != "" {
		return p
	}
	return c.GetSpeaker() + "_text_train.txt"
}

// Set overrides a single key; used by tests and the CLI
func (c *Configuration) Set(key string, value interface{}) {
	c.viper.Set(key, value)
}
