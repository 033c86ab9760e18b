// Package config loads the mission configuration: the arena description,
// command deadlines, the language bridge and the host's transports.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/gpsr/pkg/bus"
	"github.com/odvcencio/gpsr/pkg/command"
	gerrors "github.com/odvcencio/gpsr/pkg/errors"
	"github.com/odvcencio/gpsr/pkg/lang"
	"github.com/odvcencio/gpsr/pkg/mission"
	"github.com/odvcencio/gpsr/pkg/world"
)

// Parser backends.
const (
	ParserBridge  = "bridge"
	ParserChannel = "channel"
)

// Config represents the complete gpsr configuration.
type Config struct {
	World     world.Spec       `yaml:"world"`
	Timeouts  command.Timeouts `yaml:"timeouts"`
	Mission   mission.Options  `yaml:"mission"`
	Language  LanguageConfig   `yaml:"language"`
	Questions QuestionsConfig  `yaml:"questions"`
	Bus       BusConfig        `yaml:"bus"`
	Storage   StorageConfig    `yaml:"storage"`
	HTTP      HTTPConfig       `yaml:"http"`
	Control   ControlConfig    `yaml:"control"`
	Log       LogConfig        `yaml:"log"`
}

// LanguageConfig selects how recognized commands are turned into action
// sequences. The bridge runs a local interpreter; the channel backend asks
// the language subsystem over the command channel.
type LanguageConfig struct {
	Parser string            `yaml:"parser"`
	Bridge lang.BridgeConfig `yaml:"bridge"`
}

// QuestionsConfig drives the answer-question behavior.
type QuestionsConfig struct {
	RobotName string            `yaml:"robot_name"`
	Answers   map[string]string `yaml:"answers"`
	Polls     int               `yaml:"polls"`
	PollDelay time.Duration     `yaml:"poll_delay"`
}

// BusConfig locates the message bus.
type BusConfig struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// StorageConfig locates the run history database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ControlConfig locates the run/pause control file.
type ControlConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used on the robot.
func DefaultConfig() *Config {
	busDefaults := bus.DefaultConfig()
	return &Config{
		World:    world.DefaultSpec(),
		Timeouts: command.DefaultTimeouts(),
		Mission:  mission.DefaultOptions(),
		Language: LanguageConfig{
			Parser: ParserBridge,
			Bridge: lang.BridgeConfig{
				Interpreter: "python.exe",
				Script:      "cfr_parser_nobb.py",
				InputPath:   "stringToProcess",
				LogPath:     "LOG",
				Timeout:     30 * time.Second,
			},
		},
		Questions: QuestionsConfig{
			RobotName: "Justina",
			Answers:   lang.DefaultAnswers(),
			Polls:     15,
			PollDelay: time.Second,
		},
		Bus: BusConfig{
			URL:            busDefaults.URL,
			Name:           busDefaults.Name,
			ConnectTimeout: busDefaults.Timeout,
		},
		Storage: StorageConfig{Path: filepath.Join("~", ".gpsr", "runs.db")},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Control: ControlConfig{PollInterval: 5 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

// BusSettings converts the bus section for bus.NewNATSBus.
func (c *Config) BusSettings() bus.Config {
	return bus.Config{URL: c.Bus.URL, Name: c.Bus.Name, Timeout: c.Bus.ConnectTimeout}
}

// Load reads ~/.gpsr/config.yaml and ./.gpsr/config.yaml when present, then
// applies environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	configEnv := loadConfigEnvVars()

	if home := userHome(); home != "" {
		if err := loadAndMerge(cfg, filepath.Join(home, ".gpsr", "config.yaml")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if err := loadAndMerge(cfg, filepath.Join(".", ".gpsr", "config.yaml")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(cfg, configEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file over the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg, configEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse merges YAML data over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeConfigParse, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAndMerge decodes a YAML file onto cfg. Keys absent from the file keep
// their current values and map entries are added to the existing maps.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(expandHomeDir(path))
	if err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeConfigLoad, "read config").WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeConfigParse, "parse config").WithContext("path", path)
	}
	return nil
}

// ApplyEnvOverrides applies GPSR_* variables from the process environment.
func ApplyEnvOverrides(cfg *Config) {
	applyEnvOverrides(cfg, nil)
}

// applyEnvOverrides prefers the process environment over ~/.gpsr/config.env.
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	get := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return configEnv[key]
	}

	if v := get("GPSR_NATS_URL"); v != "" {
		cfg.Bus.URL = v
	}
	if v := get("GPSR_INTERPRETER"); v != "" {
		cfg.Language.Bridge.Interpreter = v
	}
	if v := get("GPSR_SCRIPT"); v != "" {
		cfg.Language.Bridge.Script = v
	}
	if v := get("GPSR_PARSER"); v != "" {
		cfg.Language.Parser = strings.ToLower(v)
	}
	if v := get("GPSR_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := get("GPSR_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := get("GPSR_CONTROL_FILE"); v != "" {
		cfg.Control.Path = v
	}
	if v := get("GPSR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := get("GPSR_BRING_TO_HUMAN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.World.BringToHuman = b
		}
	}
}

// Validate checks the configuration for values the mission cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return gerrors.Newf(gerrors.ErrCodeConfigInvalid, format, args...)
	}

	if _, err := world.New(c.World); err != nil {
		return gerrors.Wrap(err, gerrors.ErrCodeConfigInvalid, "world")
	}
	for _, place := range []struct{ key, name string }{
		{"entrance", c.World.Places.Entrance},
		{"operator", c.World.Places.Operator},
		{"exit", c.World.Places.Exit},
	} {
		if strings.TrimSpace(place.name) == "" {
			return invalid("world.places.%s is required", place.key)
		}
	}

	t := c.Timeouts
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"say", t.Say}, {"say_brief", t.SayBrief}, {"arms", t.Arms},
		{"navigation", t.Navigation}, {"deliver", t.Deliver}, {"search_take", t.SearchTake},
		{"enter_arena", t.EnterArena}, {"answer", t.Answer}, {"language", t.Language},
	} {
		if d.val <= 0 {
			return invalid("timeouts.%s must be positive, got %s", d.key, d.val)
		}
	}

	if c.Mission.ConfirmAttempts <= 0 {
		return invalid("mission.confirm_attempts must be positive, got %d", c.Mission.ConfirmAttempts)
	}
	if c.Mission.PollDelay <= 0 {
		return invalid("mission.poll_delay must be positive")
	}

	switch c.Language.Parser {
	case ParserBridge:
		if strings.TrimSpace(c.Language.Bridge.Interpreter) == "" || strings.TrimSpace(c.Language.Bridge.Script) == "" {
			return invalid("language.bridge needs an interpreter and a script")
		}
		if strings.TrimSpace(c.Language.Bridge.InputPath) == "" {
			return invalid("language.bridge.input_path is required")
		}
	case ParserChannel:
	default:
		return invalid("invalid language.parser: %s (valid: bridge, channel)", c.Language.Parser)
	}

	if c.Questions.Polls <= 0 {
		return invalid("questions.polls must be positive, got %d", c.Questions.Polls)
	}
	if c.Questions.PollDelay <= 0 {
		return invalid("questions.poll_delay must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("invalid log.level: %s (valid: debug, info, warn, error)", c.Log.Level)
	}
	return nil
}

// StoragePath returns the database path with a leading ~ expanded.
func (c *Config) StoragePath() string {
	return expandHomeDir(c.Storage.Path)
}

func loadConfigEnvVars() map[string]string {
	home := userHome()
	if home == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(home, ".gpsr", "config.env"))
	if err != nil {
		return nil
	}
	return parseEnvFile(string(data))
}

func parseEnvFile(data string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	return vars
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return strings.TrimSpace(home)
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home := userHome(); home != "" {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
