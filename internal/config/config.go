// Package config defines agstage's configuration, loaded through viper from
// a YAML file, AGSTAGE_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Presenter names accepted by review.presenter.
const (
	PresenterTUI     = "tui"
	PresenterCommand = "command"
	PresenterWeb     = "web"
)

// Config is the full agstage configuration.
type Config struct {
	Project ProjectConfig `mapstructure:"project"`
	Staging StagingConfig `mapstructure:"staging"`
	Review  ReviewConfig  `mapstructure:"review"`
	Server  ServerConfig  `mapstructure:"server"`
	Inbox   InboxConfig   `mapstructure:"inbox"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ProjectConfig controls what the agent surface can see.
type ProjectConfig struct {
	Root   string   `mapstructure:"root"`
	Ignore []string `mapstructure:"ignore"`
}

// StagingConfig controls where proposals are staged.
type StagingConfig struct {
	Dir string `mapstructure:"dir"`
}

// ReviewConfig controls how proposals are presented and decided.
type ReviewConfig struct {
	ContextLines int      `mapstructure:"context_lines"`
	Presenter    string   `mapstructure:"presenter"`
	DiffCommand  string   `mapstructure:"diff_command"`
	AcceptKeys   []string `mapstructure:"accept_keys"`
	RejectKeys   []string `mapstructure:"reject_keys"`
	MaxDiffLines int      `mapstructure:"max_diff_lines"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Port int    `mapstructure:"port"`
}

// Listen returns the host:port the server binds.
func (s ServerConfig) Listen() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}

// InboxConfig controls the watched proposal inbox. Empty Dir disables it.
type InboxConfig struct {
	Dir string `mapstructure:"dir"`
}

// HistoryConfig controls the sqlite review history. Empty Path disables it.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	state := StateDir()
	return &Config{
		Project: ProjectConfig{
			Root:   ".",
			Ignore: []string{".git", "node_modules", ".agstage"},
		},
		Staging: StagingConfig{
			Dir: filepath.Join(os.TempDir(), "agstage"),
		},
		Review: ReviewConfig{
			ContextLines: 3,
			Presenter:    PresenterTUI,
			AcceptKeys:   []string{"enter"},
			RejectKeys:   []string{"backspace"},
			MaxDiffLines: 5000,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1",
			Port: 6143,
		},
		History: HistoryConfig{
			Path: filepath.Join(state, "history.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   state,
		},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("project.root", d.Project.Root)
	v.SetDefault("project.ignore", d.Project.Ignore)

	v.SetDefault("staging.dir", d.Staging.Dir)

	v.SetDefault("review.context_lines", d.Review.ContextLines)
	v.SetDefault("review.presenter", d.Review.Presenter)
	v.SetDefault("review.diff_command", d.Review.DiffCommand)
	v.SetDefault("review.accept_keys", d.Review.AcceptKeys)
	v.SetDefault("review.reject_keys", d.Review.RejectKeys)
	v.SetDefault("review.max_diff_lines", d.Review.MaxDiffLines)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("inbox.dir", d.Inbox.Dir)
	v.SetDefault("history.path", d.History.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() []error {
	var errs []error

	switch c.Review.Presenter {
	case PresenterTUI, PresenterWeb:
	case PresenterCommand:
		if strings.TrimSpace(c.Review.DiffCommand) == "" {
			errs = append(errs, fmt.Errorf("review.diff_command is required when review.presenter is %q", PresenterCommand))
		}
	default:
		errs = append(errs, fmt.Errorf("review.presenter must be one of tui, command, web (got %q)", c.Review.Presenter))
	}
	if c.Review.ContextLines < 0 {
		errs = append(errs, fmt.Errorf("review.context_lines must be >= 0 (got %d)", c.Review.ContextLines))
	}
	if c.Review.MaxDiffLines <= 0 {
		errs = append(errs, fmt.Errorf("review.max_diff_lines must be > 0 (got %d)", c.Review.MaxDiffLines))
	}
	if len(c.Review.AcceptKeys) == 0 {
		errs = append(errs, fmt.Errorf("review.accept_keys must not be empty"))
	}
	if len(c.Review.RejectKeys) == 0 {
		errs = append(errs, fmt.Errorf("review.reject_keys must not be empty"))
	}
	for _, a := range c.Review.AcceptKeys {
		for _, r := range c.Review.RejectKeys {
			if a == r {
				errs = append(errs, fmt.Errorf("key %q is bound to both accept and reject", a))
			}
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range (got %d)", c.Server.Port))
	}
	if strings.TrimSpace(c.Staging.Dir) == "" {
		errs = append(errs, fmt.Errorf("staging.dir must not be empty"))
	}

	return errs
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agstage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agstage"
	}
	return filepath.Join(home, ".config", "agstage")
}

// StateDir returns the directory for logs and history.
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "agstage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agstage"
	}
	return filepath.Join(home, ".local", "state", "agstage")
}
