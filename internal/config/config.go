// Package config handles loading, defaulting, and validation of the
// sat-o-mat TOML configuration file. Every section maps to a typed struct
// so the rest of the codebase gets strong typing without manual key
// lookups.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data      DataConfig      `toml:"data"      json:"data"`
	Logging   LoggingConfig   `toml:"logging"   json:"logging"`
	Server    ServerConfig    `toml:"server"    json:"server"`
	Station   StationConfig   `toml:"station"   json:"station"`
	Schedules SchedulesConfig `toml:"schedules" json:"schedules"`
	Predict   PredictConfig   `toml:"predict"   json:"predict"`
}

type DataConfig struct {
	// Root holds the schedule store (Active/, AwaitingApproval/) and the
	// per-run artifacts directory.
	Root string `toml:"root" json:"root"`
	// TLEDir holds .tle/.txt element set files.
	TLEDir string `toml:"tle_dir" json:"tle_dir"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type StationConfig struct {
	Latitude  float64 `toml:"latitude"  json:"latitude"`
	Longitude float64 `toml:"longitude" json:"longitude"`
	Altitude  float64 `toml:"altitude"  json:"altitude"`
}

type SchedulesConfig struct {
	// ApprovalMode is "auto" or "manual".
	ApprovalMode string `toml:"approval_mode" json:"approval_mode"`
}

type PredictConfig struct {
	MinElevation   float64 `toml:"min_elevation"   json:"min_elevation"`
	LookaheadHours int     `toml:"lookahead_hours" json:"lookahead_hours"`
	TLEURL         string  `toml:"tle_url"         json:"tle_url"`
}

// DefaultConfigDir returns the XDG-compliant config directory. It respects
// $XDG_CONFIG_HOME and falls back to ~/.config/satomat.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "satomat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "satomat")
}

// DefaultDataDir returns the XDG-compliant data directory. It respects
// $XDG_DATA_HOME and falls back to ~/.local/share/satomat.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "satomat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "satomat")
}

// FindConfigFile searches the standard locations:
//  1. $SATOMAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/satomat/config.toml (or the ~/.config fallback)
//  3. /etc/satomat/satomat.toml
//  4. configs/example.toml (bundled fallback)
//
// An empty return means the caller should use Default() directly.
func FindConfigFile() string {
	if env := os.Getenv("SATOMAT_CONFIG"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env
		}
	}

	xdgPath := filepath.Join(DefaultConfigDir(), "config.toml")
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}

	systemPath := "/etc/satomat/satomat.toml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	if _, err := os.Stat("configs/example.toml"); err == nil {
		return "configs/example.toml"
	}

	return ""
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	dataDir := DefaultDataDir()
	return Config{
		Data: DataConfig{
			Root:   dataDir,
			TLEDir: filepath.Join(dataDir, "tle"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Station: StationConfig{
			Latitude:  0.0,
			Longitude: 0.0,
			Altitude:  0.0,
		},
		Schedules: SchedulesConfig{
			ApprovalMode: "manual",
		},
		Predict: PredictConfig{
			MinElevation:   10,
			LookaheadHours: 24,
			TLEURL:         "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle",
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. Data directories are created automatically if they
// don't exist.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	// Expand ~ in path fields so users can write "~/.local/share/..." in TOML.
	cfg.Data.Root = expandHome(cfg.Data.Root)
	cfg.Data.TLEDir = expandHome(cfg.Data.TLEDir)

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, ensureDirs(cfg)
}

// EnsureDirectories creates the config dir and data directories. Called by
// the daemon on startup regardless of whether a config file was found.
func EnsureDirectories(cfg Config) error {
	if err := os.MkdirAll(DefaultConfigDir(), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return ensureDirs(cfg)
}

func ensureDirs(cfg Config) error {
	if err := os.MkdirAll(cfg.Data.Root, 0o755); err != nil {
		return fmt.Errorf("create data root: %w", err)
	}
	if err := os.MkdirAll(cfg.Data.TLEDir, 0o755); err != nil {
		return fmt.Errorf("create tle dir: %w", err)
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if cfg.Data.TLEDir == "" {
		return errors.New("data.tle_dir must not be empty")
	}
	if cfg.Station.Latitude < -90 || cfg.Station.Latitude > 90 {
		return errors.New("station.latitude must be between -90 and 90")
	}
	if cfg.Station.Longitude < -180 || cfg.Station.Longitude > 180 {
		return errors.New("station.longitude must be between -180 and 180")
	}
	switch cfg.Schedules.ApprovalMode {
	case "auto", "manual":
	default:
		return errors.New("schedules.approval_mode must be \"auto\" or \"manual\"")
	}
	if cfg.Predict.MinElevation < 0 || cfg.Predict.MinElevation > 90 {
		return errors.New("predict.min_elevation must be between 0 and 90")
	}
	if cfg.Predict.LookaheadHours < 1 {
		return errors.New("predict.lookahead_hours must be >= 1")
	}
	return nil
}
