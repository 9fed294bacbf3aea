// Package config loads the supervisor's server configuration: listen port,
// base run directory, and the Unix login shell to use, via viper so values
// come from the environment or fall back to defaults (no config file is
// read) — matching the teacher's env-first configuration philosophy.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the server-wide configuration resolved at startup.
type Config struct {
	Port          int    `mapstructure:"port"`
	BaseDir       string `mapstructure:"base_dir"`
	Shell         string `mapstructure:"shell"`
	LogPath       string `mapstructure:"log_path"`
	GuardianTick  int    `mapstructure:"guardian_tick_seconds"`
	PortSearchMax int    `mapstructure:"port_search_max"`
}

const (
	defaultPort          = 3001
	defaultGuardianTick  = 5
	defaultPortSearchMax = 9
)

// Load builds Config from environment variables (PORT, SHELL) with sane
// defaults, mirroring the teacher's LoadGlobalEnv precedence: explicit
// environment wins over built-in defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("shell", "SHELL")
	_ = v.BindEnv("base_dir", "TASKSUPERVISOR_BASE_DIR")
	_ = v.BindEnv("log_path", "TASKSUPERVISOR_LOG_PATH")

	v.SetDefault("port", defaultPort)
	v.SetDefault("shell", "/bin/bash")
	v.SetDefault("guardian_tick_seconds", defaultGuardianTick)
	v.SetDefault("port_search_max", defaultPortSearchMax)

	cfg := Config{
		Port:          v.GetInt("port"),
		Shell:         v.GetString("shell"),
		LogPath:       v.GetString("log_path"),
		GuardianTick:  v.GetInt("guardian_tick_seconds"),
		PortSearchMax: v.GetInt("port_search_max"),
	}
	if cfg.GuardianTick <= 0 {
		cfg.GuardianTick = defaultGuardianTick
	}
	if cfg.PortSearchMax <= 0 {
		cfg.PortSearchMax = defaultPortSearchMax
	}

	base, err := resolveBaseDir(v.GetString("base_dir"))
	if err != nil {
		return Config{}, err
	}
	cfg.BaseDir = base
	return cfg, nil
}

// resolveBaseDir implements spec.md §4.1: the executable's directory when
// running as a packaged binary, the process working directory otherwise.
// Here we use the executable's directory when it resolves to a real path
// outside of a Go build/test temp dir, falling back to cwd.
func resolveBaseDir(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	exe, err := os.Executable()
	if err == nil {
		if real, rerr := filepath.EvalSymlinks(exe); rerr == nil {
			dir := filepath.Dir(real)
			if !strings.Contains(dir, os.TempDir()) {
				return dir, nil
			}
		}
	}
	return os.Getwd()
}

// TaskDir returns the directory holding tasks.json, ensuring it exists.
func TaskDir(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, "task")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

// ResolveWorkingDirectory applies the path-safety fallback from spec.md
// §4.1/§4.4: an unset or non-directory working_directory silently falls
// back to the base run directory.
func ResolveWorkingDirectory(baseDir, wd string) string {
	if wd == "" {
		return baseDir
	}
	info, err := os.Stat(wd)
	if err != nil || !info.IsDir() {
		return baseDir
	}
	return wd
}
