// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/factionkeep/factionkeep/lib/cron"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// Environment is the deployment type.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the full factionkeep configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Homeserver HomeserverConfig `yaml:"homeserver"`
	Store      StoreConfig      `yaml:"store"`
	Community  CommunityConfig  `yaml:"community"`
	Economy    EconomyConfig    `yaml:"economy"`
	Service    ServiceConfig    `yaml:"service"`
	Log        LogConfig        `yaml:"log"`

	// Per-environment sections, decoded over the base values.
	Development yaml.Node `yaml:"development,omitempty"`
	Staging     yaml.Node `yaml:"staging,omitempty"`
	Production  yaml.Node `yaml:"production,omitempty"`
}

// HomeserverConfig locates the Matrix homeserver and the saved session.
type HomeserverConfig struct {
	URL string `yaml:"url"`

	// SessionFile holds the access token written by `factionkeep login`.
	SessionFile string `yaml:"session_file"`
}

// StoreConfig configures the SQLite record store.
type StoreConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// CommunityConfig describes the community the bot serves.
type CommunityConfig struct {
	// Timezone names the IANA zone that defines "today" for check-ins
	// and the wall clock for the weekly reset.
	Timezone string `yaml:"timezone"`

	CommandPrefix string `yaml:"command_prefix"`

	// AdminPowerLevel is the minimum power level in the workspace room
	// that counts as an administrator.
	AdminPowerLevel int `yaml:"admin_power_level"`

	// ParentSpace, when set, receives every faction space as a child.
	ParentSpace string `yaml:"parent_space"`

	// RoomVersion is used for every room the bot creates. Restricted
	// join rules need version 8 or later.
	RoomVersion string `yaml:"room_version"`

	// Rooms limits command handling to these room IDs. Empty means
	// every joined room.
	Rooms []string `yaml:"rooms"`
}

// EconomyConfig configures points.
type EconomyConfig struct {
	CheckinPoints int    `yaml:"checkin_points"`
	ResetSchedule string `yaml:"reset_schedule"`
}

// ServiceConfig configures the daemon.
type ServiceConfig struct {
	SocketPath            string        `yaml:"socket_path"`
	CommandTimeout        time.Duration `yaml:"command_timeout"`
	MaxConcurrentCommands int           `yaml:"max_concurrent_commands"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration every file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Homeserver: HomeserverConfig{
			SessionFile: "${HOME}/.local/state/factionkeep/session.json",
		},
		Store: StoreConfig{
			Path:     "${HOME}/.local/state/factionkeep/factionkeep.db",
			PoolSize: 4,
		},
		Community: CommunityConfig{
			Timezone:        "UTC",
			CommandPrefix:   "!faction",
			AdminPowerLevel: 100,
			RoomVersion:     "10",
		},
		Economy: EconomyConfig{
			CheckinPoints: 10,
			ResetSchedule: "0 0 * * 1",
		},
		Service: ServiceConfig{
			SocketPath:            "${XDG_RUNTIME_DIR:-/tmp}/factionkeep.sock",
			CommandTimeout:        30 * time.Second,
			MaxConcurrentCommands: 16,
		},
		Log: LogConfig{Level: "info"},
	}
}

// environmentOverlay is read from the process environment after the
// file.
type environmentOverlay struct {
	Environment string `env:"FACTIONKEEP_ENV"`
	LogLevel    string `env:"FACTIONKEEP_LOG_LEVEL"`
}

// PathFromEnvironment returns FACTIONKEEP_CONFIG.
func PathFromEnvironment() string {
	return os.Getenv("FACTIONKEEP_CONFIG")
}

// Load reads the file named by FACTIONKEEP_CONFIG.
func Load() (*Config, error) {
	path := PathFromEnvironment()
	if path == "" {
		return nil, fmt.Errorf("FACTIONKEEP_CONFIG environment variable not set; " +
			"set it to the path of your factionkeep.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads path, applies the environment section and the
// environment-variable overlay, then expands path variables. The
// result is not validated; call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile without the file.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	var overlay environmentOverlay
	if err := env.Parse(&overlay); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if overlay.Environment != "" {
		cfg.Environment = Environment(overlay.Environment)
	}

	if err := cfg.applyEnvironmentSection(); err != nil {
		return nil, err
	}
	if overlay.LogLevel != "" {
		cfg.Log.Level = overlay.LogLevel
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentSection() error {
	var section *yaml.Node
	switch c.Environment {
	case Development:
		section = &c.Development
	case Staging:
		section = &c.Staging
	case Production:
		section = &c.Production
	default:
		return nil // Validate reports it.
	}
	if section.Kind == 0 {
		return nil
	}
	if section.Kind != yaml.MappingNode {
		return fmt.Errorf("config: %s section must be a mapping", c.Environment)
	}
	for index := 0; index+1 < len(section.Content); index += 2 {
		switch key := section.Content[index].Value; key {
		case "environment", "development", "staging", "production":
			return fmt.Errorf("config: %s section may not set %q", c.Environment, key)
		}
	}
	if err := section.Decode(c); err != nil {
		return fmt.Errorf("config: %s section: %w", c.Environment, err)
	}
	return nil
}

func (c *Config) expandVariables() {
	c.Homeserver.URL = expandVars(c.Homeserver.URL)
	c.Homeserver.SessionFile = expandVars(c.Homeserver.SessionFile)
	c.Store.Path = expandVars(c.Store.Path)
	c.Service.SocketPath = expandVars(c.Service.SocketPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Environment {
	case Development, Staging, Production:
	default:
		add("invalid environment: %q", c.Environment)
	}

	if c.Homeserver.URL == "" {
		add("homeserver.url is required")
	} else if parsed, err := url.Parse(c.Homeserver.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		add("homeserver.url must be an http(s) URL, got %q", c.Homeserver.URL)
	}
	if c.Homeserver.SessionFile == "" {
		add("homeserver.session_file is required")
	}

	if c.Store.Path == "" {
		add("store.path is required")
	}
	if c.Store.PoolSize < 1 {
		add("store.pool_size must be at least 1, got %d", c.Store.PoolSize)
	}

	if _, err := time.LoadLocation(c.Community.Timezone); err != nil {
		add("community.timezone: %v", err)
	}
	if c.Community.CommandPrefix == "" || strings.ContainsAny(c.Community.CommandPrefix, " \t\n") {
		add("community.command_prefix must be a non-empty word, got %q", c.Community.CommandPrefix)
	}
	if c.Community.AdminPowerLevel < 1 {
		add("community.admin_power_level must be positive, got %d", c.Community.AdminPowerLevel)
	}
	if c.Community.ParentSpace != "" {
		if _, err := ref.ParseRoomID(c.Community.ParentSpace); err != nil {
			add("community.parent_space: %v", err)
		}
	}
	if c.Community.RoomVersion == "" {
		add("community.room_version is required")
	}
	for _, room := range c.Community.Rooms {
		if _, err := ref.ParseRoomID(room); err != nil {
			add("community.rooms: %v", err)
		}
	}

	if c.Economy.CheckinPoints < 1 {
		add("economy.checkin_points must be positive, got %d", c.Economy.CheckinPoints)
	}
	if _, err := cron.Parse(c.Economy.ResetSchedule, time.UTC); err != nil {
		add("economy.reset_schedule: %v", err)
	}

	if c.Service.SocketPath == "" {
		add("service.socket_path is required")
	}
	if c.Service.CommandTimeout <= 0 {
		add("service.command_timeout must be positive, got %s", c.Service.CommandTimeout)
	}
	if c.Service.MaxConcurrentCommands < 1 {
		add("service.max_concurrent_commands must be at least 1, got %d", c.Service.MaxConcurrentCommands)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	return errors.Join(errs...)
}

// Location loads community.timezone. Call after Validate.
func (c *Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(c.Community.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: community.timezone: %w", err)
	}
	return location, nil
}

// ResetSchedule parses economy.reset_schedule in the community timezone.
func (c *Config) ResetSchedule() (cron.Schedule, error) {
	location, err := c.Location()
	if err != nil {
		return cron.Schedule{}, err
	}
	return cron.Parse(c.Economy.ResetSchedule, location)
}

// ParentSpace returns community.parent_space, zero when unset.
func (c *Config) ParentSpace() ref.RoomID {
	if c.Community.ParentSpace == "" {
		return ref.RoomID{}
	}
	roomID, _ := ref.ParseRoomID(c.Community.ParentSpace)
	return roomID
}

// CommandRooms returns community.rooms as room IDs, skipping invalid ones.
func (c *Config) CommandRooms() []ref.RoomID {
	var rooms []ref.RoomID
	for _, room := range c.Community.Rooms {
		if roomID, err := ref.ParseRoomID(room); err == nil {
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

// SlogLevel converts log.level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q (want debug, info, warn or error)", name)
}
