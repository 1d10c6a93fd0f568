package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from every variable; the next segment up to "_"
// names the section (TRACE_REGISTRY_CACHE_SIZE sets registry.cache_size).
const envPrefix = "TRACE_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log        LoggingConfig    `koanf:"log"`
	Registry   RegistryConfig   `koanf:"registry"`
	Categories CategoriesConfig `koanf:"categories"`
	Store      StoreConfig      `koanf:"store"`
	Ingest     IngestConfig     `koanf:"ingest"`
	API        APIConfig        `koanf:"api"`
}

type LoggingConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	// File, when set, receives a rotated copy of the log.
	File string `koanf:"file"`
}

type RegistryConfig struct {
	// Source is a file path or http(s) URL of a JSON array of hostnames.
	Source  string        `koanf:"source" validate:"required,source"`
	Backend string        `koanf:"backend" validate:"required,oneof=memory bolt"`
	DB      string        `koanf:"db" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// CacheSize bounds the decision cache; 0 disables it.
	CacheSize int     `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

type CategoriesConfig struct {
	// File overrides the built-in hostname→category table.
	File string `koanf:"file"`
}

type StoreConfig struct {
	// MaxDomains caps distinct domains; 0 is unbounded.
	MaxDomains int `koanf:"max_domains" validate:"gte=0"`
	// MaxIdle drops domains not seen for this long; 0 keeps them.
	MaxIdle       time.Duration `koanf:"max_idle" validate:"gte=0"`
	PruneInterval time.Duration `koanf:"prune_interval" validate:"gt=0"`
}

type IngestConfig struct {
	// Source selects the request source: "stream" (JSON lines) or "cdp".
	Source string `koanf:"source" validate:"required,oneof=stream cdp"`
	// Input is the JSON-lines file for the stream source; "-" is stdin.
	Input  string `koanf:"input" validate:"required"`
	CDPURL string `koanf:"cdp_url" validate:"required,http_url"`
	// Target pins one DevTools target id; empty follows every page.
	Target string `koanf:"target"`
	// CDPPoll is how often the DevTools target list is checked for new tabs.
	CDPPoll         time.Duration `koanf:"cdp_poll" validate:"gt=0"`
	InternalSchemes []string      `koanf:"internal_schemes" validate:"dive,required"`
	Buffer          int           `koanf:"buffer" validate:"gte=1"`
}

type APIConfig struct {
	Addr string `koanf:"addr" validate:"required,hostport"`
}

// DEFAULT_APP_CONFIG is applied before environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Registry: RegistryConfig{
		Source:    "/etc/traceless/trackers.json",
		Backend:   "memory",
		DB:        "/var/lib/traceless/registry.db",
		Timeout:   10 * time.Second,
		CacheSize: 4096,
		FPRate:    0.01,
	},
	Store: StoreConfig{
		MaxDomains:    10000,
		PruneInterval: time.Minute,
	},
	Ingest: IngestConfig{
		Source:          "stream",
		Input:           "-",
		CDPURL:          "http://127.0.0.1:9222",
		CDPPoll:         time.Second,
		InternalSchemes: []string{},
		Buffer:          256,
	},
	API: APIConfig{
		Addr: "127.0.0.1:8377",
	},
}

// validSource accepts an http(s) URL with a host or a bare file path.
func validSource(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return false
	}
	if !strings.Contains(s, "://") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validHostPort validates "host:port" where host may be empty (all interfaces).
func validHostPort(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

// transformEnv maps TRACE_SECTION_KEY to section.key and splits lists.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if section, rest, ok := strings.Cut(key, "_"); ok {
		key = section + "." + rest
	}
	value = strings.TrimSpace(value)

	if value == "" {
		return key, value
	}

	if strings.Contains(value, " ") || strings.Contains(value, ",") {
		parts := strings.FieldsFunc(value, func(r rune) bool {
			return r == ' ' || r == ','
		})
		return key, parts
	}

	return key, value
}

// envLoader loads TRACE_ variables. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: transformEnv,
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the "source" and "hostport" tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("source", validSource); err != nil {
		return err
	}
	return v.RegisterValidation("hostport", validHostPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
