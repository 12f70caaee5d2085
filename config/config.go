// Package config loads the application configuration from YAML files with
// environment variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultPath = "."

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	// Firebase identifies the project this client signs in to.
	Firebase FirebaseConfig `json:"firebase" yaml:"firebase"`

	// Providers holds the OAuth client credentials, keyed by provider name
	// ("google", "github"). Any subset may be configured; each configured
	// provider gets its own authorization URL per login attempt.
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`

	// Emulator overrides the production endpoints with local emulators.
	Emulator *EmulatorConfig `json:"emulator" yaml:"emulator"`

	Login LoginConfig `json:"login" yaml:"login"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// FirebaseConfig defines the Firebase project this client belongs to.
type FirebaseConfig struct {
	APIKey    string `json:"apiKey" yaml:"apiKey" validate:"required"`
	ProjectID string `json:"projectId" yaml:"projectId" validate:"required"`

	// RebuildOnRefresh tears down and rebuilds the Firestore client with the
	// new bearer token whenever the session's ID token is refreshed. Unset
	// means true; a stale bearer token makes every call fail once it expires.
	RebuildOnRefresh *bool `json:"rebuildOnRefresh" yaml:"rebuildOnRefresh"`
}

// ShouldRebuildOnRefresh resolves the tri-state flag.
func (f FirebaseConfig) ShouldRebuildOnRefresh() bool {
	if f.RebuildOnRefresh == nil {
		return true
	}

	return *f.RebuildOnRefresh
}

// ProviderConfig holds one OAuth provider's client credentials.
type ProviderConfig struct {
	ClientID string `json:"clientId" yaml:"clientId" validate:"required"`
	// ClientSecret is optional; some providers and flows omit it.
	ClientSecret string `json:"clientSecret" yaml:"clientSecret"`
	// Scopes overrides the provider's default scope string.
	Scopes string `json:"scopes" yaml:"scopes"`
}

// EmulatorConfig points the client at the Firebase emulator suite.
type EmulatorConfig struct {
	// Auth is the auth emulator base URL, e.g. "http://127.0.0.1:9099".
	Auth string `json:"auth" yaml:"auth"`
	// Firestore is the plaintext emulator address, e.g. "127.0.0.1:8080".
	Firestore string `json:"firestore" yaml:"firestore"`
}

// LoginConfig controls session persistence between runs.
type LoginConfig struct {
	// Remember persists the refresh token to the cache dir on login.
	Remember bool `json:"remember" yaml:"remember"`
	// CacheDir overrides the OS user cache directory.
	CacheDir string `json:"cacheDir" yaml:"cacheDir"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: FIREBASE_PROJECTID -> firebase.projectId (not firebase.projectid)
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the loaded configuration is usable. Against the
// emulator any non-empty API key is accepted, so the firebase block is not
// validated there.
func (c *Config) Validate() error {
	validate := validator.New()

	if c.Emulator == nil {
		if err := validate.Struct(c.Firebase); err != nil {
			return errors.Wrap(err, "firebase config")
		}
	}

	for name, provider := range c.Providers {
		if err := validate.Struct(provider); err != nil {
			return errors.Wrapf(err, "provider %s", name)
		}
	}

	return nil
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
