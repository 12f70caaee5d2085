package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRebuildOnRefresh(t *testing.T) {
	var cfg FirebaseConfig
	assert.True(t, cfg.ShouldRebuildOnRefresh(), "unset defaults to rebuilding")

	disabled := false
	cfg.RebuildOnRefresh = &disabled
	assert.False(t, cfg.ShouldRebuildOnRefresh())

	enabled := true
	cfg.RebuildOnRefresh = &enabled
	assert.True(t, cfg.ShouldRebuildOnRefresh())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:   "valid production config",
			mutate: func(cfg *Config) {},
		},
		{
			name: "missing api key",
			mutate: func(cfg *Config) {
				cfg.Firebase.APIKey = ""
			},
			wantErr: true,
		},
		{
			name: "missing project id",
			mutate: func(cfg *Config) {
				cfg.Firebase.ProjectID = ""
			},
			wantErr: true,
		},
		{
			name: "emulator skips firebase validation",
			mutate: func(cfg *Config) {
				cfg.Firebase = FirebaseConfig{}
				cfg.Emulator = &EmulatorConfig{Auth: "http://127.0.0.1:9099"}
			},
		},
		{
			name: "provider without client id",
			mutate: func(cfg *Config) {
				cfg.Providers["github"] = ProviderConfig{ClientSecret: "secret"}
			},
			wantErr: true,
		},
		{
			name: "provider secret is optional",
			mutate: func(cfg *Config) {
				cfg.Providers["google"] = ProviderConfig{ClientID: "id"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Firebase: FirebaseConfig{
					APIKey:    "test-api-key",
					ProjectID: "test-project",
				},
				Providers: map[string]ProviderConfig{
					"google": {ClientID: "id", ClientSecret: "secret"},
				},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)

				return
			}
			assert.NoError(t, err)
		})
	}
}
