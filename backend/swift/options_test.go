package swift

import (
	"errors"
	"testing"
)

func TestConfigFromOptions(t *testing.T) {
	config := ConfigFromOptions(map[string]string{
		"container_name": "corpora",
		"auth_url":       "https://keystone.example.org/v3",
		"user":           "svc",
		"key":            "secret",
		"tenant":         "research",
		"region":         "GRA",
		"auth_version":   "3",
		"prefix":         "datasets",
	})

	if config.Container != "corpora" || config.AuthURL != "https://keystone.example.org/v3" {
		t.Errorf("config = %+v", config)
	}
	if config.UserName != "svc" || config.APIKey != "secret" {
		t.Errorf("credentials = %q/%q", config.UserName, config.APIKey)
	}
	if config.AuthVersion != 3 || config.Region != "GRA" || config.Prefix != "datasets" {
		t.Errorf("config = %+v", config)
	}
}

func TestConfigBadAuthVersion(t *testing.T) {
	config := ConfigFromOptions(map[string]string{
		"container_name": "c",
		"auth_url":       "u",
		"auth_version":   "three",
	})
	if config.AuthVersion != 0 {
		t.Errorf("auth version = %d, want 0 for unparsable input", config.AuthVersion)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"missing container", Config{AuthURL: "u"}, ErrContainerRequired},
		{"missing auth url", Config{Container: "c"}, ErrAuthURLRequired},
		{"valid", Config{Container: "c", AuthURL: "u"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
