package swift

import (
	"errors"
	"strconv"
)

// Errors specific to the Swift variant.
var (
	ErrContainerRequired = errors.New("swift: container_name is required")
	ErrAuthURLRequired   = errors.New("swift: auth_url is required")
)

// Config holds configuration for the Swift variant.
type Config struct {
	// Container is the Swift container name (required).
	Container string

	// AuthURL is the Keystone or legacy auth endpoint (required).
	AuthURL string

	// UserName and APIKey authenticate against the auth endpoint.
	UserName string
	APIKey   string

	// Domain, Tenant and Region scope the token for Keystone v3
	// deployments. Optional.
	Domain string
	Tenant string
	Region string

	// AuthVersion pins the auth protocol version. Zero lets the client
	// guess from the URL.
	AuthVersion int

	// Prefix is an optional object name prefix applied to all paths.
	Prefix string
}

// ConfigFromOptions creates a Config from an options map.
// Supported keys:
//   - container_name: container name (required)
//   - auth_url: auth endpoint (required)
//   - user: user name
//   - key: API key or password
//   - domain: Keystone domain
//   - tenant: tenant or project name
//   - region: region name
//   - auth_version: auth protocol version
//   - prefix: object name prefix
func ConfigFromOptions(options map[string]string) Config {
	config := Config{
		Container: options["container_name"],
		AuthURL:   options["auth_url"],
		UserName:  options["user"],
		APIKey:    options["key"],
		Domain:    options["domain"],
		Tenant:    options["tenant"],
		Region:    options["region"],
		Prefix:    options["prefix"],
	}
	if v := options["auth_version"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.AuthVersion = n
		}
	}
	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Container == "" {
		return ErrContainerRequired
	}
	if c.AuthURL == "" {
		return ErrAuthURLRequired
	}
	return nil
}
