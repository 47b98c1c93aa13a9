package ssh

import (
	"errors"
	"strconv"
)

// Errors specific to the SSH variant.
var (
	ErrServerRequired = errors.New("ssh: server is required")
	ErrUserRequired   = errors.New("ssh: user is required")
	ErrAuthRequired   = errors.New("ssh: no authentication method provided (password, pkey or key_file required)")
)

// Config holds configuration for the SSH variant.
type Config struct {
	// Server is the SSH server hostname or IP address (required).
	Server string

	// Port is the SSH port. Default: 22.
	Port int

	// User is the SSH username (required).
	User string

	// Password is the SSH password.
	Password string

	// PrivateKey is an inline PEM-encoded private key.
	PrivateKey string

	// KeyFile is the path to a private key file.
	KeyFile string

	// KeyPassphrase is the passphrase for encrypted private keys.
	KeyPassphrase string

	// BaseDir is the base directory on the remote server. All paths are
	// resolved against it.
	BaseDir string

	// Timeout is the connection timeout in seconds. Default: 30.
	Timeout int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Port:    22,
		Timeout: 30,
	}
}

// ConfigFromOptions creates a Config from an options map.
// Supported keys:
//   - server: server hostname (required)
//   - port: SSH port (default: 22)
//   - user: username (required)
//   - password: password
//   - pkey: inline PEM-encoded private key
//   - key_file: path to a private key file
//   - key_passphrase: passphrase for encrypted keys
//   - basedir: base directory on the remote server
//   - timeout: connection timeout in seconds
func ConfigFromOptions(options map[string]string) Config {
	config := DefaultConfig()

	if v := options["server"]; v != "" {
		config.Server = v
	}
	if v := options["port"]; v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Port = port
		}
	}
	if v := options["user"]; v != "" {
		config.User = v
	}
	if v := options["password"]; v != "" {
		config.Password = v
	}
	if v := options["pkey"]; v != "" {
		config.PrivateKey = v
	}
	if v := options["key_file"]; v != "" {
		config.KeyFile = v
	}
	if v := options["key_passphrase"]; v != "" {
		config.KeyPassphrase = v
	}
	if v := options["basedir"]; v != "" {
		config.BaseDir = v
	}
	if v := options["timeout"]; v != "" {
		if timeout, err := strconv.Atoi(v); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Server == "" {
		return ErrServerRequired
	}
	if c.User == "" {
		return ErrUserRequired
	}
	if c.Password == "" && c.PrivateKey == "" && c.KeyFile == "" {
		return ErrAuthRequired
	}
	return nil
}
