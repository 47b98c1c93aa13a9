package s3

import (
	"errors"
	"strconv"
)

// Errors specific to the S3 variant.
var (
	ErrBucketRequired = errors.New("s3: bucket_name is required")
)

// Config holds configuration for the S3 variant.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the AWS region (e.g., "us-east-1"). If empty, the SDK's
	// default resolution applies.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services such
	// as MinIO or Cloudflare R2. Leave empty for AWS S3.
	Endpoint string

	// Prefix is an optional key prefix applied to all paths.
	Prefix string

	// AccessKeyID and SecretAccessKey are static credentials. If empty,
	// the SDK's default credential chain applies.
	AccessKeyID     string
	SecretAccessKey string

	// SessionToken is an optional token for temporary credentials.
	SessionToken string

	// AssumeRole is an IAM role ARN to assume via STS before issuing
	// requests.
	AssumeRole string

	// UsePathStyle forces path-style addressing, required by MinIO and
	// some other S3-compatible services.
	UsePathStyle bool

	// PartSize is the multipart upload part size in bytes. Default 5MB.
	PartSize int64

	// Concurrency is the number of concurrent part uploads. Default 5.
	Concurrency int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PartSize:    5 * 1024 * 1024,
		Concurrency: 5,
	}
}

// ConfigFromOptions creates a Config from an options map.
// Supported keys:
//   - bucket_name: bucket name (required)
//   - region_name: AWS region
//   - endpoint_url: custom endpoint URL
//   - prefix: key prefix
//   - access_key_id: access key
//   - secret_access_key: secret key
//   - session_token: session token
//   - assume_role: IAM role ARN to assume
//   - use_path_style: "true" for path-style addressing
//   - part_size: multipart part size in bytes
//   - concurrency: concurrent part uploads
func ConfigFromOptions(options map[string]string) Config {
	config := DefaultConfig()

	if v := options["bucket_name"]; v != "" {
		config.Bucket = v
	}
	if v := options["region_name"]; v != "" {
		config.Region = v
	}
	if v := options["endpoint_url"]; v != "" {
		config.Endpoint = v
	}
	if v := options["prefix"]; v != "" {
		config.Prefix = v
	}
	if v := options["access_key_id"]; v != "" {
		config.AccessKeyID = v
	}
	if v := options["secret_access_key"]; v != "" {
		config.SecretAccessKey = v
	}
	if v := options["session_token"]; v != "" {
		config.SessionToken = v
	}
	if v := options["assume_role"]; v != "" {
		config.AssumeRole = v
	}
	if v := options["use_path_style"]; v == "true" || v == "1" {
		config.UsePathStyle = true
	}
	if v := options["part_size"]; v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			config.PartSize = size
		}
	}
	if v := options["concurrency"]; v != "" {
		if c, err := strconv.Atoi(v); err == nil && c > 0 {
			config.Concurrency = c
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	return nil
}
