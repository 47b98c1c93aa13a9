// Package s3 provides a storage variant over S3-compatible object stores:
// AWS S3, Cloudflare R2, MinIO, Wasabi and the like.
//
// Objects live in a flat keyspace; directories are simulated with key
// prefixes and zero-byte marker objects, so a directory exists when its
// marker does or when any object lives beneath its prefix.
//
// Basic usage:
//
//	st, err := s3.New(s3.Config{
//	    Bucket: "my-bucket",
//	    Region: "us-east-1",
//	})
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/polystore/polystore"
)

func init() {
	polystore.Register("s3", polystore.Driver{
		New:      NewFromOptions,
		Required: []string{"bucket_name"},
	})
}

// Backend implements polystore.Storage over an S3-compatible bucket.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
	closed   bool
	mu       sync.RWMutex
}

// New creates an S3 variant with the given configuration.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 5 * 1024 * 1024
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}

	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	if cfg.AssumeRole != "" {
		stsClient := sts.NewFromConfig(awsCfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, cfg.AssumeRole)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	var s3OptFns []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3OptFns...)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})

	return &Backend{
		client:   client,
		uploader: uploader,
		config:   cfg,
	}, nil
}

// NewFromOptions creates an S3 variant from an options map.
func NewFromOptions(options map[string]string) (polystore.Storage, error) {
	return New(ConfigFromOptions(options))
}

// NewWriter returns a writer whose content is uploaded when the writer is
// closed.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...polystore.WriterOption) (io.WriteCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	cfg := polystore.ApplyWriterOptions(opts...)
	return &s3Writer{
		backend:     b,
		ctx:         ctx,
		key:         b.fullKey(p),
		buffer:      &bytes.Buffer{},
		contentType: cfg.ContentType,
		metadata:    cfg.Metadata,
	}, nil
}

// NewReader streams the object at the given path.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.fullKey(p)),
	}

	cfg := polystore.ApplyReaderOptions(opts...)
	if cfg.Offset > 0 || cfg.Limit > 0 {
		var rangeHeader string
		if cfg.Limit > 0 {
			rangeHeader = fmt.Sprintf("bytes=%d-%d", cfg.Offset, cfg.Offset+cfg.Limit-1)
		} else {
			rangeHeader = fmt.Sprintf("bytes=%d-", cfg.Offset)
		}
		input.Range = aws.String(rangeHeader)
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		return nil, translateError(p, err)
	}
	return result.Body, nil
}

// Stat returns metadata for an object or a simulated directory.
func (b *Backend) Stat(ctx context.Context, p string) (polystore.FileStat, error) {
	if err := b.preflight(ctx); err != nil {
		return polystore.FileStat{}, err
	}

	key := b.fullKey(p)
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		var size int64
		if result.ContentLength != nil {
			size = *result.ContentLength
		}
		var modTime time.Time
		if result.LastModified != nil {
			modTime = *result.LastModified
		}

		stat := polystore.FileStat{
			Size:    size,
			ModTime: modTime,
		}
		if result.ETag != nil {
			// ETag is the content MD5 for non-multipart uploads
			etag := strings.Trim(*result.ETag, "\"")
			if !strings.Contains(etag, "-") {
				stat.Hashes = polystore.HashSet{polystore.HashMD5: etag}
			}
		}
		return stat, nil
	}
	if !isNotFound(err) {
		return polystore.FileStat{}, translateError(p, err)
	}

	ok, err := b.dirExists(ctx, key)
	if err != nil {
		return polystore.FileStat{}, err
	}
	if ok {
		return polystore.FileStat{IsDir: true}, nil
	}
	return polystore.FileStat{}, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
}

// Exists checks if an object or simulated directory exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := b.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, polystore.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// ListDir lists the immediate entries under a key prefix, keyed by name.
// Nested objects surface as a single directory entry via the delimiter.
func (b *Backend) ListDir(ctx context.Context, p string) (polystore.Listing, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	key := b.fullKey(p)
	prefix := childPrefix(key)

	ok, err := b.dirExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}

	listing := make(polystore.Listing)
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.config.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: listing %s: %w", p, err)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name != "" {
				listing[name] = polystore.FileStat{IsDir: true}
			}
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || *obj.Key == prefix {
				// skip the directory marker itself
				continue
			}
			name := strings.TrimPrefix(*obj.Key, prefix)
			stat := polystore.FileStat{}
			if obj.Size != nil {
				stat.Size = *obj.Size
			}
			if obj.LastModified != nil {
				stat.ModTime = *obj.LastModified
			}
			if obj.ETag != nil {
				etag := strings.Trim(*obj.ETag, "\"")
				if !strings.Contains(etag, "-") {
					stat.Hashes = polystore.HashSet{polystore.HashMD5: etag}
				}
			}
			listing[name] = stat
		}
	}
	return listing, nil
}

// Mkdir creates a zero-byte directory marker so the prefix exists while
// empty.
func (b *Backend) Mkdir(ctx context.Context, p string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}
	if p == "" {
		return nil
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.config.Bucket),
		Key:           aws.String(childPrefix(b.fullKey(p))),
		Body:          bytes.NewReader([]byte{}),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return fmt.Errorf("s3: creating directory marker for %s: %w", p, err)
	}
	return nil
}

// Delete removes an object, or a directory marker. Missing keys are not
// an error.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	key := b.fullKey(p)
	for _, k := range []string{key, childPrefix(key)} {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.config.Bucket),
			Key:    aws.String(k),
		})
		if err != nil && !isNotFound(err) {
			return translateError(p, err)
		}
	}
	return nil
}

// Rename moves an object, or every object under a directory prefix, with
// server-side copies followed by deletes. Not atomic.
func (b *Backend) Rename(ctx context.Context, p, newPath string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	key := b.fullKey(p)
	newKey := b.fullKey(newPath)

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return b.renameObject(ctx, key, newKey)
	}
	if !isNotFound(err) {
		return translateError(p, err)
	}

	prefix := childPrefix(key)
	moved := false
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.config.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3: listing %s: %w", p, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rest := strings.TrimPrefix(*obj.Key, prefix)
			target := childPrefix(newKey)
			if rest != "" {
				target = path.Join(newKey, rest)
			}
			if err := b.renameObject(ctx, *obj.Key, target); err != nil {
				return err
			}
			moved = true
		}
	}
	if !moved {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}
	return nil
}

func (b *Backend) renameObject(ctx context.Context, key, newKey string) error {
	copySource := fmt.Sprintf("%s/%s", b.config.Bucket, key)
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.config.Bucket),
		CopySource: aws.String(copySource),
		Key:        aws.String(newKey),
	})
	if err != nil {
		return translateError(key, err)
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return translateError(key, err)
	}
	return nil
}

// Features describes the variant's capabilities. Modification times are
// upload times, so fingerprint comparisons should prefer checksum mode.
func (b *Backend) Features() polystore.Features {
	return polystore.Features{
		Read:      true,
		Push:      true,
		List:      true,
		Exists:    true,
		Stat:      true,
		Mkdir:     true,
		Delete:    true,
		Rename:    true,
		CanStream: true,
		RangeRead: true,
		Hashes:    []polystore.HashType{polystore.HashMD5},
	}
}

// Close releases the variant. Further operations fail.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) preflight(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return polystore.ErrStorageClosed
	}
	return ctx.Err()
}

// dirExists reports whether any object lives at or under the prefix.
func (b *Backend) dirExists(ctx context.Context, key string) (bool, error) {
	if key == "" || key == b.config.Prefix {
		return true, nil
	}
	result, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.config.Bucket),
		Prefix:  aws.String(childPrefix(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("s3: listing %s: %w", key, err)
	}
	return len(result.Contents) > 0 || len(result.CommonPrefixes) > 0, nil
}

func (b *Backend) fullKey(p string) string {
	if b.config.Prefix == "" {
		return p
	}
	return path.Join(b.config.Prefix, p)
}

func childPrefix(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// translateError converts SDK errors to storage errors.
func translateError(p string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("s3: bucket not found: %w", err)
	}

	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", polystore.ErrPermissionDenied, p)
		}
	}
	return fmt.Errorf("s3: %w", err)
}

// s3Writer buffers writes and uploads the object on Close.
type s3Writer struct {
	backend     *Backend
	ctx         context.Context
	key         string
	buffer      *bytes.Buffer
	contentType string
	metadata    map[string]string
	closed      bool
	mu          sync.Mutex
}

func (w *s3Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, polystore.ErrWriterClosed
	}
	return w.buffer.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.backend.config.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buffer.Bytes()),
	}
	if w.contentType != "" {
		input.ContentType = aws.String(w.contentType)
	}
	if len(w.metadata) > 0 {
		input.Metadata = w.metadata
	}

	if _, err := w.backend.uploader.Upload(w.ctx, input); err != nil {
		return fmt.Errorf("s3: uploading object: %w", err)
	}
	return nil
}

var _ polystore.Storage = (*Backend)(nil)
