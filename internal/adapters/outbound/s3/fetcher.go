// Package s3 provides an S3 adapter for reading metadata documents from AWS S3.
package s3

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
)

// s3API defines the subset of S3 operations needed by the Fetcher.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Compile-time check that Fetcher implements outbound.DocumentFetcher
var _ outbound.DocumentFetcher = (*Fetcher)(nil)

// Config holds the bucket layout for metadata documents.
type Config struct {
	Bucket string
	// Prefix is prepended to every document key.
	Prefix string
	// Gzip selects the .json.gz variant of each document.
	Gzip bool
}

// Fetcher reads metadata documents stored as <prefix>/<document>.json objects.
type Fetcher struct {
	client s3API
	cfg    Config
	logger *slog.Logger
}

// NewFetcher creates a new S3 Fetcher with the given AWS config.
func NewFetcher(awsCfg aws.Config, cfg Config, logger *slog.Logger, optFns ...func(*s3.Options)) (*Fetcher, error) {
	return newFetcher(s3.NewFromConfig(awsCfg, optFns...), cfg, logger)
}

func newFetcher(client s3API, cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "s3-metadata-fetcher"),
	}, nil
}

// Key returns the object key for a document.
func (f *Fetcher) Key(doc outbound.MetadataDocument) string {
	name := string(doc) + ".json"
	if f.cfg.Gzip {
		name += ".gz"
	}
	if f.cfg.Prefix == "" {
		return name
	}
	return path.Join(f.cfg.Prefix, name)
}

// FetchDocument downloads and, when gzipped, decompresses a document.
func (f *Fetcher) FetchDocument(ctx context.Context, doc outbound.MetadataDocument) ([]byte, error) {
	key := f.Key(doc)
	rc, err := f.stream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", f.cfg.Bucket, key, err)
	}
	f.logger.Debug("fetched metadata document", "bucket", f.cfg.Bucket, "key", key, "bytes", len(data))
	return data, nil
}

func (f *Fetcher) stream(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", f.cfg.Bucket, key, err)
	}

	if strings.HasSuffix(key, ".gz") {
		gzReader, err := gzip.NewReader(result.Body)
		if err != nil {
			result.Body.Close()
			return nil, fmt.Errorf("failed to create gzip reader for %s: %w", key, err)
		}
		return &gzipReadCloser{gzReader: gzReader, body: result.Body}, nil
	}
	return result.Body, nil
}

// gzipReadCloser wraps a gzip reader and the underlying body for proper cleanup.
type gzipReadCloser struct {
	gzReader *gzip.Reader
	body     io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.gzReader.Read(p)
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.gzReader.Close()
	bodyErr := g.body.Close()
	if gzErr != nil {
		return gzErr
	}
	return bodyErr
}
