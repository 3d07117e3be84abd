// Package s3store keeps the entry tree as one JSON object in an
// S3-compatible bucket (AWS S3 or MinIO).
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/memory"
	"github.com/tamzrod/superscore/internal/model"
)

const (
	DefaultRegion = "us-east-1"
	DefaultKey    = "superscore/root.json"
)

var _ backend.Backend = (*Store)(nil)

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds construction parameters. Credentials fall back to the
// default AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. MinIO
	Key             string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	Logger          *slog.Logger
}

// Store snapshots the in-memory tree to one object after every successful
// mutation.
type Store struct {
	*memory.Store
	client objectAPI
	bucket string
	key    string
	mu     sync.Mutex
}

// Open builds an S3 client from cfg and loads the object if present.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3store: bucket required", backend.ErrBackend)
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: s3store: load aws config: %v", backend.ErrBackend, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newStore(ctx, client, cfg)
}

func newStore(ctx context.Context, client objectAPI, cfg Config) (*Store, error) {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Store{client: client, bucket: cfg.Bucket, key: cfg.Key}
	root, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.Store = memory.New(
		memory.WithRoot(root),
		memory.WithCommit(s.persist),
		memory.WithLogger(cfg.Logger.With("backend", "s3", "bucket", cfg.Bucket, "key", cfg.Key)),
	)
	return s, nil
}

func (s *Store) load(ctx context.Context) (*model.Root, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if isNotFound(err) {
		return model.NewRoot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: s3store: get s3://%s/%s: %v", backend.ErrBackend, s.bucket, s.key, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3store: read body: %v", backend.ErrBackend, err)
	}
	return backend.DecodeRoot(data)
}

func (s *Store) persist(ctx context.Context, root *model.Root) error {
	data, err := backend.EncodeRoot(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
