// Package s3 registers the "s3" target provider. Each record is written as
// a JSON object named <prefix>/<key>.json; writing the same key again
// replaces the object, which makes inserts idempotent.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

func init() {
	provider.Register(provider.Info{
		Name:        "s3",
		Description: "Amazon S3 or S3-compatible bucket, one JSON object per record (target only)",
		Target: &provider.TargetInfo{
			NewSettings: func() archive.TargetSettings { return new(Settings) },
			New:         func(d provider.Deps) archive.Target { return New(d.Logger) },
		},
	})
}

// ObjectAPI is the subset of the S3 client the target uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// ClientFactory builds an ObjectAPI for settings.
type ClientFactory func(ctx context.Context, s *Settings) (ObjectAPI, error)

var _ archive.Target = (*Target)(nil)

// Target writes records to a bucket.
type Target struct {
	logger    *slog.Logger
	newClient ClientFactory

	mu     sync.Mutex
	client ObjectAPI
}

// New creates a target using the AWS SDK default configuration chain.
func New(logger *slog.Logger) *Target {
	return NewWithClient(logger, DefaultClient)
}

// NewWithClient creates a target whose client is built by factory.
func NewWithClient(logger *slog.Logger, factory ClientFactory) *Target {
	if logger == nil {
		logger = slog.Default()
	}
	return &Target{logger: logger, newClient: factory}
}

// DefaultClient loads the shared AWS configuration and applies the
// region, endpoint and credential overrides from s.
func DefaultClient(ctx context.Context, s *Settings) (ObjectAPI, error) {
	var opts []func(*config.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
		o.UsePathStyle = s.UsePathStyle
	}), nil
}

// RunScript implements archive.Target. Object storage has nothing to run a
// script against, so any script is an error.
func (t *Target) RunScript(_ context.Context, _ archive.TargetSettings, _ string) error {
	return fmt.Errorf("%w: s3: pre-scripts are not supported", archive.ErrScriptExecution)
}

// Insert implements archive.Target. Objects are uploaded concurrently; the
// first failure cancels the remaining uploads of the batch.
func (t *Target) Insert(ctx context.Context, settings archive.TargetSettings, records []archive.Record) error {
	if len(records) == 0 {
		return nil
	}
	st, ok := settings.(*Settings)
	if !ok || st == nil {
		return fmt.Errorf("%w: s3: unexpected settings type %T", archive.ErrConfiguration, settings)
	}

	keys := make([]string, len(records))
	for i, r := range records {
		v, err := r.Key(st.Field)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		keys[i] = ObjectKey(st.Prefix, v)
	}

	client, err := t.api(ctx, st)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(st.Concurrency)
	for i, r := range records {
		g.Go(func() error {
			body, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("s3: encode %s: %w", keys[i], err)
			}
			_, err = client.PutObject(gctx, &awss3.PutObjectInput{
				Bucket:      aws.String(st.Bucket),
				Key:         aws.String(keys[i]),
				Body:        bytes.NewReader(body),
				ContentType: aws.String("application/json"),
			})
			if err != nil {
				return fmt.Errorf("s3: put %s: %w", keys[i], err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	t.logger.Debug("s3: batch uploaded", "bucket", st.Bucket, "objects", len(records))
	return nil
}

func (t *Target) api(ctx context.Context, st *Settings) (ObjectAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}
	c, err := t.newClient(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%w: s3: %w", archive.ErrConnection, err)
	}
	t.client = c
	return c, nil
}

// ObjectKey returns the object name for a record key.
func ObjectKey(prefix string, key any) string {
	name := strings.TrimPrefix(fmt.Sprint(key)+".json", "/")
	if prefix == "" {
		return name
	}
	return strings.TrimPrefix(path.Join(prefix, name), "/")
}
