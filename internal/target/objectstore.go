package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/yhlac/wallsyncd/internal/config"
	"github.com/yhlac/wallsyncd/internal/media"
)

// ObjectPutter is the subset of the S3 client used by ObjectStore
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectStore overwrites the current artifacts and metadata in an S3 bucket
type ObjectStore struct {
	client       ObjectPutter
	bucket       string
	prefix       string
	cacheControl string
	logger       *slog.Logger
}

// NewObjectStore creates an object store target
func NewObjectStore(client ObjectPutter, bucket, prefix, cacheControl string, logger *slog.Logger) *ObjectStore {
	return &ObjectStore{
		client:       client,
		bucket:       bucket,
		prefix:       prefix,
		cacheControl: cacheControl,
		logger:       logger,
	}
}

// NewS3Client builds an S3 client from configuration. Static credentials are
// used when an access key is configured, the default chain otherwise.
func NewS3Client(ctx context.Context, cfg config.ObjectStoreConfig, secretAccessKey string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, secretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		ep := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &ep
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func (o *ObjectStore) Name() string   { return NameObjectStore }
func (o *ObjectStore) Kind() Kind     { return KindObjectStore }
func (o *ObjectStore) Policy() Policy { return PolicyOverwrite }

// Key returns the object key for an artifact role
func (o *ObjectStore) Key(role media.Role) string {
	return o.prefix + string(role) + ".webp"
}

// MetadataKey returns the object key of the metadata document
func (o *ObjectStore) MetadataKey() string {
	return o.prefix + "metadata.json"
}

// Write puts every artifact and the metadata document concurrently
func (o *ObjectStore) Write(ctx context.Context, p *Payload) Result {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return failed(fmt.Errorf("failed to encode metadata: %w", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range p.Artifacts {
		g.Go(func() error {
			return o.put(gctx, o.Key(a.Role), a.Bytes, media.ContentType)
		})
	}
	g.Go(func() error {
		return o.put(gctx, o.MetadataKey(), meta, "application/json")
	})
	if err := g.Wait(); err != nil {
		return writeFailed(o.Name(), err)
	}

	o.logger.Info("object store updated", "bucket", o.bucket, "objects", len(p.Artifacts)+1)
	return Result{Outcome: OutcomeUpdated}
}

func (o *ObjectStore) put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if o.cacheControl != "" {
		input.CacheControl = aws.String(o.cacheControl)
	}
	if _, err := o.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
