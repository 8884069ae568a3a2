package statuscheck

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketHeader checks that a bucket is reachable.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	redis    RedisPinger
	s3       BucketHeader
	s3Opts   S3Options
	s3Bucket string
	renderer func() error
}

// S3Options are the credentials used when no BucketHeader is supplied.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// Options configures the Checker.
type Options struct {
	Redis    RedisPinger // nil when progress stays in process
	S3       BucketHeader
	S3Bucket string
	S3Config S3Options
	Renderer func() error
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Renderer Status `json:"renderer"`
}

// Healthy reports whether the renderer works and every configured
// dependency is reachable.
func (s Summary) Healthy() bool {
	return s.Renderer.OK && (s.Redis.OK || s.Redis.Message == msgInProcess) && (s.S3.OK || s.S3.Message == msgNotConfigured)
}

const (
	msgInProcess     = "Not configured (in-process progress)"
	msgNotConfigured = "Bucket not configured"
)

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		s3:       opts.S3,
		s3Opts:   opts.S3Config,
		s3Bucket: opts.S3Bucket,
		renderer: opts.Renderer,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
		Renderer: c.checkRenderer(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: msgInProcess}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: false, Message: msgNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cli := c.s3
	if cli == nil {
		var err error
		cli, err = c.newS3Client(ctx)
		if err != nil {
			return Status{OK: false, Message: trimError(err)}
		}
	}
	if _, err := cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.s3Bucket)}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) newS3Client(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if c.s3Opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(c.s3Opts.Region))
	}
	if c.s3Opts.AccessKeyID != "" && c.s3Opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.s3Opts.AccessKeyID, c.s3Opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.s3Opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.s3Opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (c *Checker) checkRenderer() Status {
	if c.renderer == nil {
		return Status{OK: false, Message: "Renderer not configured"}
	}
	if err := c.renderer(); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
