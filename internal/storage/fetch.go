package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedRef is returned for references with an unknown or disallowed scheme.
var ErrUnsupportedRef = errors.New("unsupported file reference")

// ErrTooLarge is returned when a remote document exceeds the size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// S3Options configures access to S3-compatible storage.
type S3Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible services
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	S3         S3Options
	HTTPClient *http.Client
	MaxBytes   int64
	AllowLocal bool // accept file:// and bare paths
}

// Fetcher stages documents referenced by URL into working storage.
// Supported references: s3://bucket/key, http(s)://..., and, when allowed,
// file://path or a bare filesystem path.
type Fetcher struct {
	uploads *Uploads
	opts    FetcherOptions

	s3Once sync.Once
	s3Cli  *s3.Client
	s3Err  error
}

// NewFetcher creates a Fetcher staging into uploads.
func NewFetcher(uploads *Uploads, opts FetcherOptions) *Fetcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{uploads: uploads, opts: opts}
}

// Fetch resolves ref into a TempFile. Remote documents are downloaded and must
// be removed by the caller; local files are returned as-is and never deleted.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*TempFile, error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		return f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return f.fetchHTTP(ctx, ref)
	case !f.opts.AllowLocal:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref)
	case strings.HasPrefix(ref, "file://"):
		return localFile(strings.TrimPrefix(ref, "file://"))
	case strings.Contains(ref, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, ref)
	default:
		return localFile(ref)
	}
}

func localFile(p string) (*TempFile, error) {
	st, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	return &TempFile{Path: p, Name: path.Base(p), Size: st.Size(), keep: true}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (*TempFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	name := "download.pdf"
	if u, err := url.Parse(rawURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}

	body := io.Reader(resp.Body)
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	tf, err := f.uploads.Save(name, body)
	if err != nil {
		return nil, err
	}
	if f.opts.MaxBytes > 0 && tf.Size > f.opts.MaxBytes {
		_ = tf.Remove()
		return nil, ErrTooLarge
	}
	log.Info().Str("url", rawURL).Int64("bytes", tf.Size).Msg("downloaded pdf to working storage")
	return tf, nil
}

func (f *Fetcher) client(ctx context.Context) (*s3.Client, error) {
	f.s3Once.Do(func() {
		o := f.opts.S3
		var loadOpts []func(*awscfg.LoadOptions) error
		if o.Region != "" {
			loadOpts = append(loadOpts, awscfg.WithRegion(o.Region))
		}
		if o.AccessKeyID != "" {
			loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			f.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		f.s3Cli = s3.NewFromConfig(cfg, func(so *s3.Options) {
			if o.Endpoint != "" {
				so.BaseEndpoint = aws.String(o.Endpoint)
				so.UsePathStyle = true
			}
		})
	})
	return f.s3Cli, f.s3Err
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(s3url string) (bucket, key string, err error) {
	p := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", s3url)
	}
	return p[:slash], p[slash+1:], nil
}

func (f *Fetcher) fetchS3(ctx context.Context, s3url string) (*TempFile, error) {
	bucket, key, err := ParseS3URL(s3url)
	if err != nil {
		return nil, err
	}
	cli, err := f.client(ctx)
	if err != nil {
		return nil, err
	}

	if f.opts.MaxBytes > 0 {
		head, err := cli.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("failed to stat S3 object: %w", err)
		}
		if aws.ToInt64(head.ContentLength) > f.opts.MaxBytes {
			return nil, ErrTooLarge
		}
	}

	out, tf, err := f.uploads.create(path.Base(key))
	if err != nil {
		return nil, err
	}
	n, err := manager.NewDownloader(cli).Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tf.Path)
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	tf.Size = n
	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 pdf to working storage")
	return tf, nil
}
