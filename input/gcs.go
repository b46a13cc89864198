package input

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/storage/experimental"
	"github.com/googleapis/gax-go/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	maxConnsPerHost     = 100
	maxIdleConnsPerHost = 100
	maxRetryDuration    = 30 * time.Second
	retryMultiplier     = 2.0
	userAgent           = "pretty-plots"
)

// GCSOptions configures the storage client used for gs:// inputs and
// artifact uploads.
type GCSOptions struct {
	// Protocol selects the transport: "http" (default) or "grpc".
	Protocol string

	// WithReadStallTimeout retries reads that stall past the dynamic
	// timeout computed at TargetPercentile, never below MinDelay.
	WithReadStallTimeout bool
	MinDelay             time.Duration
	TargetPercentile     float64
}

type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rt.UserAgent)
	return rt.wrapped.RoundTrip(req)
}

func createHTTPClient(ctx context.Context, opts *GCSOptions) (*storage.Client, error) {
	transport := &http.Transport{
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		// Disable HTTP/2 so connections scale with MaxConnsPerHost.
		TLSNextProto: make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}

	tokenSource, err := google.DefaultTokenSource(ctx, storage.ScopeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("while generating tokenSource: %w", err)
	}

	httpClient := &http.Client{
		Transport: &userAgentRoundTripper{
			wrapped: &oauth2.Transport{
				Base:   transport,
				Source: tokenSource,
			},
			UserAgent: userAgent,
		},
		Timeout: 0,
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.WithReadStallTimeout {
		clientOpts = append(clientOpts, experimental.WithReadStallTimeout(&experimental.ReadStallTimeoutConfig{
			Min:              opts.MinDelay,
			TargetPercentile: opts.TargetPercentile,
		}))
	}

	return storage.NewClient(ctx, clientOpts...)
}

func createGrpcClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx, option.WithGRPCDialOption(
		grpc.WithTransportCredentials(insecure.NewCredentials())))
}

func newClient(ctx context.Context, opts *GCSOptions) (*storage.Client, error) {
	if opts == nil {
		opts = &GCSOptions{}
	}

	var client *storage.Client
	var err error
	if opts.Protocol == "grpc" {
		client, err = createGrpcClient(ctx)
	} else {
		client, err = createHTTPClient(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("while creating the storage client: %w", err)
	}

	client.SetRetry(
		storage.WithBackoff(gax.Backoff{
			Max:        maxRetryDuration,
			Multiplier: retryMultiplier,
		}),
		storage.WithPolicy(storage.RetryAlways),
	)
	return client, nil
}

// ParseBucketAndObject splits a GCS URI into bucket name and object path.
// Example input: gs://bucket-name/path/to/file.csv
func ParseBucketAndObject(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", errors.New("invalid GCS URI, must start with 'gs://'")
	}

	parts := strings.SplitN(uri[5:], "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", errors.New("invalid GCS URI, expected format gs://bucket-name/object-path")
	}
	if parts[0] == "" {
		return "", "", errors.New("bucket name cannot be empty")
	}
	return parts[0], parts[1], nil
}

func loadGCS(ctx context.Context, uri string, opts *GCSOptions) (*Table, error) {
	bucket, object, err := ParseBucketAndObject(uri)
	if err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", uri, err)
	}

	client, err := newClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("while creating reader for %s: %w", uri, err)
	}
	defer rc.Close()

	table, err := parse(rc)
	if err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", uri, err)
	}
	return table, nil
}

// UploadArtifacts copies the given local files under the gs:// prefix
// bucketPath, keeping their base names.
func UploadArtifacts(ctx context.Context, bucketPath string, paths []string) error {
	bucket, prefix, err := ParseBucketAndObject(bucketPath)
	if err != nil {
		return fmt.Errorf("while parsing upload path %s: %w", bucketPath, err)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("while creating the storage client: %w", err)
	}
	defer client.Close()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("while reading %s: %w", path, err)
		}

		object := prefix + filepath.Base(path)
		wc := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if _, err := wc.Write(data); err != nil {
			_ = wc.Close()
			return fmt.Errorf("while writing gs://%s/%s: %w", bucket, object, err)
		}
		if err := wc.Close(); err != nil {
			return fmt.Errorf("while closing gs://%s/%s: %w", bucket, object, err)
		}
		log.Infof("uploaded %s to gs://%s/%s", path, bucket, object)
	}
	return nil
}
