package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const (
	defaultVersion  = "latest"
	metricNamespace = "github.com/mobilia/backoffice/internal/platform/secrets"
)

var retryableCodes = []codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret://name[?version=N&project=P] references against Google Secret Manager.
// Values are cached for the lifetime of the Fetcher; transient failures are retried with backoff.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger
	backoff    gax.Backoff

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter

	mu    sync.Mutex
	cache map[string]string
}

type fetcherConfig struct {
	client     secretManagerClient
	clientOpts []option.ClientOption
	logger     *zap.Logger
	backoff    gax.Backoff
}

// Option customises a Fetcher.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithSecretManagerClient injects a client, mainly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithBackoff overrides the retry backoff.
func WithBackoff(backoff gax.Backoff) Option {
	return func(cfg *fetcherConfig) { cfg.backoff = backoff }
}

// NewFetcher creates a Fetcher for the given default project.
func NewFetcher(ctx context.Context, projectID string, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger: zap.NewNop(),
		backoff: gax.Backoff{
			Initial:    100 * time.Millisecond,
			Max:        2 * time.Second,
			Multiplier: 2,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	// Instruments report through the global meter provider, a no-op until one is installed.
	meter := otel.GetMeterProvider().Meter(metricNamespace)
	latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of Secret Manager accesses"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}
	cacheHits, err := meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of secrets served from the cache"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	}

	f := &Fetcher{
		client:    cfg.client,
		projectID: strings.TrimSpace(projectID),
		logger:    cfg.logger,
		cache:     make(map[string]string),
		backoff:   cfg.backoff,
		latency:   latency,
		cacheHits: cacheHits,
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the client when the Fetcher created it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the payload of the referenced secret version.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	project := parsed.project
	if project == "" {
		project = f.projectID
	}
	if project == "" {
		return "", fmt.Errorf("secrets: no project for %s", parsed.secret)
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.secret, parsed.version)

	f.mu.Lock()
	value, ok := f.cache[name]
	f.mu.Unlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", parsed.secret)))
		}
		return value, nil
	}

	started := time.Now()
	var resp *secretmanagerpb.AccessSecretVersionResponse
	err = gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		var callErr error
		resp, callErr = f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		return callErr
	}, gax.WithRetry(func() gax.Retryer { return gax.OnCodes(retryableCodes, f.backoff) }))
	f.recordLatency(ctx, time.Since(started), err)
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", parsed.secret, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", parsed.secret)
	}

	value = string(resp.GetPayload().GetData())
	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()
	f.logger.Debug("secret resolved", zap.String("secret", parsed.secret), zap.String("version", parsed.version))
	return value, nil
}

type reference struct {
	secret  string
	version string
	project string
}

func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return reference{}, errors.New("secrets: reference must use the secret:// scheme")
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return reference{}, fmt.Errorf("secrets: invalid secret name %q", name)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = defaultVersion
	}
	return reference{
		secret:  name,
		version: version,
		project: strings.TrimSpace(u.Query().Get("project")),
	}, nil
}

func (f *Fetcher) recordLatency(ctx context.Context, d time.Duration, err error) {
	if f.latency == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attribute.String("outcome", outcome)))
}
