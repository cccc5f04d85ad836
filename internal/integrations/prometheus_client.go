// Package integrations provides clients for the metrics backend and the cluster node inventory.
package integrations

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultConnectTimeout bounds connection establishment to the metrics backend
	DefaultConnectTimeout = 10 * time.Second

	queryEndpoint = "/api/v1/query"

	serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token" //#nosec G101 -- file path, not a credential
)

// PrometheusClientConfig holds the settings fixed when the client is built
type PrometheusClientConfig struct {
	// BaseURL is the backend root, e.g. http://prometheus:9090
	BaseURL string

	// ConnectTimeout bounds dialing and TLS handshake; zero means DefaultConnectTimeout
	ConnectTimeout time.Duration

	// BearerTokenFile is read on every request; empty falls back to the in-cluster service account token
	BearerTokenFile string

	// InsecureSkipVerify disables TLS verification for self-signed cluster Prometheus
	InsecureSkipVerify bool
}

// PrometheusClient executes instant queries against the Prometheus HTTP API and
// returns the raw response body. It keeps no per-call state and is safe for
// concurrent use.
type PrometheusClient struct {
	baseURL string
	client  api.Client
	rt      *http.Transport
	log     *logrus.Logger
}

// NewPrometheusClient creates a new Prometheus query client
func NewPrometheusClient(cfg PrometheusClientConfig, log *logrus.Logger) (*PrometheusClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("prometheus base URL is required")
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //#nosec G402 -- opt-in for self-signed certs in OpenShift clusters
		},
	}

	tokenFile := cfg.BearerTokenFile
	if tokenFile == "" {
		tokenFile = serviceAccountTokenPath
	}

	client, err := api.NewClient(api.Config{
		Address: strings.TrimRight(cfg.BaseURL, "/"),
		RoundTripper: &bearerAuthRoundTripper{
			parent:    transport,
			tokenFile: tokenFile,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}

	return &PrometheusClient{
		baseURL: cfg.BaseURL,
		client:  client,
		rt:      transport,
		log:     log,
	}, nil
}

// Close releases resources held by the client
func (c *PrometheusClient) Close() {
	if c != nil && c.rt != nil {
		c.rt.CloseIdleConnections()
	}
}

// IsAvailable returns true if the Prometheus client is configured
func (c *PrometheusClient) IsAvailable() bool {
	return c != nil && c.baseURL != ""
}

// BaseURL returns the configured backend root
func (c *PrometheusClient) BaseURL() string {
	return c.baseURL
}

// Execute sends a single GET to /api/v1/query and returns the body of a 200 response.
// Any other outcome is an *ExecutionError; there are no retries.
func (c *PrometheusClient) Execute(ctx context.Context, query string) (string, error) {
	reqURL := c.client.URL(queryEndpoint, nil)

	params := url.Values{}
	params.Set("query", query)
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), http.NoBody)
	if err != nil {
		return "", &ExecutionError{Query: query, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, body, err := c.client.Do(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		c.log.WithFields(logrus.Fields{
			"query":    query,
			"duration": duration.Milliseconds(),
		}).WithError(err).Debug("Prometheus request failed")
		return "", &ExecutionError{Query: query, Err: err}
	}

	c.log.WithFields(logrus.Fields{
		"query":    query,
		"status":   resp.StatusCode,
		"duration": duration.Milliseconds(),
		"bytes":    len(body),
	}).Debug("Prometheus request completed")

	if resp.StatusCode != http.StatusOK {
		return "", &ExecutionError{
			Query:      query,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	return string(body), nil
}

// bearerAuthRoundTripper attaches a bearer token read from tokenFile when one is present
type bearerAuthRoundTripper struct {
	parent    http.RoundTripper
	tokenFile string
}

func (rt *bearerAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if token := readTokenFile(rt.tokenFile); token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	parent := rt.parent
	if parent == nil {
		parent = http.DefaultTransport
	}
	return parent.RoundTrip(req)
}

// readTokenFile returns the trimmed token, or empty when not running in-cluster
func readTokenFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path) //#nosec G304 -- operator-configured token path
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
