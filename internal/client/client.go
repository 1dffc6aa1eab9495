// client package provides a client context for invoking co2 exporter endpoints.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"co2exporter/v0/internal/logger"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

const co2MetricName = "co2_ppm"

type ClientHttpContext struct {
	HttpClient     *http.Client
	serverEndpoint string
	scheme         string
	logger         *zap.Logger
}

type ClientHttpOptions struct {
	// Constructed host:port server endpoint
	ServerEndpoint string
	Logger         *zap.Logger
}

type ClientHttpTLSOptions struct {
	ClientHttpOptions
	// Client certificate and key are optional, unless the server requires
	// client authentication.
	ClientCertificatePath string
	ClientKeyPath         string
	TrustedCaPath         string
}

// createTlsTransport is a private helper function which wraps an HTTP transport
// layer with TLS, give the credentials used.
// This returns an HTTP Transport instance along with an error reflecting the failure
// state.
func createTlsTransport(opt ClientHttpTLSOptions, log *zap.Logger) (*http.Transport, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	// Load client's key pair.
	if opt.ClientCertificatePath != "" || opt.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(opt.ClientCertificatePath, opt.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed creating x509 keypair from client cert file %s and client key file %s: %v", opt.ClientCertificatePath, opt.ClientKeyPath, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	// Load the CA that authorized the server's certs.
	if opt.TrustedCaPath != "" {
		log.Debug("using trusted CA certificate", zap.String("path", opt.TrustedCaPath))
		caCrtContent, err := os.ReadFile(opt.TrustedCaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert %s: %v", opt.TrustedCaPath, err)
		}

		// Create a CA certificate pool, in order for the certificate to be
		// validated.
		caCrtPool := x509.NewCertPool()
		if !caCrtPool.AppendCertsFromPEM(caCrtContent) {
			return nil, fmt.Errorf("no certificates found in CA cert %s", opt.TrustedCaPath)
		}
		tlsConfig.RootCAs = caCrtPool
	}

	return &http.Transport{TLSClientConfig: tlsConfig}, nil
}

// NewClientContext creates an insecure Client HTTP Context instance.
// This returns an http client instance along with an error reflecting the failure state.
func NewClientContext(opt ClientHttpOptions) (*ClientHttpContext, error) {
	client := http.Client{
		Timeout: 5 * time.Second,
	}

	return &ClientHttpContext{
		HttpClient:     &client,
		serverEndpoint: opt.ServerEndpoint,
		scheme:         "http",
		logger:         logger.OrNop(opt.Logger),
	}, nil
}

// NewClientContextWithTLS creates a Client HTTP Context instance, wrapped in TLS.
// This returns an http client instance along with an error reflecting the failure state.
func NewClientContextWithTLS(opt ClientHttpTLSOptions) (*ClientHttpContext, error) {
	log := logger.OrNop(opt.Logger)

	// Wrap TLS around the HTTP Transport.
	httpTransport, err := createTlsTransport(opt, log)
	if err != nil {
		return nil, fmt.Errorf("failed client context creation: %v", err)
	}

	client := &http.Client{
		Transport: httpTransport,
		Timeout:   5 * time.Second,
	}

	return &ClientHttpContext{
		HttpClient:     client,
		serverEndpoint: opt.ServerEndpoint,
		scheme:         "https",
		logger:         log,
	}, nil
}

// Invoke is a Client HTTP Context function which invokes the exporter endpoint,
// handling HTTP/HTTPS, URI construction, and arguments.
// This returns the response body along with an error instance reflecting the
// failure state.
func (c *ClientHttpContext) Invoke(ctx context.Context, apiEndpoint string, httpMethod string, requestBody []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s://%s/%s", c.scheme, c.serverEndpoint, apiEndpoint)
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to construct http request context: %v", err)
	}

	c.logger.Debug("invoking a request", zap.String("endpoint", endpoint))
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s request with server: %w", httpMethod, err)
	}
	defer resp.Body.Close()

	resBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return resBody, fmt.Errorf("http request resulted in a non-OK response code: %d", resp.StatusCode)
	}

	return resBody, nil
}

// Scrape reads /metrics and returns the CO2 gauge value.
// This returns the ppm value along with an error instance reflecting the
// failure state.
func (c *ClientHttpContext) Scrape(ctx context.Context) (float64, error) {
	resBody, err := c.Invoke(ctx, "metrics", http.MethodGet, nil)
	if err != nil {
		return 0, fmt.Errorf("scrape failed: %w (%s)", err, bytes.TrimSpace(resBody))
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewReader(resBody))
	if err != nil {
		return 0, fmt.Errorf("failed to parse exposition: %v", err)
	}

	return gaugeValue(families[co2MetricName])
}

func gaugeValue(mf *dto.MetricFamily) (float64, error) {
	if mf == nil {
		return 0, fmt.Errorf("metric %s not found", co2MetricName)
	}
	if mf.GetType() != dto.MetricType_GAUGE {
		return 0, fmt.Errorf("metric %s is a %s, not a gauge", mf.GetName(), mf.GetType())
	}
	if len(mf.GetMetric()) != 1 {
		return 0, fmt.Errorf("metric %s has %d samples, expected 1", mf.GetName(), len(mf.GetMetric()))
	}
	return mf.GetMetric()[0].GetGauge().GetValue(), nil
}
