package client

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

const exposition = "# HELP co2_ppm CO2 concentration [ppm]\n# TYPE co2_ppm gauge\nco2_ppm 742\n"

func exporterStub() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exposition))
	})
	return mux
}

func TestInvokeAndScrape(t *testing.T) {
	srv := httptest.NewServer(exporterStub())
	defer srv.Close()

	c, err := NewClientContext(ClientHttpOptions{
		ServerEndpoint: strings.TrimPrefix(srv.URL, "http://"),
		Logger:         zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatal(err)
	}

	body, err := c.Invoke(context.Background(), "ping", http.MethodGet, nil)
	if err != nil || string(body) != "pong" {
		t.Fatalf("ping = %q, %v", body, err)
	}

	ppm, err := c.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if ppm != 742 {
		t.Fatalf("ppm = %v, want 742", ppm)
	}
}

func TestScrapeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "communication timeout", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewClientContext(ClientHttpOptions{ServerEndpoint: strings.TrimPrefix(srv.URL, "http://")})
	_, err := c.Scrape(context.Background())
	if err == nil || !strings.Contains(err.Error(), "communication timeout") {
		t.Fatalf("Scrape err = %v", err)
	}
}

func TestScrapeMissingOrWrongMetric(t *testing.T) {
	for name, body := range map[string]string{
		"missing": "# TYPE other gauge\nother 1\n",
		"counter": "# TYPE co2_ppm counter\nco2_ppm 1\n",
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		c, _ := NewClientContext(ClientHttpOptions{ServerEndpoint: strings.TrimPrefix(srv.URL, "http://")})
		if _, err := c.Scrape(context.Background()); err == nil {
			t.Errorf("%s: expected an error", name)
		}
		srv.Close()
	}
}

func TestClientContextWithTLS(t *testing.T) {
	srv := httptest.NewTLSServer(exporterStub())
	defer srv.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caPath, caPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := NewClientContextWithTLS(ClientHttpTLSOptions{
		ClientHttpOptions: ClientHttpOptions{
			ServerEndpoint: strings.TrimPrefix(srv.URL, "https://"),
			Logger:         zaptest.NewLogger(t),
		},
		TrustedCaPath: caPath,
	})
	if err != nil {
		t.Fatal(err)
	}

	ppm, err := c.Scrape(context.Background())
	if err != nil || ppm != 742 {
		t.Fatalf("Scrape = %v, %v", ppm, err)
	}
}

func TestClientContextWithTLSBadFiles(t *testing.T) {
	_, err := NewClientContextWithTLS(ClientHttpTLSOptions{
		ClientCertificatePath: filepath.Join(t.TempDir(), "missing.pem"),
		ClientKeyPath:         filepath.Join(t.TempDir(), "missing.key"),
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}
