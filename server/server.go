package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"co2exporter/v0/internal/logger"
	"co2exporter/v0/internal/server_crl"
	"co2exporter/v0/internal/utils"
	"co2exporter/v0/pkg/co2"
	"co2exporter/v0/server/middleware"
	"co2exporter/v0/server/route"
	"co2exporter/v0/server/route/metrics"
	fileio "co2exporter/v0/utils/fileIO"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type ServerOpts struct {
	ServerName          string
	ServerCertificate   string
	ServerKey           string
	TrustedCASDirectory string
	CACrl               string
	CRLReloadInterval   time.Duration
	ListenAddrs         []string

	// OnReady is called with the bound addresses once every listener is up.
	OnReady func(addrs []net.Addr)
	Logger  *zap.Logger
}

func createPeerCertificateVerification(trustedCerts []*x509.Certificate, cache *server_crl.CRLCache, log *zap.Logger) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		// Verify that the CRL content has not been tampered with, by checking
		// its signature against the trusted CAs.
		issuer, err := cache.Issuer(trustedCerts)
		if err != nil {
			return err
		}

		// Check if the peer's certificate is among the revoked ones registered
		// within the CRL.
		for _, rawPeerCert := range rawCerts {
			peerCrt, err := x509.ParseCertificate(rawPeerCert)
			if err != nil {
				return fmt.Errorf("failed to parse peer's certificate: %v", err)
			}

			if cache.IsRevoked(peerCrt) {
				return fmt.Errorf("peer certificate[%s] was revoked by %s", peerCrt.Subject, peerCrt.Issuer)
			}
			log.Debug("CRL verified peer", zap.Stringer("peer", peerCrt.Subject), zap.Stringer("issuer", issuer.Subject))
		}

		return nil
	}
}

func loadTrustedCAs(dir string) ([]*x509.Certificate, error) {
	trustedCaFiles, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted ca directory '%s': %v", dir, err)
	}

	trustedCerts := []*x509.Certificate{}
	for _, caFile := range trustedCaFiles {
		path := filepath.Join(dir, caFile.Name())
		if !fileio.FileExists(path) {
			continue
		}
		caCrtContent, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read the content of CA %s: %v", path, err)
		}
		caCrt, err := utils.ParseCertificateFromPEMBytes(caCrtContent)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %s from PEM bytes: %v", path, err)
		}
		trustedCerts = append(trustedCerts, caCrt)
	}
	if len(trustedCerts) == 0 {
		return nil, fmt.Errorf("no trusted certificates found in '%s'", dir)
	}
	return trustedCerts, nil
}

// createTLSConfig returns nil when TLS is not configured. A CRL, when given,
// is kept up to date until ctx is done.
func createTLSConfig(ctx context.Context, opts *ServerOpts, log *zap.Logger) (*tls.Config, error) {
	if opts.ServerCertificate == "" && opts.ServerKey == "" {
		return nil, nil
	}

	// Check if the server's certificate & key exists.
	if !fileio.FileExists(opts.ServerCertificate) {
		return nil, fmt.Errorf("server certificate '%s' does not exist", opts.ServerCertificate)
	}
	if !fileio.FileExists(opts.ServerKey) {
		return nil, fmt.Errorf("server key '%s' does not exist", opts.ServerKey)
	}
	keyPair, err := tls.LoadX509KeyPair(opts.ServerCertificate, opts.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %v", err)
	}

	tlsConfig := &tls.Config{
		ServerName:   opts.ServerName,
		Certificates: []tls.Certificate{keyPair},
		MinVersion:   tls.VersionTLS12,
	}
	if opts.TrustedCASDirectory == "" {
		return tlsConfig, nil
	}

	trustedCerts, err := loadTrustedCAs(opts.TrustedCASDirectory)
	if err != nil {
		return nil, err
	}
	caCertPool := x509.NewCertPool()
	for _, trustedCert := range trustedCerts {
		caCertPool.AddCert(trustedCert)
	}

	// Require and verify the client's cert against it being signed by the CA.
	tlsConfig.ClientCAs = caCertPool
	tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert

	if opts.CACrl != "" {
		log.Info("loading CA's Certificate Revocation List", zap.String("path", opts.CACrl))
		cache, err := server_crl.NewCRLCache(opts.CACrl, log)
		if err != nil {
			return nil, err
		}
		go cache.Watch(ctx, opts.CRLReloadInterval)
		tlsConfig.VerifyPeerCertificate = createPeerCertificateVerification(trustedCerts, cache, log)
	}

	return tlsConfig, nil
}

// NewRouter builds the exporter's routes around rx.
func NewRouter(rx *co2.Receiver, log *zap.Logger) *mux.Router {
	log = logger.OrNop(log)
	router := mux.NewRouter()

	// Add middleware.
	router.Use(middleware.BasicLogger(log))

	// Add server root endpoints.
	route.InitRootRoute(router, metrics.NewHandler(rx, log))
	return router
}

// Run serves the exporter on every address in opts.ListenAddrs until ctx is
// done. All addresses are bound before any is served, so a bad address fails
// the whole call.
func Run(ctx context.Context, opts *ServerOpts, rx *co2.Receiver) error {
	log := logger.OrNop(opts.Logger)
	if len(opts.ListenAddrs) == 0 {
		return fmt.Errorf("no listen addresses configured")
	}

	tlsConfig, err := createTLSConfig(ctx, opts, log)
	if err != nil {
		return err
	}

	listeners := make([]net.Listener, 0, len(opts.ListenAddrs))
	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}
	for _, addr := range opts.ListenAddrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			closeAll()
			return fmt.Errorf("failed to listen on %s: %v", addr, err)
		}
		if tlsConfig != nil {
			l = tls.NewListener(l, tlsConfig)
		}
		listeners = append(listeners, l)
	}

	server := &http.Server{
		Handler:      NewRouter(rx, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	addrs := make([]net.Addr, 0, len(listeners))
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		addrs = append(addrs, l.Addr())
		log.Info("listening", zap.Stringer("addr", l.Addr()), zap.Bool("tls", tlsConfig != nil))
		g.Go(func() error {
			if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve on %s: %v", l.Addr(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if opts.OnReady != nil {
		opts.OnReady(addrs)
	}

	return g.Wait()
}
