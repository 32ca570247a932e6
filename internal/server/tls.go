package server

import (
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/logging"
)

// NewTLSConfig loads a certificate pair for serving the bridge over HTTPS.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}, nil
}

// GetTLSInfo returns loggable details of a TLS configuration.
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	info := map[string]interface{}{
		"min_version": tls.VersionName(config.MinVersion),
		"num_certs":   len(config.Certificates),
	}
	if len(config.Certificates) > 0 && config.Certificates[0].Leaf != nil {
		leaf := config.Certificates[0].Leaf
		info["subject"] = leaf.Subject.CommonName
		info["not_after"] = leaf.NotAfter
	}
	return info
}
