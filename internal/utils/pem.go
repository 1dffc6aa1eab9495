package utils

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Helper function that parses a certificate from a raw PEM bytes array.
func ParseCertificateFromPEMBytes(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse certificate from PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %v", err)
	}

	return cert, nil
}

// ParseRevocationList accepts a CRL either PEM encoded or as raw DER.
func ParseRevocationList(raw []byte) (*x509.RevocationList, error) {
	if block, _ := pem.Decode(raw); block != nil {
		if block.Type != "X509 CRL" {
			return nil, fmt.Errorf("unexpected PEM block type '%s'", block.Type)
		}
		raw = block.Bytes
	}

	crl, err := x509.ParseRevocationList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse crl: %v", err)
	}
	return crl, nil
}
