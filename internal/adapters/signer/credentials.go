// Package signer produces the CMS signature the authentication service
// expects over a login ticket request.
package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Credentials hold the certificate and private key used for signing.
type Credentials struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
}

// LoadPEM reads a PEM certificate and a PEM private key (PKCS#1, PKCS#8 or SEC 1).
func LoadPEM(certPath, keyPath string) (*Credentials, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("read certificate").Mark(ierr.ErrConfiguration)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("read private key").Mark(ierr.ErrConfiguration)
	}

	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	creds := &Credentials{Certificate: cert, PrivateKey: key}
	if err := creds.check(); err != nil {
		return nil, err
	}
	return creds, nil
}

// LoadPKCS12 reads a PKCS#12 bundle holding the certificate and key.
func LoadPKCS12(path, password string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("read pkcs12 bundle").Mark(ierr.ErrConfiguration)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("decode pkcs12 bundle").
			WithHint("check AUTHORITY_PKCS12_PASSWORD").
			Mark(ierr.ErrConfiguration)
	}

	creds := &Credentials{Certificate: cert, PrivateKey: key}
	if err := creds.check(); err != nil {
		return nil, err
	}
	return creds, nil
}

// ExpiresAt returns the certificate's NotAfter.
func (c *Credentials) ExpiresAt() time.Time {
	return c.Certificate.NotAfter
}

func (c *Credentials) check() error {
	signer, ok := c.PrivateKey.(crypto.Signer)
	if !ok {
		return ierr.NewError("private key cannot sign").Mark(ierr.ErrConfiguration)
	}

	matches := false
	switch pub := signer.Public().(type) {
	case *rsa.PublicKey:
		matches = pub.Equal(c.Certificate.PublicKey)
	case *ecdsa.PublicKey:
		matches = pub.Equal(c.Certificate.PublicKey)
	}
	if !matches {
		return ierr.NewError("private key does not match the certificate").Mark(ierr.ErrConfiguration)
	}
	return nil
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ierr.NewError("no CERTIFICATE block found").Mark(ierr.ErrConfiguration)
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, ierr.WithError(err).WithMessage("parse certificate").Mark(ierr.ErrConfiguration)
		}
		return cert, nil
	}
}

func parsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ierr.NewError("no private key block found").Mark(ierr.ErrConfiguration)
		}

		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, ierr.WithError(err).WithMessage("parse pkcs1 key").Mark(ierr.ErrConfiguration)
			}
			return key, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, ierr.WithError(err).WithMessage("parse pkcs8 key").Mark(ierr.ErrConfiguration)
			}
			return key, nil
		case "EC PRIVATE KEY":
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, ierr.WithError(err).WithMessage("parse ec key").Mark(ierr.ErrConfiguration)
			}
			return key, nil
		case "ENCRYPTED PRIVATE KEY":
			return nil, ierr.NewError("encrypted private keys are not supported").
				WithHint("decrypt the key or use a pkcs12 bundle").
				Mark(ierr.ErrConfiguration)
		}
	}
}
