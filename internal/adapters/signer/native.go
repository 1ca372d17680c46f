package signer

import (
	"context"

	"github.com/hhrutter/pkcs7"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
)

// Native signs in process.
type Native struct {
	creds *Credentials
}

var _ ticket.Signer = (*Native)(nil)

// NewNative creates an in-process signer.
func NewNative(creds *Credentials) *Native {
	return &Native{creds: creds}
}

// Sign returns a DER encoded SignedData that embeds content.
func (s *Native) Sign(ctx context.Context, content []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("init signed data").Mark(ierr.ErrConfiguration)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(s.creds.Certificate, s.creds.PrivateKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, ierr.WithError(err).WithMessage("add signer").Mark(ierr.ErrConfiguration)
	}

	der, err := sd.Finish()
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("finish signed data").Mark(ierr.ErrConfiguration)
	}
	return der, nil
}
