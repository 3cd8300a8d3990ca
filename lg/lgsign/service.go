// Package lgsign signs ledger requests with an external signer capability.
package lgsign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/internal/glog"
	"github.com/gordian-engine/gledger/lg/lgledger"
)

// Signer is the capability that holds key material.
//
// Implementations return errors wrapping [lgledger.ErrSigningUnavailable]
// when the key store cannot be used,
// and [lgledger.ErrUnknownIdentity] when it has no key for identity.
// [github.com/gordian-engine/gledger/gwallet] provides local and remote implementations.
type Signer interface {
	Sign(ctx context.Context, identity string, msg []byte) ([]byte, error)
}

// Service attaches signatures to requests.
type Service struct {
	log    *slog.Logger
	signer Signer
}

func NewService(log *slog.Logger, s Signer) *Service {
	return &Service{log: log, signer: s}
}

// Sign signs req on behalf of identity.
//
// If req has no identifier, identity is used as the identifier.
// The returned SignedRequest does not share memory with req.
func (s *Service) Sign(ctx context.Context, req lgledger.Request, identity string) (lgledger.SignedRequest, error) {
	req = req.Clone()
	if req.Identifier == "" {
		req.Identifier = identity
	}

	sb, err := req.SignBytes()
	if err != nil {
		return lgledger.SignedRequest{}, err
	}

	sig, err := s.signer.Sign(ctx, identity, sb)
	if err != nil {
		switch {
		case errors.Is(err, lgledger.ErrSigningUnavailable),
			errors.Is(err, lgledger.ErrUnknownIdentity),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return lgledger.SignedRequest{}, fmt.Errorf("failed to sign request %s: %w", req.Key(), err)
		default:
			return lgledger.SignedRequest{}, fmt.Errorf(
				"failed to sign request %s: %w: %v", req.Key(), lgledger.ErrSigningUnavailable, err,
			)
		}
	}

	s.log.Debug(
		"Signed request",
		"key", req.Key(),
		"identity", identity,
		"sig", glog.ShortHex(sig),
	)

	return lgledger.SignedRequest{Request: req, Signature: sig}, nil
}

// Verify reports whether signed carries a valid signature by pub.
func Verify(signed lgledger.SignedRequest, pub gcrypto.PubKey) (bool, error) {
	sb, err := signed.SignBytes()
	if err != nil {
		return false, err
	}
	return pub.Verify(sb, signed.Signature), nil
}
