// Package signature classifies a payload against a detached signature using
// the trusted keyring of the installation.
package signature

import (
	"context"
	"net/http"

	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/runner"
	"github.com/tansive/reportformatsrv/pkg/types"
)

var (
	ErrSignature     apperrors.Error = apperrors.New("signature verification error").SetStatusCode(http.StatusInternalServerError)
	ErrVerifierSpawn apperrors.Error = ErrSignature.New("unable to run signature verifier")
	ErrKeyring       apperrors.Error = ErrSignature.New("unable to read keyring")
	ErrTempFile      apperrors.Error = ErrSignature.New("unable to write verification input")
)

// Verifier returns TrustYes for a good signature and TrustNo for a bad one.
// Anything the verifier cannot decide is TrustUnknown with a nil error; only
// failing to run the verifier at all is reported as an error.
type Verifier interface {
	Verify(ctx context.Context, payload, signature []byte) (types.TrustState, apperrors.Error)
}

// New returns the verifier selected by the configuration.
func New(c *config.ConfigParam, r runner.Runner) Verifier {
	if c.Signature.Backend == "openpgp" {
		return NewOpenPGPVerifier(c.GnupgKeyring())
	}
	return NewGpgvVerifier(c.Signature.GpgvPath, c.Signature.GnupgHome, r)
}
