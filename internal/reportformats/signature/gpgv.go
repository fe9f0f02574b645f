package signature

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/runner"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// gpgv exit status for a signature that does not verify.
const gpgvBadSignature = 1

// GpgvVerifier runs the external gpgv tool against <home>/pubring.gpg.
type GpgvVerifier struct {
	path   string
	home   string
	runner runner.Runner
}

func NewGpgvVerifier(path, home string, r runner.Runner) *GpgvVerifier {
	if path == "" {
		path = "gpgv"
	}
	return &GpgvVerifier{path: path, home: home, runner: r}
}

func (v *GpgvVerifier) Verify(ctx context.Context, payload, signature []byte) (types.TrustState, apperrors.Error) {
	dir, err := os.MkdirTemp("", "rf-verify-")
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to create verification directory")
		return types.TrustUnknown, ErrTempFile.Err(err)
	}
	defer os.RemoveAll(dir)

	sigFile := filepath.Join(dir, "signature.asc")
	payloadFile := filepath.Join(dir, "payload")
	if err := os.WriteFile(sigFile, signature, 0600); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to write signature file")
		return types.TrustUnknown, ErrTempFile.Err(err)
	}
	if err := os.WriteFile(payloadFile, payload, 0600); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to write payload file")
		return types.TrustUnknown, ErrTempFile.Err(err)
	}

	res, rerr := v.runner.Run(ctx, runner.Command{
		Path: v.path,
		Args: []string{
			"--homedir", v.home,
			"--quiet",
			"--keyring", filepath.Join(v.home, "pubring.gpg"),
			"--",
			sigFile,
			payloadFile,
		},
	})
	if rerr != nil {
		return types.TrustUnknown, ErrVerifierSpawn.Err(rerr)
	}
	switch res.ExitCode {
	case 0:
		return types.TrustYes, nil
	case gpgvBadSignature:
		return types.TrustNo, nil
	}
	log.Ctx(ctx).Warn().Int("exit_code", res.ExitCode).Msg("signature verifier gave no verdict")
	return types.TrustUnknown, nil
}
