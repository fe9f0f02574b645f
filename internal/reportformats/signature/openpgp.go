package signature

import (
	"bytes"
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/pkg/types"
	"golang.org/x/crypto/openpgp"
	pgperrors "golang.org/x/crypto/openpgp/errors"
)

// OpenPGPVerifier checks signatures in process against the same keyring the
// gpgv backend uses. The keyring is read on every call so that key updates
// take effect without a restart.
type OpenPGPVerifier struct {
	keyring string
}

func NewOpenPGPVerifier(keyring string) *OpenPGPVerifier {
	return &OpenPGPVerifier{keyring: keyring}
}

func (v *OpenPGPVerifier) readKeyring() (openpgp.EntityList, error) {
	data, err := os.ReadFile(v.keyring)
	if err != nil {
		return nil, err
	}
	if isArmored(data) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

func (v *OpenPGPVerifier) Verify(ctx context.Context, payload, signature []byte) (types.TrustState, apperrors.Error) {
	keyring, err := v.readKeyring()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("keyring", v.keyring).Msg("failed to read keyring")
		return types.TrustUnknown, ErrKeyring.Err(err)
	}

	if isArmored(signature) {
		_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(signature))
	} else {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(payload), bytes.NewReader(signature))
	}
	if err == nil {
		return types.TrustYes, nil
	}

	var sigErr pgperrors.SignatureError
	if errors.Is(err, pgperrors.ErrUnknownIssuer) || errors.As(err, &sigErr) {
		return types.TrustNo, nil
	}
	log.Ctx(ctx).Warn().Err(err).Msg("signature could not be checked")
	return types.TrustUnknown, nil
}

func isArmored(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(b), []byte("-----BEGIN PGP"))
}
