package trust

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/signature"
	"github.com/tansive/reportformatsrv/pkg/types"
)

var (
	ErrTrust            apperrors.Error = apperrors.New("trust verification failed").SetStatusCode(http.StatusInternalServerError)
	ErrFormatNotFound   apperrors.Error = ErrTrust.New("report format not found").SetStatusCode(http.StatusNotFound)
	ErrPermissionDenied apperrors.Error = ErrTrust.New("permission denied").SetStatusCode(http.StatusForbidden)
	ErrBundleUnreadable apperrors.Error = ErrTrust.New("unable to read report format files")
)

var verificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reportformats_trust_verifications_total",
		Help: "Signature verifications of report formats by outcome",
	},
	[]string{"result"},
)

// Engine verifies stored formats and records their trust state.
type Engine struct {
	store    db.Store
	assets   *assets.Store
	verifier signature.Verifier
	authz    acl.Authorizer
}

func NewEngine(store db.Store, a *assets.Store, v signature.Verifier, authz acl.Authorizer) *Engine {
	return &Engine{store: store, assets: a, verifier: v, authz: authz}
}

// Check verifies sig against the canonical string of b.
func (e *Engine) Check(ctx context.Context, b Bundle, sig []byte) (types.TrustState, apperrors.Error) {
	state, err := e.verifier.Verify(ctx, CanonicalString(b), sig)
	if err != nil {
		verificationsTotal.WithLabelValues("error").Inc()
		return types.TrustUnknown, err
	}
	verificationsTotal.WithLabelValues(state.String()).Inc()
	return state, nil
}

// Verify re-checks the signature of the active format id and stores the
// result. A format without any signature keeps its trust state and
// TrustUnknown is returned.
func (e *Engine) Verify(ctx context.Context, p types.Principal, id string) (types.TrustState, apperrors.Error) {
	var result types.TrustState
	err := e.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		f, err := tx.Formats().Get(ctx, id)
		if err != nil {
			if err.Is(dberror.ErrNotFound) {
				return ErrFormatNotFound.Msg("report format " + id + " not found")
			}
			return err
		}
		if !e.authz.May(ctx, p, acl.OpVerify, f) {
			return ErrPermissionDenied
		}

		found, ferr := e.assets.FindSignature(f.UUID)
		if ferr != nil {
			log.Ctx(ctx).Error().Err(ferr).Str("report_format", id).Msg("failed to read signature")
			return ErrTrust.MsgErr("unable to read signature", ferr)
		}
		sig := []byte(f.Signature)
		canonicalID := f.UUID
		if found != nil {
			sig = found.Content
			if found.CanonicalID != "" {
				canonicalID = found.CanonicalID
			}
		}
		if len(sig) == 0 {
			log.Ctx(ctx).Info().Str("report_format", id).Msg("no signature for report format")
			verificationsTotal.WithLabelValues("unsigned").Inc()
			result = types.TrustUnknown
			return nil
		}

		files, ferr := assets.ReadFiles(e.assets.FormatDir(f))
		if ferr != nil {
			log.Ctx(ctx).Error().Err(ferr).Str("report_format", id).Msg("failed to read report format files")
			return ErrBundleUnreadable.Err(ferr)
		}
		params, err := tx.Params().List(ctx, f.RowID, false)
		if err != nil {
			return err
		}

		state, err := e.Check(ctx, Bundle{
			ID:          canonicalID,
			Extension:   f.Extension,
			ContentType: f.ContentType,
			Predefined:  f.Predefined,
			Files:       files,
			Params:      params,
		}, sig)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("failed to verify report format")
			return err
		}
		if err := tx.Formats().UpdateTrust(ctx, f.RowID, state, time.Now().Unix()); err != nil {
			return err
		}
		result = state
		return nil
	})
	if err != nil {
		return types.TrustUnknown, err
	}
	return result, nil
}
