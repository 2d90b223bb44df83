// Package responses renders the JSON envelopes every handler returns.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/types"
)

// WriteSuccess writes data in the success envelope with status 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps err onto its code's status. Client faults keep their own
// message; server faults only ever show the public one. Untyped errors are
// internal.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	serverFault := meta.HTTPStatus >= http.StatusInternalServerError

	apiErr := types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if !serverFault && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		logError(ctx, logg, err, serverFault)
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func logError(ctx context.Context, logg *logger.Logger, err error, serverFault bool) {
	d := pkgerrors.Dump(err)
	fields := map[string]any{
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.PGCode != "" {
		fields["pg_code"] = d.PGCode
		fields["pg_constraint"] = d.PGConstraint
		fields["pg_table"] = d.PGTable
		fields["pg_column"] = d.PGColumn
		fields["pg_detail"] = d.PGDetail
		fields["pg_message"] = d.PGMessage
	}
	ctx = logg.WithFields(ctx, fields)
	if serverFault {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(logg.WithField(ctx, "error", d.TopMessage), "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here is a broken client.
	_ = json.NewEncoder(w).Encode(payload)
}
