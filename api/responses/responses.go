package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/agroconexion/storefront-sync/internal/i18n"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/types"
)

var keyByCode = map[pkgerrors.Code]string{
	pkgerrors.CodeValidation:       i18n.KeyValidation,
	pkgerrors.CodeUnauthorized:     i18n.KeyUnauthorized,
	pkgerrors.CodeNotFound:         i18n.KeyNotFound,
	pkgerrors.CodeConflict:         i18n.KeyLineBusy,
	pkgerrors.CodeTransient:        i18n.KeyTransient,
	pkgerrors.CodeMalformedPayload: i18n.KeyMalformed,
	pkgerrors.CodeInternal:         i18n.KeyInternal,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteSuccessMessage adds the localized feedback message for key.
func WriteSuccessMessage(ctx context.Context, w http.ResponseWriter, status int, data any, key string) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data, Message: Localize(ctx, key, "")})
}

// Localize translates key with the locale in ctx. Without a locale it returns
// fallback, or the key itself when fallback is empty.
func Localize(ctx context.Context, key, fallback string) string {
	tr, lang := i18n.LocaleFromContext(ctx)
	if tr == nil || key == "" {
		if fallback != "" {
			return fallback
		}
		return key
	}
	return tr.Translate(key, lang)
}

// WriteError writes err using the message registered for its code.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	WriteErrorKey(ctx, logg, w, err, "")
}

// WriteErrorKey writes err with the localized message for key. An empty key
// falls back to the message of the error code.
func WriteErrorKey(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error, key string) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	code := pkgerrors.CodeOf(err)
	if typed == nil {
		typed = pkgerrors.Wrap(code, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(code)

	msg := meta.PublicMessage
	switch code {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}
	if key == "" {
		key = keyByCode[code]
	}
	msg = Localize(ctx, key, msg)

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(code),
			Message: msg,
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		dump := pkgerrors.Dump(err)

		fields := map[string]any{
			"error":       dump.TopMessage,
			"error_code":  dump.Code,
			"error_chain": dump.Chain,
			"retryable":   dump.Retryable,
		}
		if dump.HTTPStatus != 0 {
			fields["backend_status"] = dump.HTTPStatus
		}

		ctx = logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
