// Package httputil maps domain errors onto the JSON error envelope used by
// every handler in this service.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "aidledger/pkg/domain-errors"
)

// statusByCode maps domain error codes to HTTP statuses. Codes absent from
// the map are treated as internal errors.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeNotFound:             http.StatusNotFound,
	dErrors.CodeInvalidAmount:        http.StatusBadRequest,
	dErrors.CodeInvalidLabel:         http.StatusBadRequest,
	dErrors.CodeInvalidState:         http.StatusConflict,
	dErrors.CodeUnauthorized:         http.StatusForbidden,
	dErrors.CodeUnderpayment:         http.StatusPaymentRequired,
	dErrors.CodeValueExceedsDonation: http.StatusUnprocessableEntity,
	dErrors.CodeArithmeticOverflow:   http.StatusUnprocessableEntity,
	dErrors.CodeInsufficientFunds:    http.StatusPaymentRequired,
	dErrors.CodeBadRequest:           http.StatusBadRequest,
	dErrors.CodeConflict:             http.StatusConflict,
	dErrors.CodeInternal:             http.StatusInternalServerError,
}

// WriteError writes a domain error as a JSON envelope. Internal errors omit
// the description so implementation details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		code = dErrors.CodeInternal
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) && de.Message != "" {
			body["error_description"] = de.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
