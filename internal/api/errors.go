package api

import (
	"errors"
	"net/http"

	"github.com/erazemk/sledljivost/internal/ledger"
)

// ledgerError maps an engine error to an HTTP response. Unknown errors are
// logged and reported as 500.
func ledgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrProductNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrNotAuthorizedManufacturer),
		errors.Is(err, ledger.ErrNotCurrentHolder),
		errors.Is(err, ledger.ErrOnlyOwner):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrProductAlreadyExists):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidTransfer):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		logger(r).Error().Err(err).Str("path", r.URL.Path).Msg("ledger operation failed")
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
