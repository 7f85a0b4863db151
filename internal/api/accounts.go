package api

import (
	"net/http"

	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
)

// AccountsHandler serves per-account views of the ledger and manufacturer authorization.
type AccountsHandler struct {
	Engine *ledger.Engine
}

type manufacturerResponse struct {
	Account    model.Account `json:"account"`
	Authorized bool          `json:"authorized"`
	ProductIDs []int64       `json:"product_ids"`
}

type authorizeRequest struct {
	Authorized *bool `json:"authorized" validate:"required"`
}

type holderResponse struct {
	Account    model.Account `json:"account"`
	ProductIDs []int64       `json:"product_ids"`
}

type ledgerResponse struct {
	Owner         model.Account `json:"owner"`
	NextProductID int64         `json:"next_product_id"`
}

// Manufacturer handles GET /api/manufacturers/{account}.
func (h *AccountsHandler) Manufacturer(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, manufacturerResponse{
		Account:    account,
		Authorized: h.Engine.IsAuthorizedManufacturer(account),
		ProductIDs: nonNil(h.Engine.ProductsByManufacturer(account)),
	})
}

// Authorize handles PUT /api/manufacturers/{account}. Only the ledger owner may call it.
func (h *AccountsHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	account, ok := pathAccount(w, r)
	if !ok {
		return
	}

	var req authorizeRequest
	if !bindJSON(w, r, &req) {
		return
	}

	if err := h.Engine.AuthorizeManufacturer(r.Context(), claims.Account, account, *req.Authorized); err != nil {
		ledgerError(w, r, err)
		return
	}

	logger(r).Info().Str("manufacturer", account.String()).Bool("authorized", *req.Authorized).Msg("manufacturer authorization changed")
	jsonResponse(w, http.StatusOK, manufacturerResponse{
		Account:    account,
		Authorized: *req.Authorized,
		ProductIDs: nonNil(h.Engine.ProductsByManufacturer(account)),
	})
}

// HolderProducts handles GET /api/holders/{account}/products.
func (h *AccountsHandler) HolderProducts(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, holderResponse{
		Account:    account,
		ProductIDs: nonNil(h.Engine.ProductsByHolder(account)),
	})
}

// Ledger handles GET /api/ledger.
func (h *AccountsHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, ledgerResponse{
		Owner:         h.Engine.Owner(),
		NextProductID: h.Engine.NextProductID(),
	})
}

// pathAccount parses the {account} path segment.
func pathAccount(w http.ResponseWriter, r *http.Request) (model.Account, bool) {
	raw := r.PathValue("account")
	if err := validate.Var(raw, "eth_addr"); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid account address")
		return "", false
	}
	return model.NormalizeAccount(raw), true
}
