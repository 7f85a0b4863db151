package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sledljivost/internal/imaging"
	"github.com/erazemk/sledljivost/internal/ledger"
	"github.com/erazemk/sledljivost/internal/model"
	"github.com/erazemk/sledljivost/internal/store"
)

// maxBatchLookup caps the ids accepted by one batch verification.
const maxBatchLookup = 100

// ProductsHandler serves product registration, verification and custody transfer.
type ProductsHandler struct {
	Engine *ledger.Engine
	DB     *sqlx.DB
}

type registerProductRequest struct {
	Name             string `json:"name" validate:"required,min=2,max=100"`
	BatchNumber      string `json:"batch_number" validate:"required,min=3,max=50,batch_number"`
	ManufacturerName string `json:"manufacturer_name" validate:"required,min=2,max=100"`
	Quantity         uint32 `json:"quantity" validate:"required,min=1,max=1000000"`
	MfgDate          string `json:"mfg_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate       string `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Category         string `json:"category" validate:"required,min=2,max=50"`
}

type transferRequest struct {
	To       string `json:"to" validate:"required,eth_addr"`
	Location string `json:"location" validate:"required,min=3,max=200"`
}

type batchResponse struct {
	BatchNumber string  `json:"batch_number"`
	ProductIDs  []int64 `json:"product_ids"`
}

// input converts a validated request. Dates were checked by the validator.
func (req registerProductRequest) input() model.ProductInput {
	mfg, _ := time.Parse(dateLayout, req.MfgDate)
	exp, _ := time.Parse(dateLayout, req.ExpiryDate)
	return model.ProductInput{
		Name:             strings.TrimSpace(req.Name),
		BatchNumber:      req.BatchNumber,
		ManufacturerName: strings.TrimSpace(req.ManufacturerName),
		Quantity:         req.Quantity,
		MfgDate:          mfg,
		ExpiryDate:       exp,
		Category:         strings.TrimSpace(req.Category),
	}
}

// Register handles POST /api/products. The caller becomes manufacturer and holder.
func (h *ProductsHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req registerProductRequest
	if !bindJSON(w, r, &req) {
		return
	}

	id, err := h.Engine.RegisterProduct(r.Context(), claims.Account, req.input())
	if err != nil {
		ledgerError(w, r, err)
		return
	}

	logger(r).Info().
		Int64("product_id", id).
		Str("manufacturer", claims.Account.String()).
		Str("batch", req.BatchNumber).
		Msg("product registered")
	jsonResponse(w, http.StatusCreated, h.Engine.VerifyProduct(id))
}

// List handles GET /api/products?ids=1,2,3 (batch verification) and
// GET /api/products?batch=B (products registered under a batch number).
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if batch := strings.TrimSpace(q.Get("batch")); batch != "" {
		jsonResponse(w, http.StatusOK, batchResponse{
			BatchNumber: batch,
			ProductIDs:  nonNil(h.Engine.ProductsByBatch(batch)),
		})
		return
	}

	raw := q.Get("ids")
	if raw == "" {
		jsonError(w, http.StatusBadRequest, "ids or batch query parameter required")
		return
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchLookup {
		jsonError(w, http.StatusBadRequest, "too many ids (max "+strconv.Itoa(maxBatchLookup)+")")
		return
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid product id: "+p)
			return
		}
		ids = append(ids, id)
	}

	jsonResponse(w, http.StatusOK, h.Engine.VerifyProducts(ids))
}

// Get handles GET /api/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	p := h.Engine.VerifyProduct(id)
	if p == nil {
		jsonError(w, http.StatusNotFound, ledger.ErrProductNotFound.Error())
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// History handles GET /api/products/{id}/history. Unknown products have an
// empty history.
func (h *ProductsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, h.Engine.TransferHistory(id))
}

// Transfer handles POST /api/products/{id}/transfers.
func (h *ProductsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !bindJSON(w, r, &req) {
		return
	}

	to := model.NormalizeAccount(req.To)
	location := strings.TrimSpace(req.Location)
	if err := h.Engine.TransferCustody(r.Context(), claims.Account, id, to, location); err != nil {
		ledgerError(w, r, err)
		return
	}

	logger(r).Info().
		Int64("product_id", id).
		Str("from", claims.Account.String()).
		Str("to", to.String()).
		Msg("custody transferred")
	jsonResponse(w, http.StatusOK, h.Engine.VerifyProduct(id))
}

// UploadImage handles PUT /api/products/{id}/image. Only the product's
// manufacturer may set its label image.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	id, ok := productID(w, r)
	if !ok {
		return
	}

	p := h.Engine.VerifyProduct(id)
	if p == nil {
		jsonError(w, http.StatusNotFound, ledger.ErrProductNotFound.Error())
		return
	}
	if p.Manufacturer != claims.Account {
		jsonError(w, http.StatusForbidden, "only the manufacturer can set the label image")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	label, err := imaging.Normalize(file)
	if errors.Is(err, imaging.ErrTooLarge) {
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetProductImage(r.Context(), h.DB, id, label.Data, label.MIME); err != nil {
		logger(r).Error().Err(err).Int64("product_id", id).Msg("failed to save image")
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"mime":    label.MIME,
		"width":   label.Width,
		"height":  label.Height,
	})
}

// GetImage handles GET /api/products/{id}/image.
func (h *ProductsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	data, mime, err := store.GetProductImage(r.Context(), h.DB, id)
	if err != nil {
		logger(r).Error().Err(err).Int64("product_id", id).Msg("failed to get image")
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
