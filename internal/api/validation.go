package api

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// dateLayout is the format of manufacturing and expiry dates in requests.
const dateLayout = "2006-01-02"

var batchNumberPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("batch_number", func(fl validator.FieldLevel) bool {
		return batchNumberPattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateProductDates, registerProductRequest{})
	return v
}

func validateProductDates(sl validator.StructLevel) {
	req := sl.Current().Interface().(registerProductRequest)
	mfg, err1 := time.Parse(dateLayout, req.MfgDate)
	exp, err2 := time.Parse(dateLayout, req.ExpiryDate)
	if err1 != nil || err2 != nil {
		// Reported by the datetime tag.
		return
	}
	if !exp.After(mfg) {
		sl.ReportError(req.ExpiryDate, "expiry_date", "ExpiryDate", "after_mfg_date", "")
	}
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

type validationResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields"`
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{
			Field:   e.Field(),
			Tag:     e.Tag(),
			Message: fieldMessage(e),
		})
	}
	return out
}

func fieldMessage(e validator.FieldError) string {
	unit := ""
	if e.Kind() == reflect.String {
		unit = " characters"
	}
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param() + unit
	case "max":
		return e.Field() + " must be at most " + e.Param() + unit
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "eth_addr":
		return e.Field() + " must be a 0x-prefixed 40 digit hex address"
	case "datetime":
		return e.Field() + " must be a date in YYYY-MM-DD format"
	case "batch_number":
		return e.Field() + " may only contain A-Z, 0-9 and hyphens"
	case "after_mfg_date":
		return "expiry_date must be after mfg_date"
	default:
		return e.Field() + " is invalid"
	}
}

// bindJSON decodes and validates a request body. On failure it writes a 400
// response and returns false.
func bindJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r, target); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		jsonResponse(w, http.StatusBadRequest, validationResponse{
			Error:  "validation failed",
			Fields: fieldErrors(err),
		})
		return false
	}
	return true
}
