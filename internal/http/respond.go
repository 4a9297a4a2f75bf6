package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/plancart/internal/catalog"
	"github.com/fjod/plancart/internal/coupon"
	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/internal/pricing"
	"github.com/fjod/plancart/internal/repository"
	"github.com/fjod/plancart/internal/service"
	"github.com/fjod/plancart/pkg/circuitbreaker"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxRequestBodySize = 1 << 20
	defaultTimeout     = 30 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Details: details,
	})
}

// decodeJSON reads a bounded JSON body into dst and validates its tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}

// handleError maps service errors onto HTTP statuses.
func handleError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, pricing.ErrPlanNotFound), errors.Is(err, catalog.ErrPlanNotFound):
		status, code = http.StatusNotFound, "plan_not_found"
	case errors.Is(err, repository.ErrCartNotFound):
		status, code = http.StatusNotFound, "cart_not_found"
	case errors.Is(err, domain.ErrItemNotFound):
		status, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, orders.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, coupon.ErrCouponNotFound):
		status, code = http.StatusUnprocessableEntity, "coupon_not_found"
	case errors.Is(err, coupon.ErrCouponExpired):
		status, code = http.StatusUnprocessableEntity, "coupon_expired"
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		status, code = http.StatusUnprocessableEntity, "coupon_usage_limit_reached"
	case errors.Is(err, domain.ErrCouponNotApplicable):
		status, code = http.StatusUnprocessableEntity, "coupon_not_applicable"
	case errors.Is(err, domain.ErrEmptyCart):
		status, code = http.StatusConflict, "empty_cart"
	case errors.Is(err, domain.ErrCheckoutInProgress):
		status, code = http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, domain.ErrIllegalTransition):
		status, code = http.StatusConflict, "illegal_transition"
	case errors.Is(err, service.ErrRetriesExhausted), errors.Is(err, repository.ErrVersionConflict):
		status, code = http.StatusConflict, "version_conflict"
	case errors.Is(err, domain.ErrInvalidRecord), errors.Is(err, service.ErrInvalidOrderID):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, circuitbreaker.ErrOpen):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	respondError(w, status, code, err.Error())
}
