package donation

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/backend-giving/internal/common"
	"github.com/noah-isme/backend-giving/internal/links"
	"github.com/noah-isme/backend-giving/internal/lock"
	"github.com/noah-isme/backend-giving/internal/payment"
)

// toAppError maps domain and provider failures onto the API error envelope.
func toAppError(err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	var valErr *payment.ValidationError
	var vendorErr *payment.VendorError
	switch {
	case errors.Is(err, payment.ErrNotInitialized):
		return common.NewAppError(common.CodeProviderNotInitialized, "payment provider is not initialized", http.StatusInternalServerError, err)
	case errors.Is(err, payment.ErrNotFound), errors.Is(err, links.ErrLinkNotFound):
		return common.NewAppError(common.CodeNotFound, err.Error(), http.StatusNotFound, err)
	case errors.Is(err, payment.ErrUnknownProvider):
		return common.NewAppError(common.CodeNotFound, "unknown payment provider", http.StatusNotFound, err)
	case errors.Is(err, links.ErrLinkInactive):
		return common.NewAppError(common.CodeConflict, err.Error(), http.StatusConflict, err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.NewAppError(common.CodeConflict, "another refund for this payment is in progress", http.StatusConflict, err)
	case payment.IsSignatureError(err):
		return common.NewAppError(common.CodeInvalidSignature, "webhook signature verification failed", http.StatusUnauthorized, err)
	case errors.As(err, &valErr):
		details := map[string]string{"reason": valErr.Reason}
		if valErr.Field != "" {
			details["field"] = valErr.Field
		}
		return common.NewAppError(common.CodeValidationFailed, valErr.Error(), http.StatusUnprocessableEntity, err).WithDetails(details)
	case errors.As(err, &vendorErr):
		return common.NewAppError(common.CodeVendorError, vendorErr.Message, http.StatusBadGateway, err).WithDetails(map[string]any{
			"vendor": vendorErr.Vendor,
			"status": vendorErr.StatusCode,
			"code":   vendorErr.Code,
		})
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError(common.CodeVendorError, "payment provider timed out", http.StatusGatewayTimeout, err)
	}
	return err
}
