package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/mobilia/backoffice/internal/composite"
	"github.com/mobilia/backoffice/internal/platform/httpx"
	"github.com/mobilia/backoffice/internal/platform/pagination"
	"github.com/mobilia/backoffice/internal/services"
)

// validationDetails renders engine guard failures so that clients can rebuild the typed error.
func validationDetails(err error) (map[string]any, bool) {
	var identical *composite.IdenticalProductError
	if errors.As(err, &identical) {
		return map[string]any{
			"condition": string(composite.ConditionIdenticalBaseProducts),
			"productId": identical.ProductID,
		}, true
	}
	var selection *composite.InvalidSelectionError
	if errors.As(err, &selection) {
		return map[string]any{
			"condition": "invalid_selection",
			"side":      selection.Side.String(),
			"productId": selection.ProductID,
			"reason":    selection.Reason,
		}, true
	}
	if verr, ok := composite.IsValidation(err); ok {
		details := map[string]any{"condition": string(verr.Condition)}
		if len(verr.Indices) > 0 {
			details["indices"] = verr.Indices
		}
		return details, true
	}
	return nil, false
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, err error) bool {
	details, ok := validationDetails(err)
	if !ok {
		return false
	}
	httpx.WriteError(ctx, w, httpx.NewError("validation_failed", err.Error(), http.StatusUnprocessableEntity).WithDetails(details))
	return true
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog repository unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load products", http.StatusInternalServerError))
	}
}

func writeSpecialProductError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if writeValidationError(ctx, w, err) {
		return
	}
	switch {
	case errors.Is(err, pagination.ErrInvalidPageSize), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSpecialProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrSpecialProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("special_product_not_found", "special product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSpecialProductCombinationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("combination_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrSpecialProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("special_product_conflict", "special product was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrSpecialProductRepositoryUnavailable),
		errors.Is(err, services.ErrCatalogRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("repository_unavailable", "special product repository unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrUploadFailed):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "image storage unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("special_product_error", "failed to process special product", http.StatusInternalServerError))
	}
}

func writeUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUploadTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrUploadInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_upload", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUploadFailed):
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "failed to store image", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("upload_error", "failed to upload image", http.StatusInternalServerError))
	}
}
