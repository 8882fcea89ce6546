package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mobilia/backoffice/internal/platform/auth"
	"github.com/mobilia/backoffice/internal/platform/httpx"
	"github.com/mobilia/backoffice/internal/services"
)

const (
	uploadFormField        = "file"
	defaultMaxUploadBody   = int64(10 * 1024 * 1024)
	multipartEnvelopeSlack = int64(64 * 1024)
)

// UploadHandlers accepts combination images as multipart uploads.
type UploadHandlers struct {
	authn    *auth.Authenticator
	uploads  services.UploadService
	maxBytes int64
	limiter  *actorRateLimiter
}

// UploadOption customises UploadHandlers.
type UploadOption func(*UploadHandlers)

// WithUploadMaxBytes caps the accepted file size. The service enforces its own limit as well.
func WithUploadMaxBytes(n int64) UploadOption {
	return func(h *UploadHandlers) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithUploadRateLimit allows limit uploads per staff member in each window.
func WithUploadRateLimit(limit int, window time.Duration, clock func() time.Time) UploadOption {
	return func(h *UploadHandlers) {
		h.limiter = newActorRateLimiter(limit, window, clock)
	}
}

// NewUploadHandlers constructs the upload handlers.
func NewUploadHandlers(authn *auth.Authenticator, svc services.UploadService, opts ...UploadOption) *UploadHandlers {
	h := &UploadHandlers{authn: authn, uploads: svc, maxBytes: defaultMaxUploadBody}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /uploads beneath the provided router.
func (h *UploadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth())
	}
	route.With(h.limiter.middleware).Post("/uploads/special-product", h.uploadSpecialProductImage)
}

type uploadResponse struct {
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (h *UploadHandlers) uploadSpecialProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "upload service not available", http.StatusServiceUnavailable))
		return
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart/form-data body is required", http.StatusUnsupportedMediaType))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartEnvelopeSlack)
	reader, err := r.MultipartReader()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed multipart body", http.StatusBadRequest))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeMultipartError(w, r, err)
			return
		}
		if part.FormName() != uploadFormField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		result, err := h.uploads.UploadSpecialProductImage(ctx, services.UploadImageCommand{
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
			ActorID:     actorID(ctx),
		})
		_ = part.Close()
		if err != nil {
			writeUploadError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusCreated, uploadResponse{
			Path:        result.Path,
			URL:         result.URL,
			ContentType: result.ContentType,
			Size:        result.Size,
		})
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "file field is required", http.StatusBadRequest))
}

func writeMultipartError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "upload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "malformed multipart body", http.StatusBadRequest))
}
