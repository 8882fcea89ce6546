package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/mobilia/backoffice/internal/platform/storage"
)

const (
	defaultUploadPrefix   = "special-products/uploads"
	defaultMaxUploadBytes = int64(10 * 1024 * 1024)
	sniffLength           = 512

	uploadEventStored   = "upload.stored"
	uploadEventRejected = "upload.rejected"
	uploadEventFailed   = "upload.failed"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// UploadServiceDeps wires dependencies for the upload service.
type UploadServiceDeps struct {
	Objects  ObjectStore
	Prefix   string
	MaxBytes int64
	Metrics  Metrics
	IDGen    func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type uploadService struct {
	objects  ObjectStore
	prefix   string
	maxBytes int64
	metrics  Metrics
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewUploadService constructs the upload service.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Objects == nil {
		return nil, errors.New("upload service: object store is required")
	}
	prefix := strings.Trim(strings.TrimSpace(deps.Prefix), "/")
	if prefix == "" {
		prefix = defaultUploadPrefix
	}
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	newID := deps.IDGen
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &uploadService{
		objects:  deps.Objects,
		prefix:   prefix,
		maxBytes: maxBytes,
		metrics:  deps.Metrics,
		newID:    newID,
		logger:   logger,
	}, nil
}

// UploadSpecialProductImage stores one combination image. The content type is sniffed from the bytes;
// the declared type is only logged.
func (s *uploadService) UploadSpecialProductImage(ctx context.Context, cmd UploadImageCommand) (UploadResult, error) {
	if cmd.Body == nil {
		return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: file is required", ErrUploadInvalidInput))
	}
	if cmd.Size > s.maxBytes {
		return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: %d bytes exceeds %d", ErrUploadTooLarge, cmd.Size, s.maxBytes))
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(cmd.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: read file: %v", ErrUploadInvalidInput, err))
	}
	head = head[:n]
	if n == 0 {
		return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: file is empty", ErrUploadInvalidInput))
	}
	contentType := http.DetectContentType(head)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: unsupported content type %s", ErrUploadInvalidInput, contentType))
	}

	path, err := storage.BuildUploadPath(storage.PathParams{
		Prefix:   s.prefix,
		UploadID: s.newID(),
		FileName: cmd.FileName,
	})
	if err != nil {
		return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: %v", ErrUploadInvalidInput, err))
	}

	body := io.MultiReader(bytes.NewReader(head), cmd.Body)
	object, err := s.objects.Put(ctx, path, contentType, body, s.maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectTooLarge) {
			return UploadResult{}, s.reject(ctx, cmd, fmt.Errorf("%w: exceeds %d bytes", ErrUploadTooLarge, s.maxBytes))
		}
		s.record("failed")
		s.logger(ctx, uploadEventFailed, map[string]any{"path": path, "error": err})
		return UploadResult{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	s.record("stored")
	s.logger(ctx, uploadEventStored, map[string]any{
		"path":        object.Name,
		"contentType": contentType,
		"size":        object.Size,
		"actorId":     strings.TrimSpace(cmd.ActorID),
	})
	return UploadResult{
		Path:        object.Name,
		URL:         s.objects.PublicURL(object.Name),
		ContentType: contentType,
		Size:        object.Size,
	}, nil
}

func (s *uploadService) reject(ctx context.Context, cmd UploadImageCommand, err error) error {
	s.record("rejected")
	s.logger(ctx, uploadEventRejected, map[string]any{
		"fileName":     cmd.FileName,
		"declaredType": cmd.ContentType,
		"reason":       err.Error(),
	})
	return err
}

func (s *uploadService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.UploadCompleted(outcome)
	}
}
