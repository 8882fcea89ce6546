package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newUploadFixture(t *testing.T, maxBytes int64) (UploadService, *stubObjectStore, *stubMetrics, *eventRecorder) {
	t.Helper()
	objects := newStubObjectStore()
	metrics := &stubMetrics{}
	events := &eventRecorder{}
	svc, err := NewUploadService(UploadServiceDeps{
		Objects:  objects,
		Prefix:   "/special-products/uploads/",
		MaxBytes: maxBytes,
		Metrics:  metrics,
		IDGen:    func() string { return "01HZXUPLOAD" },
		Logger:   events.log,
	})
	if err != nil {
		t.Fatalf("NewUploadService: %v", err)
	}
	return svc, objects, metrics, events
}

func TestUploadStoresSniffedImage(t *testing.T) {
	svc, objects, metrics, events := newUploadFixture(t, 1024)
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 600)...)

	result, err := svc.UploadSpecialProductImage(context.Background(), UploadImageCommand{
		FileName:    `C:\photos\Oak Top (final).PNG`,
		ContentType: "application/octet-stream",
		Size:        int64(len(body)),
		Body:        bytes.NewReader(body),
		ActorID:     "staff-1",
	})
	if err != nil {
		t.Fatalf("UploadSpecialProductImage: %v", err)
	}
	if !strings.HasPrefix(result.Path, "special-products/uploads/01HZXUPLOAD/") || !strings.HasSuffix(result.Path, ".png") {
		t.Fatalf("unexpected path %s", result.Path)
	}
	if result.ContentType != "image/png" || result.Size != int64(len(body)) {
		t.Errorf("unexpected result %+v", result)
	}
	if result.URL != "https://cdn.example.com/"+result.Path {
		t.Errorf("unexpected url %s", result.URL)
	}
	if !bytes.Equal(objects.objects[result.Path], body) {
		t.Error("stored bytes differ from the upload")
	}
	if len(metrics.uploads) != 1 || metrics.uploads[0] != "stored" || !events.has(uploadEventStored) {
		t.Errorf("expected stored outcome, metrics=%v", metrics.uploads)
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	svc, objects, metrics, _ := newUploadFixture(t, 1024)

	_, err := svc.UploadSpecialProductImage(context.Background(), UploadImageCommand{
		FileName:    "evil.png",
		ContentType: "image/png",
		Body:        strings.NewReader("<html><script>alert(1)</script></html>"),
	})
	if !errors.Is(err, ErrUploadInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(objects.objects) != 0 {
		t.Fatal("nothing may be stored for a rejected upload")
	}
	if metrics.uploads[0] != "rejected" {
		t.Errorf("unexpected metrics %v", metrics.uploads)
	}

	_, err = svc.UploadSpecialProductImage(context.Background(), UploadImageCommand{FileName: "empty.png", Body: bytes.NewReader(nil)})
	if !errors.Is(err, ErrUploadInvalidInput) {
		t.Fatalf("expected empty file to be rejected, got %v", err)
	}
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	svc, objects, _, _ := newUploadFixture(t, 64)
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 100)...)

	_, err := svc.UploadSpecialProductImage(context.Background(), UploadImageCommand{FileName: "big.png", Size: int64(len(body)), Body: bytes.NewReader(body)})
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("expected declared size to be rejected, got %v", err)
	}

	_, err = svc.UploadSpecialProductImage(context.Background(), UploadImageCommand{FileName: "big.png", Body: bytes.NewReader(body)})
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("expected streamed size to be rejected, got %v", err)
	}
	if len(objects.objects) != 0 {
		t.Fatal("oversized upload was stored")
	}
}

func TestUploadStorageFailure(t *testing.T) {
	svc, objects, metrics, events := newUploadFixture(t, 1024)
	objects.putErr = errBoom

	_, err := svc.UploadSpecialProductImage(context.Background(), UploadImageCommand{FileName: "a.png", Body: bytes.NewReader(pngHeader)})
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected upload failed, got %v", err)
	}
	if metrics.uploads[0] != "failed" || !events.has(uploadEventFailed) {
		t.Errorf("expected failure to be recorded, metrics=%v", metrics.uploads)
	}
}

func TestNewUploadServiceRequiresStore(t *testing.T) {
	if _, err := NewUploadService(UploadServiceDeps{}); err == nil {
		t.Fatal("expected error without object store")
	}
}
