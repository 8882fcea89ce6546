package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type memoryBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: make(map[string][]byte)}
}

type memoryWriter struct {
	ctx     context.Context
	backend *memoryBackend
	key     string
	buf     bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.backend.objects[w.key] = w.buf.Bytes()
	return nil
}

func (b *memoryBackend) NewWriter(ctx context.Context, bucket, object, _ string) io.WriteCloser {
	return &memoryWriter{ctx: ctx, backend: b, key: bucket + "/" + object}
}

func (b *memoryBackend) Size(_ context.Context, bucket, object string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+object]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return int64(len(data)), nil
}

func TestClientPutAndExists(t *testing.T) {
	backend := newMemoryBackend()
	client, err := newClient(backend, "uploads", WithPublicBaseURL("https://cdn.example.com/"))
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}

	obj, err := client.Put(context.Background(), "special-products/uploads/01H/oak.png", "image/png", strings.NewReader("png-bytes"), 64)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if obj.Size != int64(len("png-bytes")) || obj.Bucket != "uploads" {
		t.Fatalf("unexpected object %+v", obj)
	}

	ok, err := client.Exists(context.Background(), obj.Name)
	if err != nil || !ok {
		t.Fatalf("expected object to exist, ok=%v err=%v", ok, err)
	}
	ok, err = client.Exists(context.Background(), "special-products/uploads/missing.png")
	if err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
	if got := client.PublicURL(obj.Name); got != "https://cdn.example.com/special-products/uploads/01H/oak.png" {
		t.Fatalf("unexpected public url %s", got)
	}
}

func TestClientPutRejectsOversizedBody(t *testing.T) {
	backend := newMemoryBackend()
	client, err := newClient(backend, "uploads")
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}

	_, err = client.Put(context.Background(), "a/b/c.png", "image/png", strings.NewReader("0123456789"), 4)
	if !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("expected ErrObjectTooLarge, got %v", err)
	}
	if len(backend.objects) != 0 {
		t.Fatalf("expected no object to be stored, got %v", backend.objects)
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := newClient(newMemoryBackend(), " "); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected errInvalidBucket, got %v", err)
	}
}

func TestBuildUploadPath(t *testing.T) {
	path, err := BuildUploadPath(PathParams{
		Prefix:   "/special-products/uploads/",
		UploadID: "01HZX",
		FileName: `C:\photos\Oak Top (final).PNG`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "special-products/uploads/01HZX/Oak-Top--final.png" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildUploadPathRejectsInvalidSegments(t *testing.T) {
	cases := []PathParams{
		{Prefix: "", UploadID: "u", FileName: "a.png"},
		{Prefix: "uploads/../x", UploadID: "u", FileName: "a.png"},
		{Prefix: "uploads", UploadID: "../u", FileName: "a.png"},
		{Prefix: "uploads", UploadID: "", FileName: "a.png"},
	}
	for _, params := range cases {
		if _, err := BuildUploadPath(params); err == nil {
			t.Errorf("expected %+v to be rejected", params)
		}
	}
}

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":       "photo.jpg",
		"../../etc/passwd": "passwd",
		"....":            "image",
		"sofa.p%ng":       "sofa-p-ng",
		"":                "image",
	}
	for in, want := range cases {
		if got := SafeFileName(in); got != want {
			t.Errorf("SafeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
