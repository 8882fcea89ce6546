package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mobilia/backoffice/internal/platform/config"
)

func TestWrapErrorClassifiesCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		err := WrapError("specialProducts.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Errorf("%s: unexpected classification %+v", tc.code, repoErr)
		}
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("expected nil")
	}
}

func TestWrapErrorKeepsExistingOp(t *testing.T) {
	inner := WrapError("products.get", status.Error(codes.NotFound, "missing"))
	outer := WrapError("transaction", inner)
	var repoErr *Error
	if !errors.As(outer, &repoErr) || repoErr.Op != "products.get" {
		t.Fatalf("expected original op, got %v", outer)
	}
}

func TestProviderRequiresProjectAndRejectsAfterClose(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{})
	if _, err := provider.Client(context.Background()); err == nil {
		t.Fatal("expected error without project id")
	}
	if err := provider.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestDocRejectsInvalidIDs(t *testing.T) {
	repo := NewBaseRepository[struct{}](NewProvider(config.FirestoreConfig{ProjectID: "p"}), "products")
	for _, id := range []string{"", "  ", "a/b"} {
		if _, err := repo.Doc(context.Background(), id); err == nil {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}
