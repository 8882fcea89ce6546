package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(httptest.NewRequest("GET", "/special-products", nil))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize || !params.Cursor.IsZero() {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestParseClampsAndDecodesToken(t *testing.T) {
	token := EncodeToken(Cursor{Name: "Oak Desk", ID: "sp-9"})
	params, err := Parse(httptest.NewRequest("GET", "/special-products?pageSize=1000&pageToken="+token, nil))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != MaxPageSize {
		t.Fatalf("expected clamp to %d, got %d", MaxPageSize, params.PageSize)
	}
	if params.Cursor != (Cursor{Name: "Oak Desk", ID: "sp-9"}) {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]error{
		"/x?pageSize=0":           ErrInvalidPageSize,
		"/x?pageSize=abc":         ErrInvalidPageSize,
		"/x?pageToken=***":        ErrInvalidPageToken,
		"/x?pageToken=bm90anNvbg": ErrInvalidPageToken,
	}
	for target, want := range cases {
		_, err := Parse(httptest.NewRequest("GET", target, nil))
		if !errors.Is(err, want) {
			t.Errorf("%s: expected %v, got %v", target, want, err)
		}
	}
}

func TestEncodeTokenZeroCursor(t *testing.T) {
	if EncodeToken(Cursor{}) != "" {
		t.Fatal("expected empty token for first page")
	}
}
