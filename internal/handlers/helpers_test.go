package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func testContext(t *testing.T, query string) echo.Context {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec)
}

// TestQueryInt checks fallback behavior for missing, garbage and negative values.
func TestQueryInt(t *testing.T) {
	c := testContext(t, "limit=25&bad=abc&negative=-3")

	if got := queryInt(c, "limit", 20); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	if got := queryInt(c, "missing", 20); got != 20 {
		t.Fatalf("expected fallback 20, got %d", got)
	}
	if got := queryInt(c, "bad", 20); got != 20 {
		t.Fatalf("expected fallback for garbage, got %d", got)
	}
	if got := queryInt(c, "negative", 20); got != 20 {
		t.Fatalf("expected fallback for negative, got %d", got)
	}
}

// TestQueryDate checks optional date parsing.
func TestQueryDate(t *testing.T) {
	c := testContext(t, "date_from=2026-08-01&bad=01/08/2026")

	got, err := queryDate(c, "date_from")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Format(dateLayout) != "2026-08-01" {
		t.Fatalf("unexpected date %v", got)
	}

	if got, err := queryDate(c, "missing"); err != nil || got != nil {
		t.Fatalf("expected nil for missing param, got %v, %v", got, err)
	}

	if _, err := queryDate(c, "bad"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

// TestQueryUUID checks optional uuid parsing.
func TestQueryUUID(t *testing.T) {
	c := testContext(t, "account_id=0b9fba27-52b9-4f31-9a6e-48b6e3b56a36&bad=not-a-uuid")

	got, err := queryUUID(c, "account_id")
	if err != nil || got == nil {
		t.Fatalf("expected a uuid, got %v, %v", got, err)
	}

	if got, err := queryUUID(c, "missing"); err != nil || got != nil {
		t.Fatalf("expected nil for missing param, got %v, %v", got, err)
	}

	if _, err := queryUUID(c, "bad"); err == nil {
		t.Fatal("expected error for malformed uuid")
	}
}

// TestNormalizeName checks trimming and nil collapsing.
func TestNormalizeName(t *testing.T) {
	if normalizeName(nil) != nil {
		t.Fatal("expected nil for nil input")
	}

	empty := "   "
	if normalizeName(&empty) != nil {
		t.Fatal("expected nil for whitespace-only name")
	}

	padded := "  Budi  "
	got := normalizeName(&padded)
	if got == nil || *got != "Budi" {
		t.Fatalf("expected trimmed name, got %v", got)
	}
}
