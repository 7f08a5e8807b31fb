package tools

import "testing"

// TestParseAmount covers the Indonesian shorthand forms users actually type.
func TestParseAmount(t *testing.T) {
	cases := []struct {
		text string
		want int64
	}{
		{"makan siang 35k", 35_000},
		{"35rb", 35_000},
		{"parkir 100 ribu", 100_000},
		{"bonus 1.5jt", 1_500_000},
		{"bonus 1,5jt", 1_500_000},
		{"gaji 10 juta", 10_000_000},
		{"Rp 50.000", 50_000},
		{"rp50,000", 50_000},
		{"bayar listrik 1.250.000", 1_250_000},
		{"beli pulsa 5000", 5000},
	}

	for _, tc := range cases {
		got, ok := ParseAmount(tc.text)
		if !ok {
			t.Fatalf("ParseAmount(%q): expected a match", tc.text)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q): expected %d, got %d", tc.text, tc.want, got)
		}
	}
}

// TestParseAmountNoMatch checks that text without a usable number reports false.
func TestParseAmountNoMatch(t *testing.T) {
	for _, text := range []string{"", "halo dompy", "berapa sisa budget bulan ini?"} {
		if got, ok := ParseAmount(text); ok {
			t.Fatalf("ParseAmount(%q): expected no match, got %d", text, got)
		}
	}
}

// TestParseAmountSuffixPrecedence checks that a jt suffix wins over the plain
// digits inside the same text.
func TestParseAmountSuffixPrecedence(t *testing.T) {
	got, ok := ParseAmount("transfer 2jt dari rekening 1234")
	if !ok || got != 2_000_000 {
		t.Fatalf("expected 2000000, got %d (ok=%v)", got, ok)
	}
}

// TestMatchName checks hint resolution: exact beats substring, substring works
// both directions, no match is -1.
func TestMatchName(t *testing.T) {
	names := []string{"BCA Tabungan", "GoPay", "Cash"}

	if idx := matchName("gopay", names); idx != 1 {
		t.Fatalf("expected exact match at 1, got %d", idx)
	}
	if idx := matchName("bca", names); idx != 0 {
		t.Fatalf("expected substring match at 0, got %d", idx)
	}
	if idx := matchName("Cash di dompet", names); idx != 2 {
		t.Fatalf("expected reverse substring match at 2, got %d", idx)
	}
	if idx := matchName("Jenius", names); idx != -1 {
		t.Fatalf("expected -1 for no match, got %d", idx)
	}
	if idx := matchName("", names); idx != -1 {
		t.Fatalf("expected -1 for empty hint, got %d", idx)
	}
}

// TestMatchNameExactWins checks that an exact match is preferred even when an
// earlier name would match by substring.
func TestMatchNameExactWins(t *testing.T) {
	names := []string{"Cash Backup", "Cash"}
	if idx := matchName("cash", names); idx != 1 {
		t.Fatalf("expected exact match at 1, got %d", idx)
	}
}
