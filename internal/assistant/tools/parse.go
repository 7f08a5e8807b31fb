package tools

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Amount parsing for Indonesian shorthand. Users write amounts as "35k",
// "35rb", "100 ribu", "1.5jt", "Rp 50.000" or plain numbers with dot or
// comma thousand separators.

var (
	millionRe  = regexp.MustCompile(`(\d+[.,]?\d*)\s*(jt|juta)`)
	thousandRe = regexp.MustCompile(`(\d+[.,]?\d*)\s*(k|rb|ribu)`)
	rupiahRe   = regexp.MustCompile(`rp\.?\s*([\d.,]+)`)
	groupedRe  = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+`)
	plainRe    = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParseAmount extracts an amount in whole rupiah from free text. The second
// return value reports whether anything usable was found.
func ParseAmount(text string) (int64, bool) {
	text = strings.ToLower(text)

	if m := millionRe.FindStringSubmatch(text); m != nil {
		return scaled(m[1], 1_000_000)
	}
	if m := thousandRe.FindStringSubmatch(text); m != nil {
		return scaled(m[1], 1_000)
	}
	if m := rupiahRe.FindStringSubmatch(text); m != nil {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
		return parseWhole(digits)
	}
	if m := groupedRe.FindString(text); m != "" {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m)
		return parseWhole(digits)
	}
	if m := plainRe.FindString(text); m != "" {
		return parseWhole(m)
	}

	return 0, false
}

// scaled parses a number that may use a comma as decimal separator ("1,5jt")
// and multiplies it by the suffix factor.
func scaled(num string, factor float64) (int64, bool) {
	num = strings.ReplaceAll(num, ",", ".")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * factor)), true
}

func parseWhole(digits string) (int64, bool) {
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// matchName resolves a free-text hint against named items: an exact
// case-insensitive match wins, then a substring match either way. Returns the
// index of the match or -1.
func matchName(hint string, names []string) int {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return -1
	}

	for i, name := range names {
		if strings.ToLower(name) == hint {
			return i
		}
	}

	for i, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, hint) || strings.Contains(hint, lower) {
			return i
		}
	}

	return -1
}
