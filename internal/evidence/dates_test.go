package evidence

import (
	"testing"
	"time"
)

var testToday = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func TestValidateDate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"2025-06-15", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2025-06-16", false},
		{"2025-6-1", false},
		{"15/06/2025", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateDate(c.in, testToday); got != c.want {
			t.Errorf("ValidateDate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestExtractDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Published 2024-11-03 by the council", "2024-11-03"},
		{"Cabinet approved the scheme on 12 March 2024.", "2024-03-12"},
		{"On 1st Sept 2023 works began", "2023-09-01"},
		{"Announced January 5, 2025 in Leeds", "2025-01-05"},
		{"Minutes of 07/04/2024 meeting", "2024-04-07"},
		{"Consultation opened in October 2022", "2022-10-01"},
		{"Completion expected 2030-01-01, last update 2024-05-05", "2024-05-05"},
	}
	for _, c := range cases {
		got, ok := ExtractDate(c.in, testToday)
		if !ok || got != c.want {
			t.Errorf("ExtractDate(%q) = %q, %v; want %q", c.in, got, ok, c.want)
		}
	}

	if got, ok := ExtractDate("no dates here at all", testToday); ok {
		t.Errorf("expected no date, got %q", got)
	}
	if got, ok := ExtractDate("Opening 14 March 2031", testToday); ok {
		t.Errorf("expected future date to be rejected, got %q", got)
	}
}

func TestNormalizeDateFallbackChain(t *testing.T) {
	if got, ok := NormalizeDate("2024-01-02", testToday); !ok || got != "2024-01-02" {
		t.Errorf("expected valid date kept, got %q %v", got, ok)
	}
	if got, ok := NormalizeDate("3 February 2024", testToday); !ok || got != "2024-02-03" {
		t.Errorf("expected date extracted from raw value, got %q %v", got, ok)
	}
	if got, ok := NormalizeDate("2099-01-01", testToday, "Board meeting on 9 May 2025"); !ok || got != "2025-05-09" {
		t.Errorf("expected date extracted from text, got %q %v", got, ok)
	}
	if got, ok := NormalizeDate("", testToday, "nothing useful"); ok || got != "2025-06-15" {
		t.Errorf("expected today fallback, got %q %v", got, ok)
	}
}
