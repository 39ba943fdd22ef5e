package locale

import "testing"

func TestResolveUKWide(t *testing.T) {
	for _, name := range []string{"", "UK", "UK-wide", "united  kingdom"} {
		locales := Resolve(name)
		if len(locales) != 12 {
			t.Fatalf("Resolve(%q): expected 12 locales, got %d", name, len(locales))
		}
		if Label(locales) != UKWide {
			t.Errorf("Resolve(%q): expected label %q, got %q", name, UKWide, Label(locales))
		}
	}
}

func TestResolveSubRegion(t *testing.T) {
	locales := Resolve("West Yorkshire")
	if len(locales) != 1 {
		t.Fatalf("expected 1 locale, got %d", len(locales))
	}
	if locales[0].Name != "West Yorkshire" || locales[0].Region != "Yorkshire and the Humber" {
		t.Errorf("unexpected locale %+v", locales[0])
	}
	if Label(locales) != "West Yorkshire" {
		t.Errorf("unexpected label %q", Label(locales))
	}
}

func TestResolveRegionAndUnknown(t *testing.T) {
	locales := Resolve("scotland")
	if len(locales) != 1 || locales[0].Name != "Scotland" || locales[0].Region != "Scotland" {
		t.Errorf("unexpected locales %+v", locales)
	}

	locales = Resolve("Isle of Atlantis")
	if len(locales) != 1 || locales[0].Region != "" || locales[0].Name != "Isle of Atlantis" {
		t.Errorf("unexpected locales for unknown name %+v", locales)
	}
}

func TestNormalizeRegion(t *testing.T) {
	cases := map[string]string{
		"Yorkshire & the Humber": "Yorkshire and the Humber",
		"  london ":              "London",
		"North-West":             "North West",
		"Northern Ireland":       "Northern Ireland",
	}
	for in, want := range cases {
		got, ok := NormalizeRegion(in)
		if !ok || got != want {
			t.Errorf("NormalizeRegion(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}

	for _, in := range []string{"", "Atlantis", "West Yorkshire"} {
		if got, ok := NormalizeRegion(in); ok {
			t.Errorf("NormalizeRegion(%q) = %q; expected rejection", in, got)
		}
	}
}
