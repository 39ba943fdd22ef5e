// Package locale maps discovery scopes onto the UK regions used for
// grouping projects.
package locale

import (
	"strings"

	"go.uber.org/zap"
)

// UKWide is the composite locale covering every region.
const UKWide = "UK-wide"

// Locale is one discovery scope.
type Locale struct {
	Name   string
	Region string
}

// Regions lists the nine English regions and the three devolved nations.
var Regions = []string{
	"North East",
	"North West",
	"Yorkshire and the Humber",
	"East Midlands",
	"West Midlands",
	"East of England",
	"London",
	"South East",
	"South West",
	"Scotland",
	"Wales",
	"Northern Ireland",
}

var subRegions = map[string]string{
	"west yorkshire":                   "Yorkshire and the Humber",
	"south yorkshire":                  "Yorkshire and the Humber",
	"north yorkshire":                  "Yorkshire and the Humber",
	"east riding":                      "Yorkshire and the Humber",
	"hull":                             "Yorkshire and the Humber",
	"leeds":                            "Yorkshire and the Humber",
	"sheffield":                        "Yorkshire and the Humber",
	"greater manchester":               "North West",
	"merseyside":                       "North West",
	"liverpool city region":            "North West",
	"lancashire":                       "North West",
	"cumbria":                          "North West",
	"cheshire":                         "North West",
	"tyne and wear":                    "North East",
	"county durham":                    "North East",
	"teesside":                         "North East",
	"northumberland":                   "North East",
	"west midlands combined authority": "West Midlands",
	"birmingham":                       "West Midlands",
	"coventry":                         "West Midlands",
	"staffordshire":                    "West Midlands",
	"nottinghamshire":                  "East Midlands",
	"derbyshire":                       "East Midlands",
	"leicestershire":                   "East Midlands",
	"lincolnshire":                     "East Midlands",
	"greater london":                   "London",
	"cambridgeshire":                   "East of England",
	"norfolk":                          "East of England",
	"suffolk":                          "East of England",
	"essex":                            "East of England",
	"hertfordshire":                    "East of England",
	"kent":                             "South East",
	"surrey":                           "South East",
	"sussex":                           "South East",
	"hampshire":                        "South East",
	"oxfordshire":                      "South East",
	"bristol":                          "South West",
	"devon":                            "South West",
	"cornwall":                         "South West",
	"somerset":                         "South West",
	"glasgow":                          "Scotland",
	"edinburgh":                        "Scotland",
	"cardiff":                          "Wales",
	"belfast":                          "Northern Ireland",
}

var aliases = map[string]string{
	"yorkshire":              "Yorkshire and the Humber",
	"yorkshire & the humber": "Yorkshire and the Humber",
	"yorkshire and humber":   "Yorkshire and the Humber",
	"east":                   "East of England",
	"eastern":                "East of England",
	"north-east":             "North East",
	"north-west":             "North West",
	"south-east":             "South East",
	"south-west":             "South West",
	"ni":                     "Northern Ireland",
}

// Resolve expands a locale name into one or more discovery scopes.
// Empty, "UK" and "UK-wide" expand to every region. Unknown names are
// kept as free-text scopes with no region.
func Resolve(name string) []Locale {
	key := normalize(name)
	switch key {
	case "", "uk", "uk-wide", "uk wide", "united kingdom":
		locales := make([]Locale, 0, len(Regions))
		for _, r := range Regions {
			locales = append(locales, Locale{Name: r, Region: r})
		}
		return locales
	}

	if region, ok := NormalizeRegion(name); ok {
		return []Locale{{Name: region, Region: region}}
	}
	if region, ok := subRegions[key]; ok {
		return []Locale{{Name: strings.TrimSpace(name), Region: region}}
	}

	zap.S().Warnf("Unknown locale %q, searching it without a region", name)
	return []Locale{{Name: strings.TrimSpace(name)}}
}

// NormalizeRegion returns the canonical region name, or false when name
// is not a UK region.
func NormalizeRegion(name string) (string, bool) {
	key := normalize(name)
	if key == "" {
		return "", false
	}
	for _, r := range Regions {
		if strings.ToLower(r) == key {
			return r, true
		}
	}
	if r, ok := aliases[key]; ok {
		return r, true
	}
	return "", false
}

// Label returns the staging source label for a resolved set of scopes.
func Label(locales []Locale) string {
	if len(locales) == 1 {
		return locales[0].Name
	}
	return UKWide
}

func normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
