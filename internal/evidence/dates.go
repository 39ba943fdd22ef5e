package evidence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateLayout is the only accepted evidence date format.
const DateLayout = "2006-01-02"

const minYear = 1900

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

var (
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoInText    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthPattern + `,?\s+(\d{4})\b`)
	monthDayYear = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?\b,?\s+(\d{4})\b`)
	slashDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	monthYear    = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{4})\b`)
)

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// ValidateDate reports whether s is a real YYYY-MM-DD calendar date that
// is not after today.
func ValidateDate(s string, today time.Time) bool {
	s = strings.TrimSpace(s)
	if !isoDate.MatchString(s) {
		return false
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil || d.Year() < minYear {
		return false
	}
	return !d.After(dateOnly(today))
}

// ExtractDate finds the first valid date in free text. ISO dates win,
// then "2 January 2006", "January 2, 2006", UK-ordered dd/mm/yyyy and
// "January 2006" (first of the month). Short strings that match none of
// these are handed to dateparse.
func ExtractDate(text string, today time.Time) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	for _, m := range isoInText.FindAllStringSubmatch(text, -1) {
		if d, ok := build(m[1], m[2], m[3], today); ok {
			return d, true
		}
	}
	for _, m := range dayMonthYear.FindAllStringSubmatch(text, -1) {
		if d, ok := build(m[3], monthNumber(m[2]), m[1], today); ok {
			return d, true
		}
	}
	for _, m := range monthDayYear.FindAllStringSubmatch(text, -1) {
		if d, ok := build(m[3], monthNumber(m[1]), m[2], today); ok {
			return d, true
		}
	}
	for _, m := range slashDate.FindAllStringSubmatch(text, -1) {
		if d, ok := build(m[3], m[2], m[1], today); ok {
			return d, true
		}
	}
	for _, m := range monthYear.FindAllStringSubmatch(text, -1) {
		if d, ok := build(m[2], monthNumber(m[1]), "1", today); ok {
			return d, true
		}
	}

	if len(text) <= 40 && strings.ContainsAny(text, "0123456789") {
		if t, err := dateparse.ParseIn(text, time.UTC); err == nil && t.Year() >= minYear {
			d := t.Format(DateLayout)
			if ValidateDate(d, today) {
				return d, true
			}
		}
	}
	return "", false
}

// NormalizeDate applies the evidence date fallback chain: keep raw when it
// is valid, else extract a date from raw, else from each of texts in turn,
// else today. ok is false only when today was used.
func NormalizeDate(raw string, today time.Time, texts ...string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if ValidateDate(raw, today) {
		return raw, true
	}
	if d, ok := ExtractDate(raw, today); ok {
		return d, true
	}
	for _, text := range texts {
		if d, ok := ExtractDate(text, today); ok {
			return d, true
		}
	}
	return dateOnly(today).Format(DateLayout), false
}

func build(year, month, day string, today time.Time) (string, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	s := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	if !ValidateDate(s, today) {
		return "", false
	}
	return s, true
}

func monthNumber(name string) string {
	key := strings.ToLower(name)
	if len(key) > 3 {
		key = key[:3]
	}
	return strconv.Itoa(months[key])
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
