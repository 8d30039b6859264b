package address

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// countryWords are names and aliases that mark an address as already carrying
// its country. Entries are stored case-folded.
var countryWords = foldAll(
	"usa", "u.s.a", "united states", "united states of america",
	"uk", "u.k", "united kingdom", "great britain", "england", "scotland", "wales", "northern ireland",
	"ireland", "canada", "australia", "new zealand",
	"france", "germany", "deutschland", "spain", "españa", "italy", "italia", "portugal",
	"netherlands", "belgium", "switzerland", "austria",
	"sweden", "norway", "denmark", "finland", "poland",
	"singapore", "china", "hong kong", "taiwan", "japan", "korea", "south korea",
	"india", "brazil", "south africa",
)

// usStates holds the two-letter postal codes of the 50 states, DC, the
// territories and the military mail codes.
var usStates = map[string]struct{}{}

func init() {
	for _, code := range strings.Fields(`
		AL AK AZ AR CA CO CT DE FL GA HI ID IL IN IA KS KY LA ME MD
		MA MI MN MS MO MT NE NV NH NJ NM NY NC ND OH OK OR PA RI SC
		SD TN TX UT VT VA WA WV WI WY
		DC PR GU VI AS MP UM
		AA AE AP`) {
		usStates[code] = struct{}{}
	}
}

// usTailRe matches `, XX` or `, XX 12345` / `, XX 12345-6789` at the end of an address.
var usTailRe = regexp.MustCompile(`,\s*([A-Z]{2})(?:\s+\d{5}(?:-\d{4})?)?\s*$`)

// HasCountryWord reports whether addr already names a country. The match is
// case-insensitive and bounded by non-alphanumeric characters, so "uk" does
// not fire inside "Milwaukee".
func HasCountryWord(addr string) bool {
	folded := cases.Fold().String(addr)
	for _, w := range countryWords {
		if containsWord(folded, w) {
			return true
		}
	}
	return false
}

// LooksLikeUSAddress reports whether addr ends in a US state code, optionally
// followed by a ZIP or ZIP+4 code.
func LooksLikeUSAddress(addr string) bool {
	m := usTailRe.FindStringSubmatch(addr)
	if m == nil {
		return false
	}
	_, ok := usStates[m[1]]
	return ok
}

func containsWord(s, w string) bool {
	for from := 0; from <= len(s)-len(w); {
		i := strings.Index(s[from:], w)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(w)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func foldAll(words ...string) []string {
	f := cases.Fold()
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = f.String(w)
	}
	return out
}
