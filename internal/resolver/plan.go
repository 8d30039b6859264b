package resolver

import "fmt"

// StrategyKind tags one step of the attempt plan.
type StrategyKind int

const (
	// BareQuery asks the primary provider for the normalized address as is.
	BareQuery StrategyKind = iota
	// USSuffix asks the primary provider for "<address>, USA". It only runs
	// when the address names no country and ends like a US mailing address.
	USSuffix
	// CountrySuffix asks the primary provider for "<address>, <Country>". It
	// only runs when the address names no country.
	CountrySuffix
	// AlternateProvider asks the secondary provider for the bare address. It
	// is skipped when no secondary provider is configured.
	AlternateProvider
)

// Strategy is one declared step of the attempt plan.
type Strategy struct {
	Kind    StrategyKind
	Country string // CountrySuffix only
}

func (s Strategy) String() string {
	switch s.Kind {
	case BareQuery:
		return "bare_query"
	case USSuffix:
		return "us_suffix"
	case CountrySuffix:
		return fmt.Sprintf("country_suffix(%s)", s.Country)
	case AlternateProvider:
		return "alternate_provider"
	default:
		return fmt.Sprintf("strategy(%d)", int(s.Kind))
	}
}

// DefaultFallbackCountries is the country sweep order used when none is configured.
var DefaultFallbackCountries = []string{
	"France",
	"United Kingdom",
	"Singapore",
	"Australia",
	"China",
	"Japan",
	"Korea",
	"Netherlands",
}

// DefaultPlan builds the canonical attempt order: the bare query, the US
// suffix (when enabled), one suffix per fallback country, then the secondary
// provider.
func DefaultPlan(countries []string, usHeuristic bool) []Strategy {
	plan := make([]Strategy, 0, len(countries)+3)
	plan = append(plan, Strategy{Kind: BareQuery})
	if usHeuristic {
		plan = append(plan, Strategy{Kind: USSuffix})
	}
	for _, c := range countries {
		plan = append(plan, Strategy{Kind: CountrySuffix, Country: c})
	}
	return append(plan, Strategy{Kind: AlternateProvider})
}
