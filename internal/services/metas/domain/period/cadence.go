package period

import (
	"strings"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/i18n/catalog"
)

// Cadence is the reporting rhythm of a period.
type Cadence string

const (
	CadenceMonthly     Cadence = "monthly"
	CadenceBimonthly   Cadence = "bimonthly"
	CadenceQuarterly   Cadence = "quarterly"
	CadenceFourMonthly Cadence = "four_monthly"
	CadenceSemiannual  Cadence = "semiannual"
	CadenceAnnual      Cadence = "annual"
)

var cadenceMonths = map[Cadence]int{
	CadenceMonthly:     1,
	CadenceBimonthly:   2,
	CadenceQuarterly:   3,
	CadenceFourMonthly: 4,
	CadenceSemiannual:  6,
	CadenceAnnual:      12,
}

// Portuguese names are accepted for compatibility with existing records.
var cadenceAliases = map[string]Cadence{
	"monthly":       CadenceMonthly,
	"mensal":        CadenceMonthly,
	"bimonthly":     CadenceBimonthly,
	"bimestral":     CadenceBimonthly,
	"quarterly":     CadenceQuarterly,
	"trimestral":    CadenceQuarterly,
	"four_monthly":  CadenceFourMonthly,
	"four-monthly":  CadenceFourMonthly,
	"quadrimestral": CadenceFourMonthly,
	"semiannual":    CadenceSemiannual,
	"semestral":     CadenceSemiannual,
	"annual":        CadenceAnnual,
	"anual":         CadenceAnnual,
}

// ErrCadenceInvalid indicates an unknown cadence.
var ErrCadenceInvalid = apperrors.New(apperrors.CodePeriodCadenceInvalid, "unknown cadence")

// ParseCadence maps a cadence name or alias to a Cadence.
func ParseCadence(raw string) (Cadence, error) {
	cadence, ok := cadenceAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", ErrCadenceInvalid
	}
	return cadence, nil
}

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	_, ok := cadenceMonths[c]
	return ok
}

// Months returns the slot length in calendar months, or 0 when unknown.
func (c Cadence) Months() int {
	return cadenceMonths[c]
}

// Label returns the localized display name of c.
func (c Cadence) Label(locale string) string {
	if !c.Valid() {
		return string(c)
	}
	return catalog.Default().Printer(locale).Sprintf("cadence." + string(c))
}
