package domain

// Outcome is a pick or a recorded market result.
type Outcome uint8

const (
	OutcomeNull     Outcome = 0
	OutcomeHome     Outcome = 1
	OutcomeAway     Outcome = 2
	OutcomeDraw     Outcome = 3
	OutcomeCanceled Outcome = 4
	OutcomeOver     Outcome = 5
	OutcomeUnder    Outcome = 6
)

var outcomeNames = map[Outcome]string{
	OutcomeNull:     "null",
	OutcomeHome:     "home",
	OutcomeAway:     "away",
	OutcomeDraw:     "draw",
	OutcomeCanceled: "canceled",
	OutcomeOver:     "over",
	OutcomeUnder:    "under",
}

func (o Outcome) String() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return "unknown"
}

// MarketType is the outcome scheme of a market.
type MarketType uint8

const (
	MarketType1X2       MarketType = 0
	MarketTypeMoneyline MarketType = 1
	MarketTypeTotals    MarketType = 2
	MarketTypeHandicap  MarketType = 3
)

// picks lists the outcomes a user may back for each market type. A market type
// missing from this table is invalid.
var picks = map[MarketType][]Outcome{
	MarketType1X2:       {OutcomeHome, OutcomeAway, OutcomeDraw},
	MarketTypeMoneyline: {OutcomeHome, OutcomeAway},
	MarketTypeTotals:    {OutcomeOver, OutcomeUnder},
	MarketTypeHandicap:  {OutcomeHome, OutcomeAway},
}

func (t MarketType) String() string {
	switch t {
	case MarketType1X2:
		return "1x2"
	case MarketTypeMoneyline:
		return "moneyline"
	case MarketTypeTotals:
		return "totals"
	case MarketTypeHandicap:
		return "handicap"
	default:
		return "unknown"
	}
}

// Valid reports whether the market type is known.
func (t MarketType) Valid() bool {
	_, ok := picks[t]
	return ok
}

// ValidPick reports whether o can be backed on a market of this type.
func (t MarketType) ValidPick(o Outcome) bool {
	for _, p := range picks[t] {
		if p == o {
			return true
		}
	}
	return false
}

// ValidResult reports whether o can be recorded as the result of a market of
// this type. CANCELED is a valid result for every known type.
func (t MarketType) ValidResult(o Outcome) bool {
	if o == OutcomeCanceled {
		return t.Valid()
	}
	return t.ValidPick(o)
}
