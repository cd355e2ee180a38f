// Package market provides the instrument universe and the synthetic quote feed
package market

import (
	"fmt"
	"strings"
)

// Instrument identifies a tradable currency pair
type Instrument string

const (
	InstrumentEURUSD Instrument = "eur_usd"
	InstrumentEURRUB Instrument = "eur_rub"
	InstrumentUSDRUB Instrument = "usd_rub"
)

// instruments is the closed instrument universe, in declaration order
var instruments = []Instrument{
	InstrumentEURUSD,
	InstrumentEURRUB,
	InstrumentUSDRUB,
}

// Instruments returns every known instrument
func Instruments() []Instrument {
	out := make([]Instrument, len(instruments))
	copy(out, instruments)
	return out
}

// InstrumentNames returns the wire names of all instruments
func InstrumentNames() []string {
	names := make([]string, len(instruments))
	for i, inst := range instruments {
		names[i] = string(inst)
	}
	return names
}

// Valid reports whether the instrument belongs to the universe
func (i Instrument) Valid() bool {
	for _, known := range instruments {
		if i == known {
			return true
		}
	}
	return false
}

func (i Instrument) String() string {
	return string(i)
}

// ParseInstrument resolves a wire name, accepting "EURUSD" and "eur/usd" spellings
func ParseInstrument(s string) (Instrument, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "/", "_")
	if len(normalized) == 6 && !strings.Contains(normalized, "_") {
		normalized = normalized[:3] + "_" + normalized[3:]
	}

	inst := Instrument(normalized)
	if !inst.Valid() {
		return "", fmt.Errorf("unknown instrument: %q", s)
	}
	return inst, nil
}
