package model

import (
	"strings"
	"unicode"
)

// UPRNLength is the number of digits in a unique property reference number.
const UPRNLength = 12

// Location is a geocoded address record. Values are not modified after load.
type Location struct {
	UPRN     string   `json:"uprn"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Address  string   `json:"address"`
	Street   string   `json:"street"`
	Town     string   `json:"town"`
	Postcode string   `json:"postcode"`
	Rounds   []string `json:"rounds,omitempty"`
}

// ValidUPRN reports whether s is exactly twelve ASCII digits.
func ValidUPRN(s string) bool {
	if len(s) != UPRNLength {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// AddressLines splits the comma-separated address into trimmed, non-empty lines.
func (l Location) AddressLines() []string {
	parts := strings.Split(l.Address, ",")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

// Scope selects which locations a run operates on.
type Scope struct {
	UPRN  string `json:"uprn,omitempty"`
	Round string `json:"round,omitempty"`
}

// All reports whether the scope selects every location.
func (s Scope) All() bool {
	return s.UPRN == "" && s.Round == ""
}

// Name returns the filename prefix used for artifacts produced under this scope.
func (s Scope) Name() string {
	switch {
	case s.UPRN != "":
		return s.UPRN
	case s.Round != "":
		return s.Round
	default:
		return "all"
	}
}
