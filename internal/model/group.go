package model

import "fmt"

// NoiseKey is the key of the group holding points no cluster claimed.
const NoiseKey = "noise"

// Color is an 8-bit RGBA value.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Array returns the channels in the [r, g, b, a] form used by web map symbols.
func (c Color) Array() [4]int {
	return [4]int{int(c.R), int(c.G), int(c.B), int(c.A)}
}

// Hex returns the color as an rrggbb string without the alpha channel.
func (c Color) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// Group is a set of locations printed together, keyed by postcode or cluster.
type Group struct {
	Key     string     `json:"key"`
	Members []Location `json:"members"`
	Fill    Color      `json:"fill"`
	Outline Color      `json:"outline"`
	Rounds  []string   `json:"rounds,omitempty"`
	Noise   bool       `json:"noise,omitempty"`
}

// First returns the first member, used for page labels.
func (g Group) First() Location {
	if len(g.Members) == 0 {
		return Location{}
	}
	return g.Members[0]
}

// HasRound reports whether any member is served by round.
func (g Group) HasRound(round string) bool {
	for _, r := range g.Rounds {
		if r == round {
			return true
		}
	}
	return false
}

// Validate returns a DataError when the group has no members.
func (g Group) Validate() error {
	if len(g.Members) == 0 {
		return &DataError{Group: g.Key, Reason: "group has no members"}
	}
	return nil
}

// UnionRounds returns the distinct round tags of members in first-seen order.
func UnionRounds(members []Location) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range members {
		for _, r := range m.Rounds {
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Round is a batch of groups merged into one document, optionally led by an overview page.
type Round struct {
	Label    string   `json:"label"`
	Groups   []Group  `json:"groups"`
	Overview string   `json:"overview,omitempty"`
	Pages    []string `json:"pages,omitempty"`
}
