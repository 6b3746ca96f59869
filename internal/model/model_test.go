package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestValidUPRN(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"100012345678", true},
		{"10001234567", false},
		{"1000123456789", false},
		{"10001234567a", false},
		{"", false},
		{"１00012345678", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidUPRN(tt.in), tt.in)
	}
}

func TestAddressLines(t *testing.T) {
	loc := Location{Address: "1 High Street, ,Hambleton,  DL7 8AA "}
	assert.Equal(t, []string{"1 High Street", "Hambleton", "DL7 8AA"}, loc.AddressLines())
}

func TestScopeName(t *testing.T) {
	assert.Equal(t, "all", Scope{}.Name())
	assert.True(t, Scope{}.All())
	assert.Equal(t, "R12", Scope{Round: "R12"}.Name())
	assert.Equal(t, "100012345678", Scope{UPRN: "100012345678", Round: "R12"}.Name())
}

func TestUnionRounds(t *testing.T) {
	members := []Location{
		{Rounds: []string{"R2", "R1"}},
		{Rounds: []string{"R1", "", "R3"}},
		{},
	}
	assert.Equal(t, []string{"R2", "R1", "R3"}, UnionRounds(members))
}

func TestGroupValidate(t *testing.T) {
	err := Group{Key: "DL7 8AA"}.Validate()
	var de *DataError
	assert.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "DL7 8AA")

	assert.NoError(t, Group{Key: "x", Members: []Location{{}}}.Validate())
}

func TestColor(t *testing.T) {
	c := Color{R: 10, G: 255, B: 0, A: 255}
	assert.Equal(t, [4]int{10, 255, 0, 255}, c.Array())
	assert.Equal(t, "0aff00", c.Hex())
}

func TestIsFatal(t *testing.T) {
	cfgErr := eris.Wrap(&ConfigurationError{Item: "web map template"}, "pipeline: build")
	assert.True(t, IsFatal(cfgErr))
	assert.False(t, IsFatal(&DataError{Reason: "empty"}))
	assert.False(t, IsFatal(nil))
}

func TestErrorMessages(t *testing.T) {
	svc := &ExternalServiceError{Provider: "arcgis", Op: "export", StatusCode: 503, Err: errors.New("unavailable")}
	assert.Equal(t, "arcgis export failed (status 503): unavailable", svc.Error())

	m := &PDFMergeError{Round: "R12", Missing: "R12-B.pdf"}
	assert.Equal(t, "merge round R12: missing R12-B.pdf", m.Error())
}
