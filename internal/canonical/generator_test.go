package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIndividual(t *testing.T) {
	tests := []struct {
		name      string
		firstName string
		lastName  string
		phone     string
		email     string
		want      string
	}{
		{
			name:      "plain attributes",
			firstName: "John",
			lastName:  "Doe",
			phone:     "+1-555-867-5309",
			email:     "john@example.com",
			want:      "JDOE5309EXA",
		},
		{
			name:      "last name kept whole",
			firstName: "Maria",
			lastName:  "Fitzgerald",
			phone:     "5551234",
			email:     "maria@gmail.com",
			want:      "MFITZGERA1234GMA",
		},
		{
			name:      "very long last name capped by the id format",
			firstName: "Pam",
			lastName:  "Featherstonehaugh",
			phone:     "5550007",
			email:     "pam@example.org",
			want:      "PFEATHERS0007EXA",
		},
		{
			name:      "first name without letters falls back to X",
			firstName: "123",
			lastName:  "Doe",
			phone:     "5551234",
			email:     "a@b.com",
			want:      "XDOE1234BXX",
		},
		{
			name:      "short phone zero padded",
			firstName: "Ana",
			lastName:  "Li",
			phone:     "42",
			email:     "ana@io.dev",
			want:      "ALI0042IOD",
		},
		{
			name:      "short domain X padded",
			firstName: "Bob",
			lastName:  "Ray",
			phone:     "5550001",
			email:     "bob@x.y",
			want:      "BRAY0001XYX",
		},
		{
			name:      "diacritics and punctuation stripped from names",
			firstName: "Zoe",
			lastName:  "O'Neil-Smith",
			phone:     "(555) 321-9876",
			email:     "zoe@corp.net",
			want:      "ZONEILSMI9876COR",
		},
		{
			name:      "missing phone pads to zeros",
			firstName: "Ian",
			lastName:  "Kerr",
			phone:     "",
			email:     "ian@mail.org",
			want:      "IKERR0000MAI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveIndividual(tt.firstName, tt.lastName, tt.phone, tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.False(t, got.IsOrg())
		})
	}
}

func TestDeriveIndividualRejectsLastNameWithoutLetters(t *testing.T) {
	_, err := DeriveIndividual("John", "---", "5551234", "a@b.com")
	require.Error(t, err)
}

func TestDeriveOrganization(t *testing.T) {
	got, err := DeriveOrganization("Acme Widgets Inc", "555-876-5432", "contact@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "ORG-ACMEWIDGE5432ACM", got.String())
	assert.True(t, got.IsOrg())
	assert.Equal(t, "ACMEWIDGE5432ACM", got.Body())
}

func TestDeriveOrganizationShortName(t *testing.T) {
	got, err := DeriveOrganization("IO", "1", "x@io.dev")
	require.NoError(t, err)
	assert.Equal(t, "ORG-IO0001IOD", got.String())
}
