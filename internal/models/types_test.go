package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBookStatus(t *testing.T) {
	valid := map[string]BookStatus{
		"available":  BookStatusAvailable,
		"AVAILABLE":  BookStatusAvailable,
		" borrowed ": BookStatusBorrowed,
	}
	for raw, want := range valid {
		got, err := ParseBookStatus(raw)
		assert.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"lost", "", "   ", "random"} {
		_, err := ParseBookStatus(raw)
		assert.Error(t, err, raw)
		assert.False(t, IsValidBookStatus(raw), raw)
	}
}

func TestParseUserType(t *testing.T) {
	assert.True(t, IsValidUserType("user"))
	assert.True(t, IsValidUserType("User"))
	assert.True(t, IsValidUserType(" staff "))

	assert.False(t, IsValidUserType("admin"))
	assert.False(t, IsValidUserType(""))
	assert.False(t, IsValidUserType("random"))

	got, err := ParseUserType(" STAFF")
	assert.NoError(t, err)
	assert.Equal(t, UserTypeStaff, got)
}
