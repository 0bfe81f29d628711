// File: internal/login/phone_test.go

package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"domestic trunk prefix", "89991234567", "+79991234567"},
		{"bare mobile", "9991234567", "+79991234567"},
		{"country code without plus", "79991234567", "+79991234567"},
		{"already international", "+79991234567", "+79991234567"},
		{"formatted with separators", "8 (999) 123-45-67", "+79991234567"},
		{"foreign international kept", "+380501234567", "+380501234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, "+7")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhoneRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "12345", "899912345678"} {
		t.Run(raw, func(t *testing.T) {
			_, err := NormalizePhone(raw, "+7")
			assert.Error(t, err)
		})
	}
}
