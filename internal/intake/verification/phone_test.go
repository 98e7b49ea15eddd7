package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/pricewatch/intake-core/internal/core/error"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"international", "+972501234567", "+972501234567"},
		{"national with dashes", "050-123-4567", "+972501234567"},
		{"spaces around", "  +972 50 123 4567 ", "+972501234567"},
		{"other country", "+14155552671", "+14155552671"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input, "IL")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhoneRejects(t *testing.T) {
	for _, input := range []string{"", "12", "phone", "+972"} {
		t.Run(input, func(t *testing.T) {
			_, err := NormalizePhone(input, "IL")
			require.Error(t, err)
			assert.True(t, errx.IsKind(err, errx.KindValidation))
		})
	}
}
