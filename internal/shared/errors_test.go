package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsWrapSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validationf("qty %d out of range", -1), ErrValidation},
		{"not found", NotFoundf("warehouse %d", 9), ErrNotFound},
		{"duplicate", Duplicatef("code %s", "WH-A"), ErrDuplicate},
		{"insufficient stock", InsufficientStockf("need %d", 5), ErrInsufficientStock},
		{"business rule", BusinessRulef("cannot cancel paid invoice"), ErrBusinessRule},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.err, tc.sentinel)
			require.Contains(t, tc.err.Error(), tc.sentinel.Error())
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	require.False(t, errors.Is(Validationf("x"), ErrBusinessRule))
	require.False(t, errors.Is(NotFoundf("x"), ErrDuplicate))
	require.False(t, errors.Is(InsufficientStockf("x"), ErrValidation))
}
