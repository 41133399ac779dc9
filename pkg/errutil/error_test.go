package errutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	err := InsufficientBalance("wallet balance too low")
	require.Equal(t, StatusInsufficientBalance, StatusOf(err))
	require.True(t, Is(err, StatusInsufficientBalance))
	require.False(t, Is(err, StatusConflict))
}

func TestStatusOfWrapped(t *testing.T) {
	err := fmt.Errorf("claim sweep: %w", Conflict("transaction aborted"))
	require.Equal(t, StatusConflict, StatusOf(err))
}

func TestStatusOfForeignError(t *testing.T) {
	require.Equal(t, StatusUnknown, StatusOf(errors.New("boom")))
	require.Equal(t, StatusUnknown, StatusOf(nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("gateway unreachable", WithErr(cause))

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
	require.Contains(t, err.Error(), string(StatusUnavailable))
}
