package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindPredicates(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"not found", NewNotFoundError("x"), IsNotFound},
		{"invalid state", NewInvalidStateError("x"), IsInvalidState},
		{"invalid argument", NewInvalidArgumentError("x"), IsInvalidArgument},
		{"busy", NewBusyError("x", nil), IsBusy},
		{"internal", NewInternalError("x", nil), IsInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.is(tc.err))
		})
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewInternalError("write failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestError_PredicateFalseForPlainError(t *testing.T) {
	assert.False(t, IsNotFound(errors.New("plain")))
}
