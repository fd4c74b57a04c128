package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		want bool
	}{
		{"not found direct", ErrNotFound, IsNotFound, true},
		{"not found wrapped twice", fmt.Errorf("svc: %w", fmt.Errorf("repo: %w", ErrNotFound)), IsNotFound, true},
		{"validation wrapped", fmt.Errorf("article: %w", ErrValidation), IsValidation, true},
		{"invalid state vs conflict", ErrConflict, IsInvalidState, false},
		{"unauthorized", fmt.Errorf("confirm: %w", ErrUnauthorized), IsUnauthorized, true},
		{"upstream", fmt.Errorf("backend: %w", ErrUpstream), IsUpstream, true},
		{"nil", nil, IsNotFound, false},
		{"unrelated", errors.New("boom"), IsConflict, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.is(tt.err))
		})
	}
}
