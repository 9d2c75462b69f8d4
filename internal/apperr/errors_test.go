package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation value", Invalid("cart", "empty"), http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("order 7: %w", ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("insufficient stock: %w", ErrConflict), http.StatusConflict},
		{"external", fmt.Errorf("provider: %w", ErrExternal), http.StatusBadGateway},
		{"unauthenticated", fmt.Errorf("missing user: %w", ErrUnauthenticated), http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("order 7: %w", ErrForbidden), http.StatusForbidden},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Invalid("quantity", "must be positive")
	assert.True(t, IsValidation(err))
	assert.False(t, IsConflict(err))
	assert.Contains(t, err.Error(), "quantity")
	assert.Contains(t, err.Error(), "must be positive")
}
