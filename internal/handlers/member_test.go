package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avolkov/carpoolbot/internal/models"
)

func TestCallbackOutcome(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		approve    bool
		wantStatus string
		wantOK     bool
	}{
		{"approved", nil, true, "ok", true},
		{"denied", nil, false, "ok", true},
		{"car full counts as rejected", models.ErrCarFull, true, "rejected", true},
		{"already resolved counts as rejected", models.ErrAlreadyResolved, true, "rejected", true},
		{"seated elsewhere counts as rejected", models.ErrAlreadyMember, true, "rejected", true},
		{"other domain error counts as rejected", models.ErrTripNotFound, false, "rejected", true},
		{"internal error propagates", errors.New("boom"), true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, status, ok := callbackOutcome(tt.err, tt.approve)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
			if ok {
				assert.NotEmpty(t, result)
			}
		})
	}
}
