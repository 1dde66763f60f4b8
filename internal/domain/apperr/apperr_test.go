package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindDiscountExpired, http.StatusBadRequest},
		{KindDeliveryUnavailable, http.StatusBadRequest},
		{KindInvalidStatusTransition, http.StatusBadRequest},
		{KindItemUnavailable, http.StatusConflict},
		{KindStockUnavailable, http.StatusConflict},
		{KindStatusConflict, http.StatusConflict},
		{KindCartChanged, http.StatusConflict},
		{KindPaymentDeclined, http.StatusPaymentRequired},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindUserNotFound, http.StatusUnauthorized},
		{KindTicketGenerationFailed, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestKind_IsDiscount(t *testing.T) {
	assert.True(t, KindDiscountMinimumNotMet.IsDiscount())
	assert.True(t, KindDiscountNotApplicable.IsDiscount())
	assert.False(t, KindStockUnavailable.IsDiscount())
}

func TestAs_ThroughWrapping(t *testing.T) {
	base := StockUnavailable("burger")
	wrapped := fmt.Errorf("insert order: %w", errors.Wrap(base, "tx"))

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindStockUnavailable, got.Kind)
	assert.Equal(t, "burger", got.ItemID)
	assert.True(t, Is(wrapped, KindStockUnavailable))
	assert.Equal(t, KindStockUnavailable, KindOf(wrapped))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(errors.New("boom"), KindNotFound))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t,
		"INVALID_STATUS_TRANSITION: cannot move order from completed to preparing (completed -> preparing)",
		InvalidTransition("completed", "preparing").Error(),
	)
	assert.Equal(t, "VALIDATION_ERROR: required (field contact.email)",
		Validation("contact.email", "required").Error())

	err := Internal(errors.New("db down"))
	assert.Equal(t, "INTERNAL_ERROR: internal error: db down", err.Error())
	assert.ErrorContains(t, err.Unwrap(), "db down")
}
