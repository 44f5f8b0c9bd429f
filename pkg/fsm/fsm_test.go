package fsm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/txerrors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		from    models.TransactionStatus
		to      models.TransactionStatus
		actor   models.Actor
		wantErr error
	}{
		{"Customer Confirms", models.PENDING, models.CONFIRMED, models.CUSTOMER, nil},
		{"Customer Declines", models.PENDING, models.REJECTED, models.CUSTOMER, nil},
		{"Attendant Cancels", models.PENDING, models.CANCELLED, models.ATTENDANT, nil},
		{"System Expires", models.PENDING, models.EXPIRED, models.SYSTEM, nil},
		{"Attendant Completes", models.CONFIRMED, models.COMPLETED, models.ATTENDANT, nil},

		{"Attendant Cannot Confirm", models.PENDING, models.CONFIRMED, models.ATTENDANT, txerrors.ErrValidation},
		{"Customer Cannot Cancel", models.PENDING, models.CANCELLED, models.CUSTOMER, txerrors.ErrValidation},
		{"Complete Before Confirm", models.PENDING, models.COMPLETED, models.ATTENDANT, txerrors.ErrValidation},
		{"Back To Pending", models.CONFIRMED, models.PENDING, models.SYSTEM, txerrors.ErrValidation},
		{"Unknown Status", models.PENDING, models.TransactionStatus("refunded"), models.SYSTEM, txerrors.ErrValidation},

		{"Confirm After Cancel", models.CANCELLED, models.CONFIRMED, models.CUSTOMER, txerrors.ErrStaleState},
		{"Expire After Confirm", models.CONFIRMED, models.EXPIRED, models.SYSTEM, txerrors.ErrStaleState},
		{"Confirm Twice", models.CONFIRMED, models.CONFIRMED, models.CUSTOMER, txerrors.ErrStaleState},
		{"Cancel After Expiry", models.EXPIRED, models.CANCELLED, models.ATTENDANT, txerrors.ErrStaleState},
		{"Complete After Reject", models.REJECTED, models.COMPLETED, models.ATTENDANT, txerrors.ErrStaleState},
		{"Complete Twice", models.COMPLETED, models.COMPLETED, models.ATTENDANT, txerrors.ErrStaleState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := &models.Transaction{Id: "tx-1", Status: tt.from}
			err := Validate(current, tt.to, tt.actor)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidateStaleCarriesCurrent(t *testing.T) {
	current := &models.Transaction{Id: "tx-1", Status: models.CANCELLED}
	err := Validate(current, models.CONFIRMED, models.CUSTOMER)

	got, ok := txerrors.CurrentOf(err)
	require.True(t, ok)
	assert.Equal(t, models.CANCELLED, got.Status)
}

func TestTransitionsLeaveTerminalStatesAlone(t *testing.T) {
	for _, tr := range Transitions {
		assert.False(t, tr.From.Terminal(), "%s -> %s starts from a terminal status", tr.From, tr.To)
	}
}

func TestValidateCreation(t *testing.T) {
	assert.NoError(t, ValidateCreation(4575, 25.3))
	assert.ErrorIs(t, ValidateCreation(0, 25.3), txerrors.ErrValidation)
	assert.ErrorIs(t, ValidateCreation(-1, 25.3), txerrors.ErrValidation)
	assert.ErrorIs(t, ValidateCreation(4575, 0), txerrors.ErrValidation)
}

func TestTimeout(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, created.Add(time.Minute), Deadline(created, DefaultTimeout))

	assert.False(t, ExpiryDue(created, created.Add(59*time.Second), DefaultTimeout))
	assert.True(t, ExpiryDue(created, created.Add(60*time.Second), DefaultTimeout))
	assert.True(t, ExpiryDue(created, created.Add(time.Hour), DefaultTimeout))

	assert.Equal(t, 45*time.Second, Remaining(created, created.Add(15*time.Second), DefaultTimeout))
	assert.Zero(t, Remaining(created, created.Add(2*time.Minute), DefaultTimeout))
}
