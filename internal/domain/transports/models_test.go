package transports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		next Status
		want bool
	}{
		{name: "pending to confirmed", from: StatusPending, next: StatusConfirmed, want: true},
		{name: "confirmed to in_transit", from: StatusConfirmed, next: StatusInTransit, want: true},
		{name: "in_transit to picked_up", from: StatusInTransit, next: StatusPickedUp, want: true},
		{name: "picked_up to out_for_delivery", from: StatusPickedUp, next: StatusOutForDelivery, want: true},
		{name: "out_for_delivery to delivered", from: StatusOutForDelivery, next: StatusDelivered, want: true},

		{name: "no skipping a step", from: StatusPending, next: StatusInTransit, want: false},
		{name: "no jumping to delivered", from: StatusConfirmed, next: StatusDelivered, want: false},
		{name: "no moving backwards", from: StatusPickedUp, next: StatusInTransit, want: false},
		{name: "no self transition", from: StatusConfirmed, next: StatusConfirmed, want: false},

		{name: "cancel from pending", from: StatusPending, next: StatusCancelled, want: true},
		{name: "cancel from out_for_delivery", from: StatusOutForDelivery, next: StatusCancelled, want: true},
		{name: "fail from in_transit", from: StatusInTransit, next: StatusFailed, want: true},

		{name: "no leaving delivered", from: StatusDelivered, next: StatusCancelled, want: false},
		{name: "no leaving cancelled", from: StatusCancelled, next: StatusFailed, want: false},
		{name: "no leaving failed", from: StatusFailed, next: StatusConfirmed, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.next))
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusFailed.Terminal())

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusInTransit.Terminal())
	assert.False(t, StatusPickedUp.Terminal())
	assert.False(t, StatusOutForDelivery.Terminal())
}

func TestCost_Recompute(t *testing.T) {
	cost := Cost{
		BaseFare:          500,
		DistanceCharge:    300,
		LoadingCharge:     100,
		UnloadingCharge:   100,
		AdditionalCharges: 50,
		Discount:          150,
		Total:             999999, // supplied totals are never trusted
	}

	cost.Recompute()

	assert.Equal(t, int64(900), cost.Total)
}

func TestTransport_IsDelayed(t *testing.T) {
	now := time.Now()
	scheduled := now.Add(-time.Hour)

	t.Run("undelivered past its scheduled time", func(t *testing.T) {
		tr := &Transport{ScheduledDeliveryTime: scheduled}
		assert.True(t, tr.IsDelayed(now))
	})

	t.Run("undelivered before its scheduled time", func(t *testing.T) {
		tr := &Transport{ScheduledDeliveryTime: now.Add(time.Hour)}
		assert.False(t, tr.IsDelayed(now))
	})

	t.Run("delivered late", func(t *testing.T) {
		late := scheduled.Add(30 * time.Minute)
		tr := &Transport{ScheduledDeliveryTime: scheduled, ActualDeliveryTime: &late}
		assert.True(t, tr.IsDelayed(now))
	})

	t.Run("delivered on time", func(t *testing.T) {
		onTime := scheduled.Add(-10 * time.Minute)
		tr := &Transport{ScheduledDeliveryTime: scheduled, ActualDeliveryTime: &onTime}
		assert.False(t, tr.IsDelayed(now))
	})
}
