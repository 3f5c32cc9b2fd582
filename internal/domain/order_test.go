package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptedOrder(size float64) *Order {
	o := NewOrder("ES", size, KindMarket, 0)
	o.Status = StatusAccepted
	return o
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusSubmitted, true},
		{StatusCreated, StatusRejected, true},
		{StatusCreated, StatusCompleted, false},
		{StatusSubmitted, StatusAccepted, true},
		{StatusAccepted, StatusPartial, true},
		{StatusAccepted, StatusCanceled, true},
		{StatusPartial, StatusPartial, true},
		{StatusPartial, StatusCompleted, true},
		{StatusPartial, StatusRejected, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusAccepted, false},
		{StatusMargin, StatusAccepted, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			o := NewOrder("ES", 1, KindMarket, 0)
			o.Status = tt.from
			err := o.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, o.Status)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tt.from, o.Status)
			}
		})
	}
}

func TestOrderExecutePartialThenComplete(t *testing.T) {
	o := acceptedOrder(10)
	dt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, o.Execute(ExecutionBit{Time: dt, Size: 4, Price: 100, OpenedComm: 1}))
	assert.Equal(t, StatusPartial, o.Status)
	assert.InDelta(t, 6, o.Executed.Remaining, 1e-12)

	require.NoError(t, o.Execute(ExecutionBit{Time: dt, Size: 6, Price: 110, OpenedComm: 2}))
	assert.Equal(t, StatusCompleted, o.Status)
	assert.InDelta(t, 10, o.Executed.Size, 1e-12)
	assert.InDelta(t, 106, o.Executed.Price, 1e-9)
	assert.InDelta(t, 3, o.Executed.Comm, 1e-12)
	assert.InDelta(t, -3, o.Executed.PnLComm, 1e-12)
	assert.Zero(t, o.Executed.Remaining)
	assert.Len(t, o.Executed.Bits, 2)
	assert.False(t, o.Alive())
}

func TestOrderExecuteSellSide(t *testing.T) {
	o := acceptedOrder(-5)
	require.NoError(t, o.Execute(ExecutionBit{Size: -5, Price: 20}))
	assert.Equal(t, StatusCompleted, o.Status)
	assert.InDelta(t, -5, o.Executed.Size, 1e-12)
}

func TestOrderExecuteNeverOverfills(t *testing.T) {
	o := acceptedOrder(3)
	err := o.Execute(ExecutionBit{Size: 4, Price: 1})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, o.Executed.Size)
	assert.Equal(t, StatusAccepted, o.Status)
}

func TestOrderExecuteAfterTerminal(t *testing.T) {
	o := acceptedOrder(1)
	require.NoError(t, o.Transition(StatusCanceled))
	assert.ErrorIs(t, o.Execute(ExecutionBit{Size: 1, Price: 1}), ErrInvalidTransition)
}

func TestOrderCloneIsIndependent(t *testing.T) {
	o := acceptedOrder(2)
	o.Info = map[string]string{"venue": "x"}
	require.NoError(t, o.Execute(ExecutionBit{Size: 1, Price: 5}))

	c := o.Clone()
	require.NoError(t, o.Execute(ExecutionBit{Size: 1, Price: 6}))
	o.Info["venue"] = "y"

	assert.Equal(t, StatusPartial, c.Status)
	assert.Len(t, c.Executed.Bits, 1)
	assert.Equal(t, "x", c.Info["venue"])
}

func TestOrderExpired(t *testing.T) {
	dt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	o := acceptedOrder(1)
	assert.False(t, o.Expired(dt.AddDate(10, 0, 0)), "zero validity never expires")

	o.Valid = dt
	assert.False(t, o.Expired(dt))
	assert.True(t, o.Expired(dt.Add(time.Minute)))
}

func TestTrailAdjust(t *testing.T) {
	t.Run("sell stop follows price up only", func(t *testing.T) {
		o := NewOrder("X", -1, KindStopTrail, 0)
		o.TrailAmount = 2
		o.TrailAdjust(100)
		assert.Equal(t, 98.0, o.Created.Price)
		o.TrailAdjust(105)
		assert.Equal(t, 103.0, o.Created.Price)
		o.TrailAdjust(101)
		assert.Equal(t, 103.0, o.Created.Price)
	})

	t.Run("buy stop limit keeps offset", func(t *testing.T) {
		o := NewOrder("X", 1, KindStopTrailLimit, 0)
		o.TrailPercent = 0.1
		o.LimitOffset = 1
		o.TrailAdjust(100)
		assert.InDelta(t, 110, o.Created.Price, 1e-9)
		assert.InDelta(t, 111, o.PriceLimit, 1e-9)
		o.TrailAdjust(90)
		assert.InDelta(t, 99, o.Created.Price, 1e-9)
		assert.InDelta(t, 100, o.PriceLimit, 1e-9)
	})
}
