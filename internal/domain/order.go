package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderKind is the execution type of an order.
type OrderKind int

const (
	KindMarket OrderKind = iota
	KindClose
	KindLimit
	KindStop
	KindStopLimit
	KindStopTrail
	KindStopTrailLimit
)

var kindNames = [...]string{"Market", "Close", "Limit", "Stop", "StopLimit", "StopTrail", "StopTrailLimit"}

func (k OrderKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// IsStop reports whether the kind waits for a trigger price.
func (k OrderKind) IsStop() bool {
	return k == KindStop || k == KindStopLimit || k == KindStopTrail || k == KindStopTrailLimit
}

// Status is the lifecycle state of an order.
type Status int

const (
	StatusCreated Status = iota
	StatusSubmitted
	StatusAccepted
	StatusPartial
	StatusCompleted
	StatusCanceled
	StatusExpired
	StatusMargin
	StatusRejected
)

var statusNames = [...]string{
	"Created", "Submitted", "Accepted", "Partial", "Completed",
	"Canceled", "Expired", "Margin", "Rejected",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusExpired, StatusMargin, StatusRejected:
		return true
	}
	return false
}

// transitions is the complete order state table.
// Partial -> Partial covers a second partial fill.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusSubmitted, StatusRejected},
	StatusSubmitted: {StatusAccepted, StatusRejected, StatusCanceled, StatusMargin},
	StatusAccepted:  {StatusPartial, StatusCompleted, StatusCanceled, StatusExpired, StatusMargin, StatusRejected},
	StatusPartial:   {StatusPartial, StatusCompleted, StatusCanceled, StatusExpired, StatusMargin},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ExecutionBit is a single fill.
// Closed and Opened carry the sign of the order.
type ExecutionBit struct {
	Time        time.Time
	Size        float64
	Price       float64
	Closed      float64
	ClosedValue float64
	ClosedComm  float64
	Opened      float64
	OpenedValue float64
	OpenedComm  float64
	PnL         float64
	PSize       float64 // position size after the fill
	PPrice      float64 // position price after the fill
}

// Value is the cash committed by the fill.
func (b ExecutionBit) Value() float64 { return b.ClosedValue + b.OpenedValue }

// Comm is the total commission charged by the fill.
func (b ExecutionBit) Comm() float64 { return b.ClosedComm + b.OpenedComm }

// ExecutionInfo accumulates fills of one order.
type ExecutionInfo struct {
	Time      time.Time
	Size      float64
	Price     float64 // size-weighted average fill price
	Value     float64
	Comm      float64
	PnL       float64
	PnLComm   float64
	Margin    float64
	Remaining float64
	PSize     float64
	PPrice    float64
	Bits      []ExecutionBit
}

func (e *ExecutionInfo) add(bit ExecutionBit) {
	newSize := e.Size + bit.Size
	if newSize != 0 {
		e.Price = (e.Size*e.Price + bit.Size*bit.Price) / newSize
	}
	e.Size = newSize
	e.Time = bit.Time
	e.Value += bit.Value()
	e.Comm += bit.Comm()
	e.PnL += bit.PnL
	e.PnLComm = e.PnL - e.Comm
	e.Remaining -= bit.Size
	if math.Abs(e.Remaining) < sizeEpsilon {
		e.Remaining = 0
	}
	e.PSize = bit.PSize
	e.PPrice = bit.PPrice
	e.Bits = append(e.Bits, bit)
}

// CreatedInfo captures the market when the order was placed.
type CreatedInfo struct {
	Time  time.Time
	Close float64 // last close seen at creation
	Price float64 // effective trigger/limit price at creation
}

// Order is one request to trade one instrument.
// Size is signed: positive buys, negative sells.
type Order struct {
	Ref        uint64
	Instrument string
	Size       float64
	Kind       OrderKind

	// Price is the limit price for Limit and the trigger for the stop kinds.
	Price      float64
	PriceLimit float64 // limit leg of StopLimit and StopTrailLimit

	TrailAmount  float64
	TrailPercent float64
	LimitOffset  float64 // StopTrailLimit: limit = stop + LimitOffset

	// Valid is the expiry. Zero means good till canceled.
	Valid    time.Time
	ValidDay bool

	Parent uint64 // child executes only once the parent completed
	OCO    uint64 // ref of the group leader, siblings cancel together

	Status    Status
	Reason    string
	Triggered bool
	Created   CreatedInfo
	Executed  ExecutionInfo

	// Venue identifiers for live brokers.
	ClientID string
	VenueID  string
	Info     map[string]string
}

// NewOrder creates an order in the Created state.
func NewOrder(instrument string, size float64, kind OrderKind, price float64) *Order {
	return &Order{
		Instrument: instrument,
		Size:       size,
		Kind:       kind,
		Price:      price,
		Status:     StatusCreated,
		Executed:   ExecutionInfo{Remaining: size},
	}
}

// IsBuy reports the side of the order.
func (o *Order) IsBuy() bool { return o.Size > 0 }

// Alive reports whether the order can still be filled or canceled.
func (o *Order) Alive() bool {
	switch o.Status {
	case StatusCreated, StatusSubmitted, StatusAccepted, StatusPartial:
		return true
	}
	return false
}

// Transition moves the order to status s or returns ErrInvalidTransition.
func (o *Order) Transition(s Status) error {
	if !CanTransition(o.Status, s) {
		return fmt.Errorf("%w: order %d %s -> %s", ErrInvalidTransition, o.Ref, o.Status, s)
	}
	o.Status = s
	return nil
}

// Reject moves the order to Rejected with a reason.
func (o *Order) Reject(reason string) error {
	if err := o.Transition(StatusRejected); err != nil {
		return err
	}
	o.Reason = reason
	return nil
}

// Execute records a fill and moves the order to Partial or Completed.
func (o *Order) Execute(bit ExecutionBit) error {
	if math.Abs(o.Executed.Size+bit.Size) > math.Abs(o.Size)+sizeEpsilon {
		return fmt.Errorf("%w: order %d overfilled", ErrInvalidTransition, o.Ref)
	}
	next := StatusPartial
	if math.Abs(o.Executed.Remaining-bit.Size) < sizeEpsilon {
		next = StatusCompleted
	}
	if err := o.Transition(next); err != nil {
		return err
	}
	o.Executed.add(bit)
	return nil
}

// Expired reports whether the validity passed at now.
func (o *Order) Expired(now time.Time) bool {
	return !o.Valid.IsZero() && now.After(o.Valid)
}

// TrailAdjust moves the trailing stop with price. The stop only tightens.
func (o *Order) TrailAdjust(price float64) {
	var stop float64
	switch {
	case o.TrailAmount != 0:
		if o.IsBuy() {
			stop = price + o.TrailAmount
		} else {
			stop = price - o.TrailAmount
		}
	case o.TrailPercent != 0:
		if o.IsBuy() {
			stop = price * (1 + o.TrailPercent)
		} else {
			stop = price * (1 - o.TrailPercent)
		}
	default:
		stop = price
	}

	if o.Created.Price == 0 || (o.IsBuy() && stop < o.Created.Price) || (!o.IsBuy() && stop > o.Created.Price) {
		o.Created.Price = stop
		if o.Kind == KindStopTrailLimit {
			o.PriceLimit = stop + o.LimitOffset
		}
	}
}

// Clone returns a snapshot that shares no mutable state with o.
func (o *Order) Clone() *Order {
	c := *o
	c.Executed.Bits = append([]ExecutionBit(nil), o.Executed.Bits...)
	if o.Info != nil {
		c.Info = make(map[string]string, len(o.Info))
		for k, v := range o.Info {
			c.Info[k] = v
		}
	}
	return &c
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{ref=%d %s %s size=%g price=%g status=%s executed=%g@%g}",
		o.Ref, o.Instrument, o.Kind, o.Size, o.Price, o.Status, o.Executed.Size, o.Executed.Price)
}
