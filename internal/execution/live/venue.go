package live

import (
	"errors"
	"fmt"
	"math"

	"quantbroker/internal/domain"
)

// ErrUnsupportedKind is returned when a venue has no mapping for an order kind.
var ErrUnsupportedKind = errors.New("unsupported order kind")

// Fields names the payload keys a venue uses.
type Fields struct {
	Instrument string
	Side       string // empty when the size sign encodes the side
	Kind       string
	Size       string
	Price      string
	StopPrice  string
	ClientID   string
	VenueID    string
	Offset     string // open/close flag, empty when the venue nets positions

	Status   string
	Filled   string
	AvgPrice string
	Error    string

	Cash     string
	Value    string
	Currency string // empty when balances are always in Base

	PosInstrument string
	PosSize       string
	PosPrice      string
	PosSide       string // empty when the position size is signed
}

// Venue is the field mapping between the order model and one venue's
// payloads. It holds data only, every venue shares the same Adapter.
type Venue struct {
	Name   string
	Base   string // account currency
	Fields Fields

	Buy, Sell string
	Kinds     map[domain.OrderKind]string
	Statuses  map[string]domain.Status

	OffsetOpen, OffsetClose string
	PosShort                string // PosSide value of a short position

	// Static fields are copied into every create request.
	Static domain.Payload
}

// orderUpdate is a venue order report in model terms.
type orderUpdate struct {
	ClientID string
	VenueID  string
	Status   domain.Status
	Known    bool    // Status was present and mapped
	Filled   float64 // cumulative, unsigned
	AvgPrice float64
	Reason   string
}

// Request builds the create payload for o. position is the current size of
// the instrument and decides the offset flag on venues that need one.
func (v *Venue) Request(o *domain.Order, position float64) (domain.Payload, error) {
	kind, ok := v.Kinds[o.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s orders", ErrUnsupportedKind, v.Name, o.Kind)
	}

	f := v.Fields
	req := make(domain.Payload, len(v.Static)+8)
	for k, val := range v.Static {
		req[k] = val
	}
	req[f.Instrument] = o.Instrument
	req[f.Kind] = kind
	req[f.ClientID] = o.ClientID

	if f.Side == "" {
		req[f.Size] = formatNumber(o.Size)
	} else {
		req[f.Side] = v.Sell
		if o.IsBuy() {
			req[f.Side] = v.Buy
		}
		req[f.Size] = formatNumber(math.Abs(o.Size))
	}

	switch o.Kind {
	case domain.KindLimit:
		req[f.Price] = formatNumber(o.Price)
	case domain.KindStop:
		req[f.StopPrice] = formatNumber(o.Price)
	case domain.KindStopLimit:
		req[f.StopPrice] = formatNumber(o.Price)
		req[f.Price] = formatNumber(o.PriceLimit)
	}

	if f.Offset != "" {
		closing := position != 0 && (position > 0) != o.IsBuy() && math.Abs(o.Size) <= math.Abs(position)
		req[f.Offset] = v.OffsetOpen
		if closing {
			req[f.Offset] = v.OffsetClose
		}
	}
	return req, nil
}

// CancelRequest identifies o for a cancel.
func (v *Venue) CancelRequest(o *domain.Order) domain.Payload {
	return v.identify(o)
}

// FetchRequest identifies o for a status poll.
func (v *Venue) FetchRequest(o *domain.Order) domain.Payload {
	return v.identify(o)
}

func (v *Venue) identify(o *domain.Order) domain.Payload {
	f := v.Fields
	req := domain.Payload{
		f.Instrument: o.Instrument,
		f.ClientID:   o.ClientID,
	}
	if o.VenueID != "" {
		req[f.VenueID] = o.VenueID
	}
	return req
}

// ParseOrder reads an order report. A filled error field turns the report
// into a rejection.
func (v *Venue) ParseOrder(p domain.Payload) (orderUpdate, error) {
	f := v.Fields
	u := orderUpdate{
		ClientID: stringOf(p[f.ClientID]),
		VenueID:  stringOf(p[f.VenueID]),
	}

	if msg := stringOf(p[f.Error]); msg != "" {
		u.Status, u.Known, u.Reason = domain.StatusRejected, true, msg
		return u, nil
	}

	if raw := stringOf(p[f.Status]); raw != "" {
		status, ok := v.Statuses[raw]
		if !ok {
			return u, fmt.Errorf("%s: unknown order status %q", v.Name, raw)
		}
		u.Status, u.Known = status, true
	}

	filled, err := floatOf(p[f.Filled])
	if err != nil {
		return u, fmt.Errorf("%s: filled: %w", v.Name, err)
	}
	u.Filled = math.Abs(filled)

	if u.AvgPrice, err = floatOf(p[f.AvgPrice]); err != nil {
		return u, fmt.Errorf("%s: average price: %w", v.Name, err)
	}
	return u, nil
}

// ParseBalance reads one balance report. Free is the cash available for
// trading and Total falls back to it.
func (v *Venue) ParseBalance(p domain.Payload) (domain.Balance, error) {
	f := v.Fields
	b := domain.Balance{Currency: stringOf(p[f.Currency])}
	if b.Currency == "" {
		b.Currency = v.Base
	}

	var err error
	if b.Free, err = decimalOf(p[f.Cash]); err != nil {
		return b, fmt.Errorf("%s: cash: %w", v.Name, err)
	}
	if b.Total, err = decimalOf(p[f.Value]); err != nil {
		return b, fmt.Errorf("%s: value: %w", v.Name, err)
	}
	if b.Total.IsZero() {
		b.Total = b.Free
	}
	return b, nil
}

// ParsePosition reads one position report with a signed size.
func (v *Venue) ParsePosition(p domain.Payload) (instrument string, pos domain.Position, err error) {
	f := v.Fields
	instrument = stringOf(p[f.PosInstrument])
	if instrument == "" {
		return "", pos, fmt.Errorf("%s: position without instrument", v.Name)
	}
	if pos.Size, err = floatOf(p[f.PosSize]); err != nil {
		return "", pos, fmt.Errorf("%s: position size: %w", v.Name, err)
	}
	if pos.Price, err = floatOf(p[f.PosPrice]); err != nil {
		return "", pos, fmt.Errorf("%s: position price: %w", v.Name, err)
	}
	if f.PosSide != "" {
		pos.Size = math.Abs(pos.Size)
		if stringOf(p[f.PosSide]) == v.PosShort {
			pos.Size = -pos.Size
		}
	}
	if pos.Size == 0 {
		pos.Price = 0
	}
	return instrument, pos, nil
}
