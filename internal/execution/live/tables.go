package live

import (
	"fmt"
	"sort"

	"quantbroker/internal/domain"
)

// Crypto follows the unified exchange-library order shape.
var Crypto = &Venue{
	Name: "crypto",
	Base: "USDT",
	Fields: Fields{
		Instrument:    "symbol",
		Side:          "side",
		Kind:          "type",
		Size:          "amount",
		Price:         "price",
		StopPrice:     "stopPrice",
		ClientID:      "clientOrderId",
		VenueID:       "id",
		Status:        "status",
		Filled:        "filled",
		AvgPrice:      "average",
		Error:         "error",
		Cash:          "free",
		Value:         "total",
		Currency:      "currency",
		PosInstrument: "symbol",
		PosSize:       "contracts",
		PosPrice:      "entryPrice",
		PosSide:       "side",
	},
	Buy:  "buy",
	Sell: "sell",
	Kinds: map[domain.OrderKind]string{
		domain.KindMarket:    "market",
		domain.KindLimit:     "limit",
		domain.KindStop:      "stop",
		domain.KindStopLimit: "stop_limit",
	},
	Statuses: map[string]domain.Status{
		"open":     domain.StatusAccepted,
		"closed":   domain.StatusCompleted,
		"canceled": domain.StatusCanceled,
		"expired":  domain.StatusExpired,
		"rejected": domain.StatusRejected,
	},
	PosShort: "short",
}

// Futures follows the exchange gateway field set used by domestic futures
// brokers: direction and offset flags, single character status codes.
var Futures = &Venue{
	Name: "futures",
	Base: "CNY",
	Fields: Fields{
		Instrument:    "InstrumentID",
		Side:          "Direction",
		Kind:          "OrderPriceType",
		Size:          "VolumeTotalOriginal",
		Price:         "LimitPrice",
		StopPrice:     "StopPrice",
		ClientID:      "OrderRef",
		VenueID:       "OrderSysID",
		Offset:        "CombOffsetFlag",
		Status:        "OrderStatus",
		Filled:        "VolumeTraded",
		AvgPrice:      "AvgPrice",
		Error:         "ErrorMsg",
		Cash:          "Available",
		Value:         "Balance",
		Currency:      "CurrencyID",
		PosInstrument: "InstrumentID",
		PosSize:       "Position",
		PosPrice:      "OpenPrice",
		PosSide:       "PosiDirection",
	},
	Buy:  "0",
	Sell: "1",
	Kinds: map[domain.OrderKind]string{
		domain.KindMarket: "1", // any price
		domain.KindLimit:  "2",
	},
	Statuses: map[string]domain.Status{
		"0": domain.StatusCompleted, // all traded
		"1": domain.StatusPartial,   // part traded, queueing
		"2": domain.StatusCanceled,  // part traded, not queueing
		"3": domain.StatusAccepted,  // no trade, queueing
		"4": domain.StatusRejected,  // no trade, not queueing
		"5": domain.StatusCanceled,
		"a": domain.StatusSubmitted,
		"b": domain.StatusAccepted, // not touched
		"c": domain.StatusAccepted, // touched
	},
	OffsetOpen:  "0",
	OffsetClose: "1",
	PosShort:    "3",
	Static: domain.Payload{
		"CombHedgeFlag":   "1",
		"TimeCondition":   "3",
		"VolumeCondition": "1",
	},
}

// Forex encodes the side in the sign of the units.
var Forex = &Venue{
	Name: "forex",
	Base: "USD",
	Fields: Fields{
		Instrument:    "instrument",
		Kind:          "type",
		Size:          "units",
		Price:         "price",
		StopPrice:     "price",
		ClientID:      "clientRequestID",
		VenueID:       "id",
		Status:        "state",
		Filled:        "filledUnits",
		AvgPrice:      "averagePrice",
		Error:         "rejectReason",
		Cash:          "marginAvailable",
		Value:         "NAV",
		Currency:      "currency",
		PosInstrument: "instrument",
		PosSize:       "units",
		PosPrice:      "averagePrice",
	},
	Kinds: map[domain.OrderKind]string{
		domain.KindMarket: "MARKET",
		domain.KindLimit:  "LIMIT",
		domain.KindStop:   "STOP",
	},
	Statuses: map[string]domain.Status{
		"PENDING":   domain.StatusAccepted,
		"TRIGGERED": domain.StatusAccepted,
		"FILLED":    domain.StatusCompleted,
		"CANCELLED": domain.StatusCanceled,
	},
	Static: domain.Payload{"timeInForce": "GTC"},
}

// Brokerage follows the multi-asset brokerage gateway vocabulary.
var Brokerage = &Venue{
	Name: "brokerage",
	Base: "USD",
	Fields: Fields{
		Instrument:    "symbol",
		Side:          "action",
		Kind:          "orderType",
		Size:          "totalQuantity",
		Price:         "lmtPrice",
		StopPrice:     "auxPrice",
		ClientID:      "orderRef",
		VenueID:       "orderId",
		Status:        "status",
		Filled:        "filled",
		AvgPrice:      "avgFillPrice",
		Error:         "errorString",
		Cash:          "TotalCashValue",
		Value:         "NetLiquidation",
		Currency:      "currency",
		PosInstrument: "symbol",
		PosSize:       "position",
		PosPrice:      "avgCost",
	},
	Buy:  "BUY",
	Sell: "SELL",
	Kinds: map[domain.OrderKind]string{
		domain.KindMarket:    "MKT",
		domain.KindClose:     "MOC",
		domain.KindLimit:     "LMT",
		domain.KindStop:      "STP",
		domain.KindStopLimit: "STP LMT",
	},
	Statuses: map[string]domain.Status{
		"PendingSubmit": domain.StatusSubmitted,
		"ApiPending":    domain.StatusSubmitted,
		"PreSubmitted":  domain.StatusAccepted,
		"Submitted":     domain.StatusAccepted,
		"PendingCancel": domain.StatusAccepted,
		"Filled":        domain.StatusCompleted,
		"Cancelled":     domain.StatusCanceled,
		"ApiCancelled":  domain.StatusCanceled,
		"Inactive":      domain.StatusRejected,
	},
	Static: domain.Payload{"tif": "GTC"},
}

// Charting uses the numeric codes of a charting platform trading bridge.
var Charting = &Venue{
	Name: "charting",
	Base: "EUR",
	Fields: Fields{
		Instrument:    "SymbolCode",
		Side:          "OrderSide",
		Kind:          "OrderType",
		Size:          "Units",
		Price:         "Price",
		StopPrice:     "StopPrice",
		ClientID:      "UserOrderId",
		VenueID:       "OrderId",
		Status:        "Status",
		Filled:        "ExecUnits",
		AvgPrice:      "ExecPrice",
		Error:         "ErrorText",
		Cash:          "Cash",
		Value:         "Equity",
		Currency:      "Currency",
		PosInstrument: "SymbolCode",
		PosSize:       "Units",
		PosPrice:      "Price",
	},
	Buy:  "1",
	Sell: "2",
	Kinds: map[domain.OrderKind]string{
		domain.KindMarket:    "1",
		domain.KindLimit:     "2",
		domain.KindStop:      "3",
		domain.KindStopLimit: "4",
		domain.KindClose:     "5",
	},
	Statuses: map[string]domain.Status{
		"0": domain.StatusSubmitted,
		"1": domain.StatusAccepted,
		"2": domain.StatusPartial,
		"3": domain.StatusCompleted,
		"4": domain.StatusCanceled,
		"5": domain.StatusRejected,
		"6": domain.StatusExpired,
	},
}

var venues = map[string]*Venue{
	Crypto.Name:    Crypto,
	Futures.Name:   Futures,
	Forex.Name:     Forex,
	Brokerage.Name: Brokerage,
	Charting.Name:  Charting,
}

// VenueByName returns the mapping table registered under name.
func VenueByName(name string) (*Venue, error) {
	if v, ok := venues[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown venue %q, expected one of %v", name, VenueNames())
}

// VenueNames lists the registered venues in order.
func VenueNames() []string {
	names := make([]string, 0, len(venues))
	for n := range venues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
