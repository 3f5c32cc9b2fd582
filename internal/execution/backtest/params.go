package backtest

// Params configures a Broker. The zero value is not useful, start from DefaultParams.
type Params struct {
	Cash float64

	// CheckSubmit rejects orders the current cash cannot carry.
	CheckSubmit bool

	SlipPerc  float64 // 0.01 is 1%
	SlipFixed float64 // used only when SlipPerc is 0
	SlipOpen  bool    // slip fills done at the bar open
	SlipMatch bool    // clamp slipped prices to the bar high/low
	SlipLimit bool    // let limit orders match at their price when slippage overshoots
	SlipOut   bool    // allow slipped prices outside the bar when SlipMatch is off

	CheatOnClose bool // market orders fill at the close of the bar they were created in
	CheatOnOpen  bool // orders created before Next may fill at the same bar open

	Int2PnL   bool // fold charged interest into the closing commission
	ShortCash bool // short stocklike sales credit cash

	FundStartVal float64
	FundMode     bool
}

// DefaultParams mirrors a conservative simulation: cash check on,
// no slippage, short sales credited to cash.
func DefaultParams() Params {
	return Params{
		Cash:         10000,
		CheckSubmit:  true,
		SlipMatch:    true,
		SlipLimit:    true,
		Int2PnL:      true,
		ShortCash:    true,
		FundStartVal: 100,
	}
}
