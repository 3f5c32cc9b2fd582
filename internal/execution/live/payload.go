package live

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// decimalOf reads a numeric payload value. Venues send numbers as JSON
// numbers or strings, both are accepted. A missing value is zero.
func decimalOf(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case string:
		if x == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(x)
	case json.Number:
		return decimal.NewFromString(x.String())
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric value %T", v)
	}
}

func floatOf(v any) (float64, error) {
	d, err := decimalOf(v)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// stringOf renders a payload value as a lookup key, so numeric status
// codes and their string form map to the same table entry.
func stringOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// formatNumber renders a float without binary noise for a request.
func formatNumber(f float64) string {
	return decimal.NewFromFloat(f).String()
}
