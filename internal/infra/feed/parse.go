package feed

import (
	"math"
	"strconv"

	"lagarb/internal/domain"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

// ExtractPrice pulls a positive numeric price out of a feed message without
// decoding the rest of it. Objects are read directly; for arrays the last
// element carrying the field wins. Numeric strings are accepted.
func ExtractPrice(venue string, msg []byte, field string) (float64, error) {
	root := json.Get(msg)

	switch root.ValueType() {
	case jsoniter.ObjectValue:
		if p, ok := priceOf(root.Get(field)); ok {
			return p, nil
		}
	case jsoniter.ArrayValue:
		for i := root.Size() - 1; i >= 0; i-- {
			if p, ok := priceOf(root.Get(i, field)); ok {
				return p, nil
			}
		}
	default:
		return 0, &domain.ParseError{Venue: venue, Reason: "not a JSON record"}
	}
	return 0, &domain.ParseError{Venue: venue, Reason: "no usable " + field + " field"}
}

func priceOf(a jsoniter.Any) (float64, bool) {
	var v float64
	switch a.ValueType() {
	case jsoniter.NumberValue:
		v = a.ToFloat64()
	case jsoniter.StringValue:
		f, err := strconv.ParseFloat(a.ToString(), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	// Zero is the warming-up sentinel and must never be published.
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
