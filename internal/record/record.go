// Package record implements the normalized ticker record (C2): its
// construction from a decoded frame, and its line serialization into the
// tabular log format the persistence stage appends.
package record

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotTicker is returned by FromDecoded when the frame's type field is
// absent or not "ticker", or a required field is missing.
var ErrNotTicker = errors.New("record: not a ticker frame")

// Record is one decoded ticker event. Transport fields are preserved
// verbatim as strings for audit fidelity; only price_ema and mid_price_ema
// are ever mutated after construction, and only by the compute stage.
type Record struct {
	Type      string
	Sequence  string
	ProductID string
	Price     string
	Open24h   string
	Volume24h string
	Low24h    string
	High24h   string
	Volume30d string
	BestBid   string
	BestAsk   string
	Side      string
	Time      string
	TradeID   string
	LastSize  string

	MidPrice float64

	PriceEMA    float64
	MidPriceEMA float64

	// EventTime is the wall-clock instant the compute stage gates on. It is
	// parsed once at construction and never recomputed downstream.
	EventTime time.Time
}

// header is the transport field order used in both the header row and
// every data row; the three derived real-valued columns follow it.
const header = "type,sequence,product_id,price,open_24h,volume_24h,low_24h,high_24h," +
	"volume_30d,best_bid,best_ask,side,time,trade_id,last_size," +
	"price_ema,mid_price_ema,mid_price"

// Header returns the fixed CSV header row, without a trailing newline.
func Header() string {
	return header
}

// stringField coerces a decoded JSON value into the transport string form:
// strings pass through verbatim, numbers are stringified so numeric tokens
// in the wire format survive as the same text a string-typed token would
// have produced.
func stringField(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// FromDecoded constructs a Record from a decoded frame's key/value map.
// It returns ErrNotTicker if type is absent or not "ticker", or if
// product_id or price is missing. All other fields default to the empty
// string when absent.
func FromDecoded(m map[string]any) (Record, error) {
	typ, ok := stringField(m["type"])
	if !ok || typ != "ticker" {
		return Record{}, ErrNotTicker
	}
	productID, ok := stringField(m["product_id"])
	if !ok {
		return Record{}, ErrNotTicker
	}
	price, ok := stringField(m["price"])
	if !ok {
		return Record{}, ErrNotTicker
	}

	r := Record{
		Type:      typ,
		ProductID: productID,
		Price:     price,
	}
	r.Sequence, _ = stringField(m["sequence"])
	r.Open24h, _ = stringField(m["open_24h"])
	r.Volume24h, _ = stringField(m["volume_24h"])
	r.Low24h, _ = stringField(m["low_24h"])
	r.High24h, _ = stringField(m["high_24h"])
	r.Volume30d, _ = stringField(m["volume_30d"])
	r.BestBid, _ = stringField(m["best_bid"])
	r.BestAsk, _ = stringField(m["best_ask"])
	r.Side, _ = stringField(m["side"])
	r.Time, _ = stringField(m["time"])
	r.TradeID, _ = stringField(m["trade_id"])
	r.LastSize, _ = stringField(m["last_size"])

	r.MidPrice = r.MidPriceFromFields()
	r.EventTime = parseEventTime(r.Time)

	return r, nil
}

// MidPriceFromFields computes (best_bid + best_ask) / 2, returning 0 if
// either side fails to parse as a decimal.
func (r Record) MidPriceFromFields() float64 {
	bid, err := decimal.NewFromString(r.BestBid)
	if err != nil {
		return 0
	}
	ask, err := decimal.NewFromString(r.BestAsk)
	if err != nil {
		return 0
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	v, _ := mid.Float64()
	return v
}

// parseEventTime parses an ISO-8601 timestamp with an optional trailing Z,
// falling back to the current wall clock on failure.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// escapeCSVField wraps value in double quotes, doubling any embedded
// quotes, iff it contains a comma, a quote, or a newline.
func escapeCSVField(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		var b strings.Builder
		b.WriteByte('"')
		for i := 0; i < len(value); i++ {
			c := value[i]
			if c == '"' {
				b.WriteByte('"')
			}
			b.WriteByte(c)
		}
		b.WriteByte('"')
		return b.String()
	}
	return value
}

func formatReal(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// ToRow renders the record as a single comma-separated text line, with no
// trailing newline, in the fixed field order matching Header(). It always
// emits 17 commas (18 fields).
func (r Record) ToRow() string {
	fields := []string{
		escapeCSVField(r.Type),
		escapeCSVField(r.Sequence),
		escapeCSVField(r.ProductID),
		escapeCSVField(r.Price),
		escapeCSVField(r.Open24h),
		escapeCSVField(r.Volume24h),
		escapeCSVField(r.Low24h),
		escapeCSVField(r.High24h),
		escapeCSVField(r.Volume30d),
		escapeCSVField(r.BestBid),
		escapeCSVField(r.BestAsk),
		escapeCSVField(r.Side),
		escapeCSVField(r.Time),
		escapeCSVField(r.TradeID),
		escapeCSVField(r.LastSize),
		formatReal(r.PriceEMA),
		formatReal(r.MidPriceEMA),
		formatReal(r.MidPrice),
	}
	return strings.Join(fields, ",")
}
