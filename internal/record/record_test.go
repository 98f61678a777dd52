package record

import (
	"strconv"
	"strings"
	"testing"
)

func decodeFrame(t *testing.T, pairs ...string) map[string]any {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatal("decodeFrame requires an even number of key/value strings")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

func TestFromDecodedBasicFlow(t *testing.T) {
	m := decodeFrame(t,
		"type", "ticker",
		"product_id", "BTC-USD",
		"price", "50000.00",
		"best_bid", "49999.50",
		"best_ask", "50000.50",
	)
	r, err := FromDecoded(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ProductID != "BTC-USD" {
		t.Errorf("ProductID = %q, want BTC-USD", r.ProductID)
	}
	if r.MidPrice != 50000.0 {
		t.Errorf("MidPrice = %v, want 50000.0", r.MidPrice)
	}
}

func TestFromDecodedRejectsNonTickerType(t *testing.T) {
	m := decodeFrame(t, "type", "subscriptions", "product_id", "BTC-USD", "price", "1")
	if _, err := FromDecoded(m); err != ErrNotTicker {
		t.Fatalf("expected ErrNotTicker, got %v", err)
	}
}

func TestFromDecodedRejectsMissingType(t *testing.T) {
	m := decodeFrame(t, "product_id", "BTC-USD", "price", "1")
	if _, err := FromDecoded(m); err != ErrNotTicker {
		t.Fatalf("expected ErrNotTicker, got %v", err)
	}
}

func TestFromDecodedRejectsMissingProductID(t *testing.T) {
	m := decodeFrame(t, "type", "ticker", "price", "1")
	if _, err := FromDecoded(m); err != ErrNotTicker {
		t.Fatalf("expected ErrNotTicker, got %v", err)
	}
}

func TestFromDecodedRejectsMissingPrice(t *testing.T) {
	m := decodeFrame(t, "type", "ticker", "product_id", "BTC-USD")
	if _, err := FromDecoded(m); err != ErrNotTicker {
		t.Fatalf("expected ErrNotTicker, got %v", err)
	}
}

func TestFromDecodedAcceptsPresentButEmptyProductIDAndPrice(t *testing.T) {
	m := decodeFrame(t, "type", "ticker", "product_id", "", "price", "")
	r, err := FromDecoded(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ProductID != "" || r.Price != "" {
		t.Errorf("expected empty-but-present fields to be accepted, got %+v", r)
	}
}

func TestFromDecodedMissingOptionalFieldsDefaultEmpty(t *testing.T) {
	m := decodeFrame(t, "type", "ticker", "product_id", "BTC-USD", "price", "1")
	r, err := FromDecoded(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Sequence != "" || r.Side != "" || r.TradeID != "" {
		t.Errorf("expected missing optional fields to default to empty string, got %+v", r)
	}
}

func TestFromDecodedNumericTokenStringified(t *testing.T) {
	m := map[string]any{
		"type":       "ticker",
		"product_id": "BTC-USD",
		"price":      50000.5,
	}
	r, err := FromDecoded(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Price != "50000.5" {
		t.Errorf("Price = %q, want 50000.5", r.Price)
	}
}

func TestMidPriceFromFieldsParseFailureYieldsZero(t *testing.T) {
	r := Record{BestBid: "not-a-number", BestAsk: "49999.50"}
	if got := r.MidPriceFromFields(); got != 0 {
		t.Errorf("MidPriceFromFields() = %v, want 0", got)
	}
}

func TestToRowFieldCount(t *testing.T) {
	r := Record{}
	row := r.ToRow()
	if n := strings.Count(row, ","); n != 17 {
		t.Errorf("ToRow() has %d commas, want 17 (18 fields)", n)
	}
}

func TestToRowEscapesCommaQuoteNewline(t *testing.T) {
	r := Record{Type: "ticker", Sequence: `has,comma`, ProductID: `has"quote`, Side: "has\nnewline"}
	row := r.ToRow()
	fields := strings.Split(row, ",")
	_ = fields
	if !strings.Contains(row, `"has,comma"`) {
		t.Errorf("expected comma-containing field to be quoted, got %q", row)
	}
	if !strings.Contains(row, `"has""quote"`) {
		t.Errorf("expected embedded quote to be doubled, got %q", row)
	}
	if !strings.Contains(row, "\"has\nnewline\"") {
		t.Errorf("expected newline-containing field to be quoted, got %q", row)
	}
}

func TestToRowFormatsRealFieldsWithEightDecimals(t *testing.T) {
	r := Record{PriceEMA: 50000, MidPriceEMA: 133.333333333, MidPrice: 0}
	row := r.ToRow()
	if !strings.Contains(row, "50000.00000000") {
		t.Errorf("expected price_ema formatted to 8 decimals, got %q", row)
	}
	if !strings.Contains(row, "133.33333333") {
		t.Errorf("expected mid_price_ema formatted to 8 decimals, got %q", row)
	}
	if !strings.Contains(row, "0.00000000") {
		t.Errorf("expected mid_price formatted to 8 decimals, got %q", row)
	}
}

func TestHeaderMatchesFixedFieldOrder(t *testing.T) {
	want := "type,sequence,product_id,price,open_24h,volume_24h,low_24h,high_24h," +
		"volume_30d,best_bid,best_ask,side,time,trade_id,last_size," +
		"price_ema,mid_price_ema,mid_price"
	if Header() != want {
		t.Errorf("Header() = %q, want %q", Header(), want)
	}
}

func TestRowRoundTripIdempotent(t *testing.T) {
	m := decodeFrame(t,
		"type", "ticker",
		"product_id", "ETH-USD",
		"price", "3000.12345678",
		"best_bid", "2999.99",
		"best_ask", "3000.25",
	)
	r, err := FromDecoded(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.PriceEMA = 3000.12345678
	r.MidPriceEMA = 3000.12
	first := r.ToRow()

	// Parse the emitted row back into a Record (all fields are safe, so a
	// plain comma split recovers them) and re-emit it.
	cols := strings.Split(first, ",")
	if len(cols) != 18 {
		t.Fatalf("ToRow() produced %d fields, want 18: %q", len(cols), first)
	}
	parsed := Record{
		Type: cols[0], Sequence: cols[1], ProductID: cols[2], Price: cols[3],
		Open24h: cols[4], Volume24h: cols[5], Low24h: cols[6], High24h: cols[7],
		Volume30d: cols[8], BestBid: cols[9], BestAsk: cols[10], Side: cols[11],
		Time: cols[12], TradeID: cols[13], LastSize: cols[14],
	}
	parsed.PriceEMA, _ = strconv.ParseFloat(cols[15], 64)
	parsed.MidPriceEMA, _ = strconv.ParseFloat(cols[16], 64)
	parsed.MidPrice, _ = strconv.ParseFloat(cols[17], 64)

	second := parsed.ToRow()
	if first != second {
		t.Errorf("row round-trip is not idempotent: %q != %q", first, second)
	}
}

func TestParseEventTimeFallsBackOnEmpty(t *testing.T) {
	r := Record{}
	before := parseEventTime(r.Time)
	if before.IsZero() {
		t.Error("expected fallback wall-clock time, got zero value")
	}
}

// unescapeCSVField is the test-only inverse of escapeCSVField, used to
// check the round-trip property on fuzzed input rather than hand-counting
// commas, which breaks once a field legitimately contains one.
func unescapeCSVField(field string) string {
	if len(field) < 2 || field[0] != '"' || field[len(field)-1] != '"' {
		return field
	}
	return strings.ReplaceAll(field[1:len(field)-1], `""`, `"`)
}

func FuzzEscapeCSVFieldRoundTrips(f *testing.F) {
	f.Add("plain")
	f.Add(`has,comma`)
	f.Add(`has"quote`)
	f.Add("has\nnewline")
	f.Add(`"already,quoted"`)
	f.Fuzz(func(t *testing.T, s string) {
		escaped := escapeCSVField(s)
		if got := unescapeCSVField(escaped); got != s {
			t.Errorf("escapeCSVField(%q) = %q, round-trip got %q", s, escaped, got)
		}
	})
}

func TestParseEventTimeAcceptsISO8601WithZ(t *testing.T) {
	m := decodeFrame(t,
		"type", "ticker",
		"product_id", "BTC-USD",
		"price", "1",
		"time", "2024-01-01T00:00:00.000000Z",
	)
	r, err := FromDecoded(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.EventTime.Year() != 2024 {
		t.Errorf("EventTime = %v, want year 2024", r.EventTime)
	}
}
