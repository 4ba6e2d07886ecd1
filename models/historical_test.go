package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceTrendPoint_WireShape(t *testing.T) {
	point := PriceTrendPoint{
		Month:       "2026-03",
		AvgPrice:    decimal.NewFromFloat(101.5),
		MinPrice:    decimal.NewFromInt(95),
		MaxPrice:    decimal.NewFromInt(110),
		RecordCount: 4,
	}
	raw, err := json.Marshal(point)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"month", "avg_price", "min_price", "max_price", "record_count"} {
		if _, ok := got[key]; !ok {
			t.Errorf("trend point is missing the %q field", key)
		}
	}
	if string(got["min_price"]) != `"95"` {
		t.Fatalf("min_price = %s", got["min_price"])
	}
	if string(got["max_price"]) != `"110"` {
		t.Fatalf("max_price = %s", got["max_price"])
	}
}
