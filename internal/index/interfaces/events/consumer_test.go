package events

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/equityindex/pkg/mq"
)

func barMessage(t *testing.T, event PriceBarEvent) *mq.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &mq.Message{Topic: "market.bars", Key: event.Ticker, Value: payload}
}

func TestToPriceBar(t *testing.T) {
	t.Run("valid event", func(t *testing.T) {
		msg := barMessage(t, PriceBarEvent{
			Ticker:    "AAA",
			Date:      "2024-01-02",
			Open:      9.5,
			High:      10.5,
			Low:       9.0,
			Close:     10.0,
			Volume:    12345,
			MarketCap: 1000,
		})

		bar, err := toPriceBar(msg)
		if err != nil {
			t.Fatalf("toPriceBar: %v", err)
		}
		if bar.Ticker != "AAA" {
			t.Errorf("ticker = %s, want AAA", bar.Ticker)
		}
		if got := bar.Date.Format("2006-01-02"); got != "2024-01-02" {
			t.Errorf("date = %s, want 2024-01-02", got)
		}
		if !bar.Close.Equal(decimal.NewFromInt(10)) {
			t.Errorf("close = %s, want 10", bar.Close)
		}
		if bar.Volume != 12345 {
			t.Errorf("volume = %d, want 12345", bar.Volume)
		}
	})

	t.Run("bad date", func(t *testing.T) {
		msg := barMessage(t, PriceBarEvent{Ticker: "AAA", Date: "01/02/2024"})
		if _, err := toPriceBar(msg); err == nil {
			t.Error("expected an error for a malformed date")
		}
	})

	t.Run("bad payload", func(t *testing.T) {
		msg := &mq.Message{Topic: "market.bars", Value: []byte("not json")}
		if _, err := toPriceBar(msg); err == nil {
			t.Error("expected an error for a malformed payload")
		}
	})
}
