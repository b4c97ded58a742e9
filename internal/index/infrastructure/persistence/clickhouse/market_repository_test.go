package clickhouse

import (
	"testing"
	"time"
)

func TestNormalizeLatest(t *testing.T) {
	t.Run("zero time stays zero", func(t *testing.T) {
		if got := normalizeLatest(time.Time{}); !got.IsZero() {
			t.Errorf("normalizeLatest(zero) = %v, want zero", got)
		}
	})

	t.Run("date column default means empty store", func(t *testing.T) {
		epoch := time.Unix(0, 0).UTC()
		if got := normalizeLatest(epoch); !got.IsZero() {
			t.Errorf("normalizeLatest(1970-01-01) = %v, want zero", got)
		}
	})

	t.Run("real date is normalized to utc midnight", func(t *testing.T) {
		latest := time.Date(2024, 1, 3, 15, 30, 0, 0, time.UTC)
		got := normalizeLatest(latest)
		want := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("normalizeLatest = %v, want %v", got, want)
		}
	})
}
