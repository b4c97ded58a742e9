package application

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

func TestExportWorkbook(t *testing.T) {
	market := &fakeMarket{latest: day("2024-01-05")}
	results := &fakeResults{
		results: []domain.IndexResult{
			{Date: day("2024-01-02"), IndexValue: decimal.NewFromFloat(100)},
			{
				Date:        day("2024-01-03"),
				IndexValue:  decimal.NewFromFloat(110),
				DailyReturn: decimal.NewNullDecimal(decimal.NewFromFloat(0.1)),
			},
		},
		composition: []domain.CompositionEntry{
			{Date: day("2024-01-02"), Ticker: "AAA", Weight: decimal.NewFromFloat(0.5)},
			{Date: day("2024-01-02"), Ticker: "BBB", Weight: decimal.NewFromFloat(0.5)},
			{Date: day("2024-01-03"), Ticker: "AAA", Weight: decimal.NewFromFloat(0.5)},
			{Date: day("2024-01-03"), Ticker: "CCC", Weight: decimal.NewFromFloat(0.5)},
		},
	}
	svc := NewIndexQueryService(market, results, newFakeProvider(), 4)
	ctx := context.Background()

	t.Run("writes all three sheets", func(t *testing.T) {
		workbook, err := svc.ExportWorkbook(ctx, day("2024-01-02"), day("2024-01-03"))
		if err != nil {
			t.Fatalf("ExportWorkbook: %v", err)
		}
		defer workbook.Close()

		for _, sheet := range []string{sheetPerformance, sheetComposition, sheetChanges} {
			if idx, err := workbook.GetSheetIndex(sheet); err != nil || idx < 0 {
				t.Errorf("sheet %q missing (idx=%d, err=%v)", sheet, idx, err)
			}
		}

		got, err := workbook.GetCellValue(sheetPerformance, "A2")
		if err != nil {
			t.Fatalf("GetCellValue: %v", err)
		}
		if got != "2024-01-02" {
			t.Errorf("performance A2 = %q, want 2024-01-02", got)
		}

		got, err = workbook.GetCellValue(sheetChanges, "A2")
		if err != nil {
			t.Fatalf("GetCellValue: %v", err)
		}
		if got != "2024-01-03" {
			t.Errorf("changes A2 = %q, want 2024-01-03", got)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		_, err := svc.ExportWorkbook(ctx, day("2024-06-01"), day("2024-06-30"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("reversed range", func(t *testing.T) {
		_, err := svc.ExportWorkbook(ctx, day("2024-01-03"), day("2024-01-02"))
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("err = %v, want ErrInvalidRange", err)
		}
	})
}
