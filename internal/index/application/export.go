package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

const (
	sheetPerformance = "Index Performance"
	sheetComposition = "Index Composition"
	sheetChanges     = "Composition Changes"
)

// ExportWorkbook 把区间内的指数表现、成分与成分变动导出为 xlsx 工作簿。
// 只导出已物化的结果，不触发计算。
func (s *IndexQueryService) ExportWorkbook(ctx context.Context, start, end time.Time) (*excelize.File, error) {
	start = domain.NormalizeDate(start)
	end = domain.NormalizeDate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidRange)
	}

	results, err := s.results.ListResults(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no performance data in range", domain.ErrNotFound)
	}

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", sheetPerformance)

	if err := writePerformanceSheet(f, results); err != nil {
		return nil, err
	}

	composition, err := s.results.ListComposition(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(composition) > 0 {
		if err := writeCompositionSheet(f, composition); err != nil {
			return nil, err
		}
		if err := writeChangesSheet(f, diffCompositions(composition)); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func writePerformanceSheet(f *excelize.File, results []domain.IndexResult) error {
	if err := setRow(f, sheetPerformance, 1, "Date", "Index Value", "Daily Return", "Cumulative Return"); err != nil {
		return err
	}

	cumulative := decimal.NewFromInt(1)
	one := decimal.NewFromInt(1)
	for i, result := range results {
		var dailyReturn any
		if result.DailyReturn.Valid {
			cumulative = cumulative.Mul(one.Add(result.DailyReturn.Decimal))
			dailyReturn = result.DailyReturn.Decimal.InexactFloat64()
		}
		err := setRow(f, sheetPerformance, i+2,
			domain.DateKey(result.Date),
			result.IndexValue.InexactFloat64(),
			dailyReturn,
			cumulative.Sub(one).InexactFloat64(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeCompositionSheet(f *excelize.File, entries []domain.CompositionEntry) error {
	if _, err := f.NewSheet(sheetComposition); err != nil {
		return err
	}
	if err := setRow(f, sheetComposition, 1, "Date", "Ticker", "Weight"); err != nil {
		return err
	}
	for i, entry := range entries {
		err := setRow(f, sheetComposition, i+2,
			domain.DateKey(entry.Date),
			entry.Ticker,
			entry.Weight.InexactFloat64(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeChangesSheet(f *excelize.File, changes []CompositionChangeDTO) error {
	if len(changes) == 0 {
		return nil
	}
	if _, err := f.NewSheet(sheetChanges); err != nil {
		return err
	}
	if err := setRow(f, sheetChanges, 1, "Date", "Entered Tickers", "Exited Tickers"); err != nil {
		return err
	}
	for i, change := range changes {
		err := setRow(f, sheetChanges, i+2,
			change.Date,
			strings.Join(change.Entered, ", "),
			strings.Join(change.Exited, ", "),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
