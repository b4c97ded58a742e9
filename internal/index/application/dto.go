package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

// IndexSnapshotDTO 单日指数查询响应
type IndexSnapshotDTO struct {
	Date        string               `json:"date"`
	IndexValue  float64              `json:"index_value"`
	DailyReturn *float64             `json:"daily_return"`
	Composition []CompositionItemDTO `json:"composition"`
}

// CompositionItemDTO 成分股权重
type CompositionItemDTO struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// PerformanceDTO 区间表现中的一行
type PerformanceDTO struct {
	Date             string   `json:"date"`
	IndexValue       float64  `json:"index_value"`
	DailyReturn      *float64 `json:"daily_return"`
	CumulativeReturn float64  `json:"cumulative_return"`
}

// CompositionChangeDTO 某日相对前一日的成分变动
type CompositionChangeDTO struct {
	Date    string   `json:"date"`
	Entered []string `json:"entered"`
	Exited  []string `json:"exited"`
}

// TickerMetadataDTO 股票元数据响应
type TickerMetadataDTO struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Market   string `json:"market"`
	Locale   string `json:"locale"`
	Currency string `json:"currency"`
	CIK      string `json:"cik"`
	Active   bool   `json:"active"`
}

// BuildResultDTO 构建请求的响应
type BuildResultDTO struct {
	Message       string `json:"message"`
	DaysProcessed int    `json:"days_processed"`
}

func toSnapshotDTO(snapshot *domain.IndexSnapshot) *IndexSnapshotDTO {
	dto := &IndexSnapshotDTO{
		Date:        domain.DateKey(snapshot.Date()),
		IndexValue:  snapshot.Result.IndexValue.InexactFloat64(),
		DailyReturn: nullableFloat(snapshot.Result.DailyReturn),
		Composition: make([]CompositionItemDTO, 0, len(snapshot.Composition)),
	}
	for _, entry := range snapshot.Composition {
		dto.Composition = append(dto.Composition, CompositionItemDTO{
			Ticker: entry.Ticker,
			Weight: entry.Weight.InexactFloat64(),
		})
	}
	return dto
}

func nullableFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
