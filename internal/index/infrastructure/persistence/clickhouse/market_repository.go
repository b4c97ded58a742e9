// Package clickhouse 基于 ClickHouse 的行情存储适配器
package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

// MarketRepository 行情与元数据的列式存储仓储
type MarketRepository struct {
	conn driver.Conn
}

// NewMarketRepository 创建行情仓储实例
func NewMarketRepository(conn driver.Conn) *MarketRepository {
	return &MarketRepository{conn: conn}
}

// GetPriceBars 返回某日所有活跃股票的行情
func (r *MarketRepository) GetPriceBars(ctx context.Context, date time.Time) ([]domain.PriceBar, error) {
	query := `SELECT b.ticker, b.date, b.open, b.high, b.low, b.close, b.volume, b.market_cap
	          FROM daily_price_bars AS b
	          INNER JOIN ticker_metadata AS m ON b.ticker = m.ticker
	          WHERE b.date = ? AND m.active = 1`

	rows, err := r.conn.Query(ctx, query, domain.NormalizeDate(date))
	if err != nil {
		return nil, domain.NewStorageError("GetPriceBars", err)
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		var (
			bar                          domain.PriceBar
			open, high, low, close, mcap float64
		)
		if err := rows.Scan(&bar.Ticker, &bar.Date, &open, &high, &low, &close, &bar.Volume, &mcap); err != nil {
			return nil, domain.NewStorageError("GetPriceBars", err)
		}
		bar.Open = decimal.NewFromFloat(open)
		bar.High = decimal.NewFromFloat(high)
		bar.Low = decimal.NewFromFloat(low)
		bar.Close = decimal.NewFromFloat(close)
		bar.MarketCap = decimal.NewFromFloat(mcap)
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("GetPriceBars", err)
	}
	return bars, nil
}

// GetMetadata 按股票代码点查元数据
func (r *MarketRepository) GetMetadata(ctx context.Context, ticker string) (*domain.TickerMetadata, error) {
	query := `SELECT ticker, name, market, locale, currency, cik, active
	          FROM ticker_metadata
	          WHERE ticker = ?
	          LIMIT 1`

	rows, err := r.conn.Query(ctx, query, ticker)
	if err != nil {
		return nil, domain.NewStorageError("GetMetadata", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		md     domain.TickerMetadata
		active uint8
	)
	if err := rows.Scan(&md.Ticker, &md.Name, &md.Market, &md.Locale, &md.Currency, &md.CIK, &active); err != nil {
		return nil, domain.NewStorageError("GetMetadata", err)
	}
	md.Active = active == 1
	return &md, nil
}

// LatestTradingDate 返回已摄入行情的最近交易日，库为空时返回零值。
// HAVING 子句让空表返回零行而不是 Date 类型的默认值（1970-01-01）。
func (r *MarketRepository) LatestTradingDate(ctx context.Context) (time.Time, error) {
	rows, err := r.conn.Query(ctx, `SELECT max(date) FROM daily_price_bars HAVING count() > 0`)
	if err != nil {
		return time.Time{}, domain.NewStorageError("LatestTradingDate", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return time.Time{}, domain.NewStorageError("LatestTradingDate", err)
		}
		return time.Time{}, nil
	}

	var latest time.Time
	if err := rows.Scan(&latest); err != nil {
		return time.Time{}, domain.NewStorageError("LatestTradingDate", err)
	}
	return normalizeLatest(latest), nil
}

// normalizeLatest 把 Date 类型的默认值（Unix 纪元）当作空库处理
func normalizeLatest(latest time.Time) time.Time {
	if latest.IsZero() || latest.Unix() == 0 {
		return time.Time{}
	}
	return domain.NormalizeDate(latest)
}

// BatchInsertPriceBars 批量追加行情，供摄入侧使用
func (r *MarketRepository) BatchInsertPriceBars(ctx context.Context, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx,
		"INSERT INTO daily_price_bars (ticker, date, open, high, low, close, volume, market_cap)")
	if err != nil {
		return domain.NewStorageError("BatchInsertPriceBars", err)
	}

	for _, bar := range bars {
		err := batch.Append(
			bar.Ticker,
			domain.NormalizeDate(bar.Date),
			bar.Open.InexactFloat64(),
			bar.High.InexactFloat64(),
			bar.Low.InexactFloat64(),
			bar.Close.InexactFloat64(),
			bar.Volume,
			bar.MarketCap.InexactFloat64(),
		)
		if err != nil {
			return domain.NewStorageError("BatchInsertPriceBars", err)
		}
	}

	if err := batch.Send(); err != nil {
		return domain.NewStorageError("BatchInsertPriceBars", err)
	}
	return nil
}

// BatchUpsertMetadata 批量写入元数据，供摄入侧使用。
// 表引擎为 ReplacingMergeTree，同一 ticker 的新行覆盖旧行。
func (r *MarketRepository) BatchUpsertMetadata(ctx context.Context, metadata []domain.TickerMetadata) error {
	if len(metadata) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx,
		"INSERT INTO ticker_metadata (ticker, name, market, locale, currency, cik, active)")
	if err != nil {
		return domain.NewStorageError("BatchUpsertMetadata", err)
	}

	for _, md := range metadata {
		var active uint8
		if md.Active {
			active = 1
		}
		if err := batch.Append(md.Ticker, md.Name, md.Market, md.Locale, md.Currency, md.CIK, active); err != nil {
			return domain.NewStorageError("BatchUpsertMetadata", err)
		}
	}

	if err := batch.Send(); err != nil {
		return domain.NewStorageError("BatchUpsertMetadata", err)
	}
	return nil
}
