package domain

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// IndexCalculator 从行情与历史结果推导某日的指数快照
type IndexCalculator struct {
	market  MarketDataRepository
	results IndexResultRepository
	// universeSize 成分股数量上限，0 表示全部活跃股票
	universeSize int
}

// NewIndexCalculator 创建指数计算器
func NewIndexCalculator(market MarketDataRepository, results IndexResultRepository, universeSize int) *IndexCalculator {
	return &IndexCalculator{
		market:       market,
		results:      results,
		universeSize: universeSize,
	}
}

// Compute 计算某个交易日的指数值、日收益率与完整成分。
// 当日无行情返回 ErrInsufficientData；上一个有结果的交易日不存在时日收益率为空。
func (c *IndexCalculator) Compute(ctx context.Context, date time.Time) (*IndexSnapshot, error) {
	date = NormalizeDate(date)

	bars, err := c.market.GetPriceBars(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrInsufficientData
	}

	universe := SelectUniverse(bars, c.universeSize)
	weights, err := ComputeWeights(universe)
	if err != nil {
		return nil, err
	}

	indexValue := decimal.Zero
	composition := make([]CompositionEntry, 0, len(universe))
	for _, bar := range universe {
		weight := weights[bar.Ticker]
		indexValue = indexValue.Add(weight.Mul(bar.Close))
		composition = append(composition, CompositionEntry{
			Date:   date,
			Ticker: bar.Ticker,
			Weight: weight,
		})
	}
	sort.Slice(composition, func(i, j int) bool {
		return composition[i].Ticker < composition[j].Ticker
	})

	result := IndexResult{
		Date:       date,
		IndexValue: indexValue,
	}

	prev, err := c.results.GetLatestBefore(ctx, date)
	if err != nil {
		return nil, err
	}
	if prev != nil && !prev.IndexValue.IsZero() {
		result.DailyReturn = decimal.NewNullDecimal(
			indexValue.Div(prev.IndexValue).Sub(decimal.NewFromInt(1)),
		)
	}

	return &IndexSnapshot{Result: result, Composition: composition}, nil
}
