package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SelectUniverse 按市值降序截取当日成分股宇宙。size <= 0 表示不截取。
func SelectUniverse(bars []PriceBar, size int) []PriceBar {
	if size <= 0 || len(bars) <= size {
		return bars
	}
	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MarketCap.GreaterThan(sorted[j].MarketCap)
	})
	return sorted[:size]
}

// ComputeWeights 按市值占比计算每只股票的指数权重。
// 市值为零或负的股票权重为 0，且不计入分母；
// 当日没有任何有效市值时返回 ErrInsufficientData。
func ComputeWeights(bars []PriceBar) (map[string]decimal.Decimal, error) {
	total := decimal.Zero
	for _, bar := range bars {
		if bar.MarketCap.IsPositive() {
			total = total.Add(bar.MarketCap)
		}
	}
	if total.IsZero() {
		return nil, ErrInsufficientData
	}

	weights := make(map[string]decimal.Decimal, len(bars))
	for _, bar := range bars {
		if bar.MarketCap.IsPositive() {
			weights[bar.Ticker] = bar.MarketCap.Div(total)
		} else {
			weights[bar.Ticker] = decimal.Zero
		}
	}
	return weights, nil
}
