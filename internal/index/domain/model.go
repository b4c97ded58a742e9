// Package domain 指数服务的领域模型、实体、领域服务、仓储接口
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout 交易日的标准格式
const DateLayout = "2006-01-02"

// WeightTolerance 成分权重之和与 1 的允许误差
var WeightTolerance = decimal.NewFromFloat(1e-6)

// PriceBar 单只股票单个交易日的行情记录，摄入后不可变
type PriceBar struct {
	// Ticker 股票代码
	Ticker string `json:"ticker"`
	// Date 交易日（UTC，零点）
	Date time.Time `json:"date"`
	// Open 开盘价
	Open decimal.Decimal `json:"open"`
	// High 最高价
	High decimal.Decimal `json:"high"`
	// Low 最低价
	Low decimal.Decimal `json:"low"`
	// Close 收盘价
	Close decimal.Decimal `json:"close"`
	// Volume 成交量
	Volume int64 `json:"volume"`
	// MarketCap 市值
	MarketCap decimal.Decimal `json:"market_cap"`
}

// TickerMetadata 股票元数据，仅由摄入侧写入
type TickerMetadata struct {
	// Ticker 股票代码（主键）
	Ticker string `json:"ticker"`
	// Name 公司名称
	Name string `json:"name"`
	// Market 市场
	Market string `json:"market"`
	// Locale 地区
	Locale string `json:"locale"`
	// Currency 计价货币
	Currency string `json:"currency"`
	// CIK SEC 注册编号
	CIK string `json:"cik"`
	// Active 是否处于活跃状态
	Active bool `json:"active"`
}

// IndexResult 单个交易日的指数计算结果
type IndexResult struct {
	// Date 交易日
	Date time.Time `json:"date"`
	// IndexValue 指数值（成分股收盘价按权重加权求和）
	IndexValue decimal.Decimal `json:"index_value"`
	// DailyReturn 相对上一个有结果交易日的收益率，首个可计算日为空
	DailyReturn decimal.NullDecimal `json:"daily_return"`
}

// CompositionEntry 单个交易日某只成分股的权重
type CompositionEntry struct {
	// Date 交易日
	Date time.Time `json:"date"`
	// Ticker 股票代码
	Ticker string `json:"ticker"`
	// Weight 指数权重，非负
	Weight decimal.Decimal `json:"weight"`
}

// IndexSnapshot 指数结果与完整成分的原子单元，作为存储与缓存的写入粒度
type IndexSnapshot struct {
	Result      IndexResult        `json:"result"`
	Composition []CompositionEntry `json:"composition"`
}

// Date 快照所属交易日
func (s *IndexSnapshot) Date() time.Time {
	return s.Result.Date
}

// NormalizeDate 将时间截断为 UTC 零点的交易日
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey 交易日的字符串键
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
