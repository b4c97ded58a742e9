// Package application 指数查询门面：校验请求、编排缓存协调器与存储、组装响应
package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

// ErrInvalidRange 请求的日期区间非法或超出已摄入数据范围
var ErrInvalidRange = errors.New("invalid date range")

// SnapshotProvider 按日期获取指数快照的能力（由缓存协调器实现）
type SnapshotProvider interface {
	GetOrCompute(ctx context.Context, date time.Time) (*domain.IndexSnapshot, error)
}

// IndexQueryService 外部调用方（路由层）的唯一入口
type IndexQueryService struct {
	market      domain.MarketDataRepository
	results     domain.IndexResultRepository
	snapshots   SnapshotProvider
	parallelism int
}

// NewIndexQueryService 创建查询门面
func NewIndexQueryService(
	market domain.MarketDataRepository,
	results domain.IndexResultRepository,
	snapshots SnapshotProvider,
	parallelism int,
) *IndexQueryService {
	if parallelism <= 0 {
		parallelism = 8
	}
	return &IndexQueryService{
		market:      market,
		results:     results,
		snapshots:   snapshots,
		parallelism: parallelism,
	}
}

// GetIndex 返回单日指数值、日收益率与成分
func (s *IndexQueryService) GetIndex(ctx context.Context, date time.Time) (*IndexSnapshotDTO, error) {
	date = domain.NormalizeDate(date)
	if err := s.validateDate(ctx, date); err != nil {
		return nil, err
	}

	snapshot, err := s.snapshots.GetOrCompute(ctx, date)
	if err != nil {
		return nil, err
	}
	return toSnapshotDTO(snapshot), nil
}

// GetTickerMetadata 按股票代码点查元数据
func (s *IndexQueryService) GetTickerMetadata(ctx context.Context, ticker string) (*TickerMetadataDTO, error) {
	md, err := s.market.GetMetadata(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, fmt.Errorf("%w: ticker %s", domain.ErrNotFound, ticker)
	}
	return &TickerMetadataDTO{
		Ticker:   md.Ticker,
		Name:     md.Name,
		Market:   md.Market,
		Locale:   md.Locale,
		Currency: md.Currency,
		CIK:      md.CIK,
		Active:   md.Active,
	}, nil
}

// GetComposition 返回单日成分权重
func (s *IndexQueryService) GetComposition(ctx context.Context, date time.Time) ([]CompositionItemDTO, error) {
	dto, err := s.GetIndex(ctx, date)
	if err != nil {
		return nil, err
	}
	return dto.Composition, nil
}

// BuildRange 按日期升序逐日物化区间内的指数结果。
// 升序保证每个日期计算时其前一交易日的结果已经落库。
// 无行情或数据不足的日期跳过；返回成功处理的天数。
func (s *IndexQueryService) BuildRange(ctx context.Context, start, end time.Time) (*BuildResultDTO, error) {
	start, end, err := s.clampRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	processed := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, err := s.snapshots.GetOrCompute(ctx, d); err != nil {
			if errors.Is(err, domain.ErrInsufficientData) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		processed++
	}
	if processed == 0 {
		return nil, fmt.Errorf("%w: no index data could be built", domain.ErrNotFound)
	}
	return &BuildResultDTO{
		Message:       "index built and performance calculated",
		DaysProcessed: processed,
	}, nil
}

// GetPerformanceRange 返回区间内按日期升序的指数表现，并附累计收益率。
// 无数据的日期被省略而不是让整个区间失败。
func (s *IndexQueryService) GetPerformanceRange(ctx context.Context, start, end time.Time) ([]PerformanceDTO, error) {
	start, end, err := s.clampRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	days := int(end.Sub(start).Hours()/24) + 1
	snapshots := make([]*domain.IndexSnapshot, days)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := 0; i < days; i++ {
		i := i
		g.Go(func() error {
			date := start.AddDate(0, 0, i)
			snapshot, err := s.snapshots.GetOrCompute(gctx, date)
			if err != nil {
				if errors.Is(err, domain.ErrInsufficientData) || errors.Is(err, domain.ErrNotFound) {
					return nil
				}
				return err
			}
			snapshots[i] = snapshot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]PerformanceDTO, 0, days)
	cumulative := decimal.NewFromInt(1)
	one := decimal.NewFromInt(1)
	for _, snapshot := range snapshots {
		if snapshot == nil {
			continue
		}
		if snapshot.Result.DailyReturn.Valid {
			cumulative = cumulative.Mul(one.Add(snapshot.Result.DailyReturn.Decimal))
		}
		out = append(out, PerformanceDTO{
			Date:             domain.DateKey(snapshot.Date()),
			IndexValue:       snapshot.Result.IndexValue.InexactFloat64(),
			DailyReturn:      nullableFloat(snapshot.Result.DailyReturn),
			CumulativeReturn: cumulative.Sub(one).InexactFloat64(),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no index performance data available", domain.ErrNotFound)
	}
	return out, nil
}

// GetCompositionChanges 返回区间内成分股集合的逐日变动（进入/退出）
func (s *IndexQueryService) GetCompositionChanges(ctx context.Context, start, end time.Time) ([]CompositionChangeDTO, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_date before start_date", ErrInvalidRange)
	}

	entries, err := s.results.ListComposition(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no composition data in range", domain.ErrNotFound)
	}
	return diffCompositions(entries), nil
}

// diffCompositions 按日期分组后对相邻日期求集合差
func diffCompositions(entries []domain.CompositionEntry) []CompositionChangeDTO {
	byDate := make(map[string]map[string]bool)
	dates := make([]string, 0)
	for _, entry := range entries {
		key := domain.DateKey(entry.Date)
		if _, ok := byDate[key]; !ok {
			byDate[key] = make(map[string]bool)
			dates = append(dates, key)
		}
		byDate[key][entry.Ticker] = true
	}
	sort.Strings(dates)

	changes := make([]CompositionChangeDTO, 0)
	for i := 1; i < len(dates); i++ {
		prev, curr := byDate[dates[i-1]], byDate[dates[i]]
		var entered, exited []string
		for ticker := range curr {
			if !prev[ticker] {
				entered = append(entered, ticker)
			}
		}
		for ticker := range prev {
			if !curr[ticker] {
				exited = append(exited, ticker)
			}
		}
		if len(entered) == 0 && len(exited) == 0 {
			continue
		}
		sort.Strings(entered)
		sort.Strings(exited)
		changes = append(changes, CompositionChangeDTO{
			Date:    dates[i],
			Entered: entered,
			Exited:  exited,
		})
	}
	return changes
}

// validateDate 拒绝晚于最近已摄入交易日的请求
func (s *IndexQueryService) validateDate(ctx context.Context, date time.Time) error {
	latest, err := s.market.LatestTradingDate(ctx)
	if err != nil {
		return err
	}
	if latest.IsZero() {
		return fmt.Errorf("%w: no price data ingested", domain.ErrNotFound)
	}
	if date.After(latest) {
		return fmt.Errorf("%w: %s is beyond the latest ingested date %s",
			ErrInvalidRange, domain.DateKey(date), domain.DateKey(latest))
	}
	return nil
}

// clampRange 规范化区间端点并把终点收敛到最近已摄入交易日
func (s *IndexQueryService) clampRange(ctx context.Context, start, end time.Time) (time.Time, time.Time, error) {
	start = domain.NormalizeDate(start)
	end = domain.NormalizeDate(end)
	if end.Before(start) {
		return start, end, fmt.Errorf("%w: end_date before start_date", ErrInvalidRange)
	}

	latest, err := s.market.LatestTradingDate(ctx)
	if err != nil {
		return start, end, err
	}
	if latest.IsZero() || start.After(latest) {
		return start, end, fmt.Errorf("%w: %s is beyond the latest ingested date",
			ErrInvalidRange, domain.DateKey(start))
	}
	if end.After(latest) {
		end = latest
	}
	return start, end, nil
}
