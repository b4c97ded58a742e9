package application

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

type fakeMarket struct {
	latest   time.Time
	metadata map[string]*domain.TickerMetadata
}

func (f *fakeMarket) GetPriceBars(_ context.Context, _ time.Time) ([]domain.PriceBar, error) {
	return nil, nil
}

func (f *fakeMarket) GetMetadata(_ context.Context, ticker string) (*domain.TickerMetadata, error) {
	return f.metadata[ticker], nil
}

func (f *fakeMarket) LatestTradingDate(_ context.Context) (time.Time, error) {
	return f.latest, nil
}

type fakeResults struct {
	results     []domain.IndexResult
	composition []domain.CompositionEntry
}

func (f *fakeResults) Get(_ context.Context, _ time.Time) (*domain.IndexSnapshot, error) {
	return nil, nil
}

func (f *fakeResults) Save(_ context.Context, _ *domain.IndexSnapshot) error { return nil }

func (f *fakeResults) GetLatestBefore(_ context.Context, _ time.Time) (*domain.IndexResult, error) {
	return nil, nil
}

func (f *fakeResults) ListResults(_ context.Context, start, end time.Time) ([]domain.IndexResult, error) {
	var out []domain.IndexResult
	for _, r := range f.results {
		if !r.Date.Before(start) && !r.Date.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) ListComposition(_ context.Context, start, end time.Time) ([]domain.CompositionEntry, error) {
	var out []domain.CompositionEntry
	for _, e := range f.composition {
		if !e.Date.Before(start) && !e.Date.After(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeProvider 以日期为键返回预置快照或错误。
// 区间查询并发调用 GetOrCompute，内部状态必须加锁。
type fakeProvider struct {
	mu        sync.Mutex
	snapshots map[string]*domain.IndexSnapshot
	errs      map[string]error
	calls     []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		snapshots: make(map[string]*domain.IndexSnapshot),
		errs:      make(map[string]error),
	}
}

func (f *fakeProvider) GetOrCompute(_ context.Context, date time.Time) (*domain.IndexSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.DateKey(date)
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if s, ok := f.snapshots[key]; ok {
		return s, nil
	}
	return nil, domain.ErrInsufficientData
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeProvider) add(date time.Time, value float64, dailyReturn *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &domain.IndexSnapshot{
		Result: domain.IndexResult{
			Date:       date,
			IndexValue: decimal.NewFromFloat(value),
		},
		Composition: []domain.CompositionEntry{
			{Date: date, Ticker: "AAA", Weight: decimal.NewFromFloat(0.25)},
			{Date: date, Ticker: "BBB", Weight: decimal.NewFromFloat(0.75)},
		},
	}
	if dailyReturn != nil {
		s.Result.DailyReturn = decimal.NewNullDecimal(decimal.NewFromFloat(*dailyReturn))
	}
	f.snapshots[domain.DateKey(date)] = s
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func f(v float64) *float64 { return &v }

func TestGetIndex(t *testing.T) {
	latest := day("2024-01-05")
	market := &fakeMarket{latest: latest}
	provider := newFakeProvider()
	provider.add(day("2024-01-03"), 17.5, nil)
	svc := NewIndexQueryService(market, &fakeResults{}, provider, 4)
	ctx := context.Background()

	t.Run("returns snapshot", func(t *testing.T) {
		dto, err := svc.GetIndex(ctx, day("2024-01-03"))
		if err != nil {
			t.Fatalf("GetIndex: %v", err)
		}
		if dto.Date != "2024-01-03" {
			t.Errorf("date = %s, want 2024-01-03", dto.Date)
		}
		if dto.IndexValue != 17.5 {
			t.Errorf("index value = %v, want 17.5", dto.IndexValue)
		}
		if dto.DailyReturn != nil {
			t.Errorf("daily return = %v, want null", *dto.DailyReturn)
		}
		if len(dto.Composition) != 2 {
			t.Errorf("len(composition) = %d, want 2", len(dto.Composition))
		}
	})

	t.Run("rejects dates beyond latest ingested", func(t *testing.T) {
		_, err := svc.GetIndex(ctx, day("2024-02-01"))
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("err = %v, want ErrInvalidRange", err)
		}
	})

	t.Run("empty market store", func(t *testing.T) {
		empty := NewIndexQueryService(&fakeMarket{}, &fakeResults{}, provider, 4)
		_, err := empty.GetIndex(ctx, day("2024-01-03"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestGetTickerMetadata(t *testing.T) {
	market := &fakeMarket{
		latest: day("2024-01-05"),
		metadata: map[string]*domain.TickerMetadata{
			"AAA": {Ticker: "AAA", Name: "Alpha Corp", Market: "stocks", Currency: "usd", Active: true},
		},
	}
	svc := NewIndexQueryService(market, &fakeResults{}, newFakeProvider(), 4)
	ctx := context.Background()

	t.Run("known ticker", func(t *testing.T) {
		dto, err := svc.GetTickerMetadata(ctx, "AAA")
		if err != nil {
			t.Fatalf("GetTickerMetadata: %v", err)
		}
		if dto.Name != "Alpha Corp" || !dto.Active {
			t.Errorf("dto = %+v", dto)
		}
	})

	t.Run("unknown ticker", func(t *testing.T) {
		_, err := svc.GetTickerMetadata(ctx, "ZZZ")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestBuildRange(t *testing.T) {
	latest := day("2024-01-05")
	market := &fakeMarket{latest: latest}
	ctx := context.Background()

	t.Run("skips days without data", func(t *testing.T) {
		provider := newFakeProvider()
		provider.add(day("2024-01-02"), 17.5, nil)
		// 01-03 has no data
		provider.add(day("2024-01-04"), 18.0, f(0.0285))
		svc := NewIndexQueryService(market, &fakeResults{}, provider, 4)

		result, err := svc.BuildRange(ctx, day("2024-01-02"), day("2024-01-04"))
		if err != nil {
			t.Fatalf("BuildRange: %v", err)
		}
		if result.DaysProcessed != 2 {
			t.Errorf("days processed = %d, want 2", result.DaysProcessed)
		}
	})

	t.Run("processes ascending", func(t *testing.T) {
		provider := newFakeProvider()
		provider.add(day("2024-01-02"), 17.5, nil)
		provider.add(day("2024-01-03"), 18.0, f(0.0285))
		svc := NewIndexQueryService(market, &fakeResults{}, provider, 4)

		if _, err := svc.BuildRange(ctx, day("2024-01-02"), day("2024-01-03")); err != nil {
			t.Fatalf("BuildRange: %v", err)
		}
		calls := provider.callOrder()
		if len(calls) != 2 || calls[0] != "2024-01-02" || calls[1] != "2024-01-03" {
			t.Errorf("calls = %v, want ascending [2024-01-02 2024-01-03]", calls)
		}
	})

	t.Run("end clamped to latest ingested date", func(t *testing.T) {
		provider := newFakeProvider()
		provider.add(day("2024-01-05"), 18.0, nil)
		svc := NewIndexQueryService(market, &fakeResults{}, provider, 4)

		if _, err := svc.BuildRange(ctx, day("2024-01-05"), day("2024-03-01")); err != nil {
			t.Fatalf("BuildRange: %v", err)
		}
		if provider.callCount() != 1 {
			t.Errorf("calls = %v, want only the latest ingested date", provider.callOrder())
		}
	})

	t.Run("reversed range", func(t *testing.T) {
		svc := NewIndexQueryService(market, &fakeResults{}, newFakeProvider(), 4)
		if _, err := svc.BuildRange(ctx, day("2024-01-04"), day("2024-01-02")); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("err = %v, want ErrInvalidRange", err)
		}
	})

	t.Run("nothing buildable", func(t *testing.T) {
		svc := NewIndexQueryService(market, &fakeResults{}, newFakeProvider(), 4)
		if _, err := svc.BuildRange(ctx, day("2024-01-02"), day("2024-01-03")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("storage errors abort the build", func(t *testing.T) {
		provider := newFakeProvider()
		provider.errs["2024-01-02"] = domain.NewStorageError("Get", errors.New("connection refused"))
		svc := NewIndexQueryService(market, &fakeResults{}, provider, 4)
		if _, err := svc.BuildRange(ctx, day("2024-01-02"), day("2024-01-03")); !domain.IsStorageError(err) {
			t.Errorf("err = %v, want StorageError", err)
		}
	})
}

func TestGetPerformanceRange(t *testing.T) {
	latest := day("2024-01-05")
	market := &fakeMarket{latest: latest}
	provider := newFakeProvider()
	provider.add(day("2024-01-02"), 100, nil)
	provider.add(day("2024-01-03"), 110, f(0.1))
	// 01-04 missing
	provider.add(day("2024-01-05"), 104.5, f(-0.05))
	svc := NewIndexQueryService(market, &fakeResults{}, provider, 4)

	rows, err := svc.GetPerformanceRange(context.Background(), day("2024-01-02"), day("2024-01-05"))
	if err != nil {
		t.Fatalf("GetPerformanceRange: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3 (missing day omitted)", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].Date >= rows[i].Date {
			t.Errorf("rows out of order: %s before %s", rows[i-1].Date, rows[i].Date)
		}
	}
	if rows[0].CumulativeReturn != 0 {
		t.Errorf("cumulative[0] = %v, want 0 before any daily return", rows[0].CumulativeReturn)
	}
	if math.Abs(rows[1].CumulativeReturn-0.1) > 1e-9 {
		t.Errorf("cumulative[1] = %v, want 0.1", rows[1].CumulativeReturn)
	}
	// 1.1 * 0.95 - 1 = 0.045
	if math.Abs(rows[2].CumulativeReturn-0.045) > 1e-9 {
		t.Errorf("cumulative[2] = %v, want 0.045", rows[2].CumulativeReturn)
	}
}

func TestGetCompositionChanges(t *testing.T) {
	latest := day("2024-01-05")
	market := &fakeMarket{latest: latest}
	ctx := context.Background()

	composition := []domain.CompositionEntry{
		{Date: day("2024-01-02"), Ticker: "AAA"},
		{Date: day("2024-01-02"), Ticker: "BBB"},
		{Date: day("2024-01-03"), Ticker: "AAA"},
		{Date: day("2024-01-03"), Ticker: "BBB"},
		{Date: day("2024-01-04"), Ticker: "AAA"},
		{Date: day("2024-01-04"), Ticker: "CCC"},
	}
	svc := NewIndexQueryService(market, &fakeResults{composition: composition}, newFakeProvider(), 4)

	t.Run("reports entered and exited", func(t *testing.T) {
		changes, err := svc.GetCompositionChanges(ctx, day("2024-01-02"), day("2024-01-04"))
		if err != nil {
			t.Fatalf("GetCompositionChanges: %v", err)
		}
		// 01-03 is unchanged and must be skipped
		if len(changes) != 1 {
			t.Fatalf("len(changes) = %d, want 1", len(changes))
		}
		change := changes[0]
		if change.Date != "2024-01-04" {
			t.Errorf("date = %s, want 2024-01-04", change.Date)
		}
		if len(change.Entered) != 1 || change.Entered[0] != "CCC" {
			t.Errorf("entered = %v, want [CCC]", change.Entered)
		}
		if len(change.Exited) != 1 || change.Exited[0] != "BBB" {
			t.Errorf("exited = %v, want [BBB]", change.Exited)
		}
	})

	t.Run("empty range", func(t *testing.T) {
		_, err := svc.GetCompositionChanges(ctx, day("2024-06-01"), day("2024-06-30"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("reversed range", func(t *testing.T) {
		_, err := svc.GetCompositionChanges(ctx, day("2024-01-04"), day("2024-01-02"))
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("err = %v, want ErrInvalidRange", err)
		}
	})
}
