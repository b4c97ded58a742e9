// Package mysql 指数结果与成分的事务性持久化
package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/equityindex/internal/index/domain"
)

// IndexResultModel index_results 表模型，每个交易日一行
type IndexResultModel struct {
	ID          uint                `gorm:"primaryKey"`
	Date        time.Time           `gorm:"column:date;type:date;uniqueIndex;not null"`
	IndexValue  decimal.Decimal     `gorm:"column:index_value;type:decimal(24,8);not null"`
	DailyReturn decimal.NullDecimal `gorm:"column:daily_return;type:decimal(24,12)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 表名
func (IndexResultModel) TableName() string { return "index_results" }

// CompositionModel index_compositions 表模型，每个交易日每只成分股一行
type CompositionModel struct {
	ID     uint            `gorm:"primaryKey"`
	Date   time.Time       `gorm:"column:date;type:date;index:idx_composition_date;not null"`
	Ticker string          `gorm:"column:ticker;type:varchar(16);not null"`
	Weight decimal.Decimal `gorm:"column:weight;type:decimal(24,12);not null"`
}

// TableName 表名
func (CompositionModel) TableName() string { return "index_compositions" }

// ResultRepository 基于 GORM 的指数结果仓储
type ResultRepository struct {
	db *gorm.DB
}

// NewResultRepository 创建指数结果仓储实例
func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Get 按日期读取快照，结果与成分一起返回；不存在时返回 (nil, nil)
func (r *ResultRepository) Get(ctx context.Context, date time.Time) (*domain.IndexSnapshot, error) {
	date = domain.NormalizeDate(date)

	var result IndexResultModel
	err := r.db.WithContext(ctx).Where("date = ?", date).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("Get", err)
	}

	var rows []CompositionModel
	if err := r.db.WithContext(ctx).Where("date = ?", date).Order("ticker asc").Find(&rows).Error; err != nil {
		return nil, domain.NewStorageError("Get", err)
	}

	snapshot := &domain.IndexSnapshot{
		Result:      toIndexResult(&result),
		Composition: make([]domain.CompositionEntry, 0, len(rows)),
	}
	for i := range rows {
		snapshot.Composition = append(snapshot.Composition, toCompositionEntry(&rows[i]))
	}
	return snapshot, nil
}

// Save 在单个事务内覆盖写入某日的结果与全部成分行
func (r *ResultRepository) Save(ctx context.Context, snapshot *domain.IndexSnapshot) error {
	date := domain.NormalizeDate(snapshot.Date())

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ?", date).Delete(&IndexResultModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("date = ?", date).Delete(&CompositionModel{}).Error; err != nil {
			return err
		}

		result := IndexResultModel{
			Date:        date,
			IndexValue:  snapshot.Result.IndexValue,
			DailyReturn: snapshot.Result.DailyReturn,
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}

		if len(snapshot.Composition) == 0 {
			return nil
		}
		rows := make([]CompositionModel, 0, len(snapshot.Composition))
		for _, entry := range snapshot.Composition {
			rows = append(rows, CompositionModel{
				Date:   date,
				Ticker: entry.Ticker,
				Weight: entry.Weight,
			})
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return domain.NewStorageError("Save", err)
	}
	return nil
}

// GetLatestBefore 返回严格早于 date 的最近一条结果
func (r *ResultRepository) GetLatestBefore(ctx context.Context, date time.Time) (*domain.IndexResult, error) {
	var model IndexResultModel
	err := r.db.WithContext(ctx).
		Where("date < ?", domain.NormalizeDate(date)).
		Order("date desc").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("GetLatestBefore", err)
	}
	result := toIndexResult(&model)
	return &result, nil
}

// ListResults 返回范围内已计算的结果，按日期升序
func (r *ResultRepository) ListResults(ctx context.Context, start, end time.Time) ([]domain.IndexResult, error) {
	var models []IndexResultModel
	err := r.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", domain.NormalizeDate(start), domain.NormalizeDate(end)).
		Order("date asc").
		Find(&models).Error
	if err != nil {
		return nil, domain.NewStorageError("ListResults", err)
	}

	results := make([]domain.IndexResult, 0, len(models))
	for i := range models {
		results = append(results, toIndexResult(&models[i]))
	}
	return results, nil
}

// ListComposition 返回范围内的成分行，按日期、代码升序
func (r *ResultRepository) ListComposition(ctx context.Context, start, end time.Time) ([]domain.CompositionEntry, error) {
	var models []CompositionModel
	err := r.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", domain.NormalizeDate(start), domain.NormalizeDate(end)).
		Order("date asc, ticker asc").
		Find(&models).Error
	if err != nil {
		return nil, domain.NewStorageError("ListComposition", err)
	}

	entries := make([]domain.CompositionEntry, 0, len(models))
	for i := range models {
		entries = append(entries, toCompositionEntry(&models[i]))
	}
	return entries, nil
}

func toIndexResult(m *IndexResultModel) domain.IndexResult {
	return domain.IndexResult{
		Date:        domain.NormalizeDate(m.Date),
		IndexValue:  m.IndexValue,
		DailyReturn: m.DailyReturn,
	}
}

func toCompositionEntry(m *CompositionModel) domain.CompositionEntry {
	return domain.CompositionEntry{
		Date:   domain.NormalizeDate(m.Date),
		Ticker: m.Ticker,
		Weight: m.Weight,
	}
}
