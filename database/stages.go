package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/kbukum/flowkit/pipeline"
)

// QueryConfig configures NewQuerySource.
type QueryConfig struct {
	// Scope narrows the query, e.g. adding Where clauses. Optional.
	Scope func(*gorm.DB) *gorm.DB
	// OrderBy gives pages a stable order. Defaults to "id".
	OrderBy string
	// PageSize is the number of rows fetched per query. Defaults to 100.
	PageSize int
}

// NewQuerySource creates a source emitting the rows of T's table page by
// page. It completes after the first short page.
func NewQuerySource[T any](db *DB, cfg QueryConfig, opts ...pipeline.Option) *pipeline.Source[T] {
	if cfg.OrderBy == "" {
		cfg.OrderBy = "id"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}

	var (
		page   []T
		offset int
		last   bool
	)
	next := func(ctx context.Context) (T, bool, error) {
		var zero T
		if len(page) == 0 {
			if last {
				return zero, false, nil
			}
			q := db.WithContext(ctx).Model(new(T))
			if cfg.Scope != nil {
				q = cfg.Scope(q)
			}
			if err := q.Order(cfg.OrderBy).Offset(offset).Limit(cfg.PageSize).Find(&page).Error; err != nil {
				return zero, false, Classify(err, fmt.Sprintf("%T", zero))
			}
			offset += len(page)
			last = len(page) < cfg.PageSize
			if len(page) == 0 {
				return zero, false, nil
			}
		}
		v := page[0]
		page = page[1:]
		return v, true, nil
	}
	return pipeline.FromFunc(next, append([]pipeline.Option{pipeline.WithName("query")}, opts...)...)
}

// NewInsertSink creates a stage inserting each item as a row and emitting
// it, with generated fields filled in, once stored.
func NewInsertSink[T any](name string, db *DB, opts ...pipeline.Option) *pipeline.Stage[T, T] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, v T) (T, error) {
		if err := db.WithContext(ctx).Create(&v).Error; err != nil {
			var zero T
			return zero, Classify(err, name)
		}
		return v, nil
	}), opts...)
}

// NewBatchInsertSink creates a stage inserting a whole batch in one
// transaction, usually fed by pipeline.Chunk. A failed insert rolls back
// and fails the whole batch.
func NewBatchInsertSink[T any](name string, db *DB, opts ...pipeline.Option) *pipeline.Stage[[]T, []T] {
	return pipeline.NewStage(name, pipeline.Map(func(ctx context.Context, batch []T) ([]T, error) {
		if len(batch) == 0 {
			return batch, nil
		}
		err := db.WithTransaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&batch).Error
		})
		if err != nil {
			return nil, Classify(err, name)
		}
		return batch, nil
	}), opts...)
}
