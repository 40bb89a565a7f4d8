// Package storage keeps the append-only trade journal.
package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"lagarb/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal records every dispatched order in SQLite.
// It is write-mostly; nothing in the engine reads risk state back from it.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Journal{db: db}, nil
}

// Report appends one trade report.
func (j *Journal) Report(ctx context.Context, rep domain.TradeReport) error {
	rec := toRecord(rep)
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	err := j.db.WithContext(ctx).Order("id desc").Limit(n).Find(&recs).Error
	return recs, err
}

// RealizedPnL sums the PnL of every journaled fill.
func (j *Journal) RealizedPnL(ctx context.Context) (decimal.Decimal, error) {
	var pnls []string
	err := j.db.WithContext(ctx).Model(&domain.TradeRecord{}).
		Where("outcome = ?", string(domain.OutcomeFilled)).
		Pluck("pnl", &pnls).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range pnls {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt pnl %q: %w", p, err)
		}
		total = total.Add(d)
	}
	return total, nil
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(rep domain.TradeReport) domain.TradeRecord {
	return domain.TradeRecord{
		Direction:       rep.Signal.Direction.String(),
		LimitPrice:      decimalString(rep.Signal.LimitPrice),
		OracleReference: decimalString(rep.Signal.OracleReference),
		Size:            decimalString(rep.Size),
		Outcome:         string(rep.Result.Outcome),
		OrderID:         rep.Result.OrderID,
		FilledSize:      decimalString(rep.Result.FilledSize),
		AvgPrice:        decimalString(rep.Result.AvgPrice),
		ElapsedMicros:   rep.Result.Elapsed.Microseconds(),
		LatencyFault:    rep.Result.LatencyFault,
		Error:           rep.Result.ErrorText(),
		PnL:             decimalString(rep.PnL),
		TotalCapital:    decimalString(rep.Risk.TotalCapital),
		DailyPnL:        decimalString(rep.Risk.DailyPnL),
		SignalAt:        rep.Signal.CreatedAt,
	}
}

// decimalString renders f exactly; non-finite values become "0".
func decimalString(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	return decimal.NewFromFloat(f).String()
}
