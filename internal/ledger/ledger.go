// Package ledger is the durable audit trail: every trade attempt becomes an
// append-only record, and a single aggregate row keeps the session and
// performance counters. Both are written in one transaction so a crash can
// never leave a record without its counter update.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Ledger struct {
	db *gorm.DB
}

// Open creates or opens the ledger database, migrates the schema and
// starts a new session (SessionCount is incremented once per Open).
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory failed: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger database failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)

	if err := db.AutoMigrate(&tradeRecordModel{}, &ledgerStateModel{}); err != nil {
		return nil, fmt.Errorf("migrating ledger schema failed: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.beginSession(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) beginSession() error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var state ledgerStateModel
		err := tx.First(&state, 1).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			state = ledgerStateModel{ID: 1, StartTime: time.Now(), SessionCount: 1, BestTrade: math.Inf(-1), WorstTrade: math.Inf(1)}
			return tx.Create(&state).Error
		case err != nil:
			return err
		}
		state.SessionCount++
		return tx.Save(&state).Error
	})
}

// SetInitialEquity records the account equity at first startup. Later
// sessions keep the original baseline.
func (l *Ledger) SetInitialEquity(equity float64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var state ledgerStateModel
		if err := tx.First(&state, 1).Error; err != nil {
			return err
		}
		if state.InitialEquity != 0 {
			return nil
		}
		state.InitialEquity = equity
		return tx.Save(&state).Error
	})
}

// NextInvocation increments and persists the executor cycle counter,
// returning the new value.
func (l *Ledger) NextInvocation() (int64, error) {
	var n int64
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var state ledgerStateModel
		if err := tx.First(&state, 1).Error; err != nil {
			return err
		}
		state.InvocationCount++
		n = state.InvocationCount
		return tx.Save(&state).Error
	})
	return n, err
}

// Append persists one trade record and folds it into the aggregate
// counters in the same transaction. A failure here is fatal to the caller:
// trading must not continue without its audit trail.
func (l *Ledger) Append(rec TradeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	row := tradeRecordModel{
		CreatedAt:  rec.Timestamp,
		Symbol:     rec.Symbol,
		Action:     string(rec.Action),
		Side:       rec.Side,
		Quantity:   rec.Quantity,
		Price:      rec.Price,
		OrderID:    rec.OrderID,
		Success:    rec.Success,
		Reason:     rec.Reason,
		Error:      rec.Error,
		PnL:        rec.PnL,
		Decision:   rec.Decision,
		Invocation: rec.Invocation,
	}
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting trade record failed: %w", err)
		}
		// Informational records do not move the performance counters.
		if rec.Action == ActionHold {
			return nil
		}
		var state ledgerStateModel
		if err := tx.First(&state, 1).Error; err != nil {
			return err
		}
		state.TotalTrades++
		if rec.Success {
			state.SuccessfulTrades++
		} else {
			state.FailedTrades++
		}
		if rec.Success && rec.Action == ActionClose {
			state.ClosedTrades++
			state.TotalPnL += rec.PnL
			if rec.PnL > 0 {
				state.WinningTrades++
			}
			if rec.PnL > state.BestTrade {
				state.BestTrade = rec.PnL
			}
			if rec.PnL < state.WorstTrade {
				state.WorstTrade = rec.PnL
			}
		}
		return tx.Save(&state).Error
	})
}

// RecordMaxDrawdown persists a new drawdown high-water mark if it exceeds
// the stored one.
func (l *Ledger) RecordMaxDrawdown(drawdown float64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var state ledgerStateModel
		if err := tx.First(&state, 1).Error; err != nil {
			return err
		}
		if drawdown <= state.MaxDrawdown {
			return nil
		}
		state.MaxDrawdown = drawdown
		return tx.Save(&state).Error
	})
}

// Summary reads the aggregate counters. Best and worst trade come back as
// 0 before the first close.
func (l *Ledger) Summary() (Summary, error) {
	var state ledgerStateModel
	if err := l.db.First(&state, 1).Error; err != nil {
		return Summary{}, err
	}
	s := state.summary()
	if math.IsInf(s.BestTrade, -1) {
		s.BestTrade = 0
	}
	if math.IsInf(s.WorstTrade, 1) {
		s.WorstTrade = 0
	}
	return s, nil
}

// Records returns the most recent trade records, newest first.
func (l *Ledger) Records(limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []tradeRecordModel
	if err := l.db.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, TradeRecord{
			ID:         r.ID,
			Timestamp:  r.CreatedAt,
			Symbol:     r.Symbol,
			Action:     Action(r.Action),
			Side:       r.Side,
			Quantity:   r.Quantity,
			Price:      r.Price,
			OrderID:    r.OrderID,
			Success:    r.Success,
			Reason:     r.Reason,
			Error:      r.Error,
			PnL:        r.PnL,
			Decision:   r.Decision,
			Invocation: r.Invocation,
		})
	}
	return out, nil
}

// Close stamps the session end and releases the database handle.
func (l *Ledger) Close() error {
	now := time.Now()
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var state ledgerStateModel
		if err := tx.First(&state, 1).Error; err != nil {
			return err
		}
		state.LastSessionEnd = &now
		return tx.Save(&state).Error
	})
	sqlDB, dbErr := l.db.DB()
	if dbErr == nil {
		if cerr := sqlDB.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
