package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Trade persistence layer
// ═══════════════════════════════════════════════════════════════════════════════

// ErrDuplicateExecution is returned when an execution insert hits the
// (user, signal, action) idempotency constraint.
var ErrDuplicateExecution = errors.New("execution already recorded for signal")

type Database struct {
	db *gorm.DB
}

// New opens the database at dbPath. A postgres:// URL selects PostgreSQL,
// anything else is treated as a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), gormCfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dbPath); dir != "." && !strings.HasPrefix(dbPath, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dbPath), gormCfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(
		&UserBot{}, &Signal{}, &Position{}, &MonitoredPosition{},
		&TradeExecution{}, &Alert{},
	); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Bot config operations

func (d *Database) SaveBot(ctx context.Context, bot *UserBot) error {
	return d.db.WithContext(ctx).Save(bot).Error
}

func (d *Database) GetBot(ctx context.Context, userID string) (*UserBot, error) {
	var bot UserBot
	err := d.db.WithContext(ctx).First(&bot, "user_id = ?", userID).Error
	return &bot, err
}

// ListEnabledBots returns every user whose bot is switched on.
func (d *Database) ListEnabledBots(ctx context.Context) ([]UserBot, error) {
	var bots []UserBot
	err := d.db.WithContext(ctx).Where("enabled = ?", true).Order("user_id").Find(&bots).Error
	return bots, err
}

// DisableBot flips the enabled flag off. Used by the safety gate on denial.
func (d *Database) DisableBot(ctx context.Context, userID string) error {
	return d.db.WithContext(ctx).Model(&UserBot{}).
		Where("user_id = ?", userID).
		Update("enabled", false).Error
}

// Signal operations

func (d *Database) SaveSignal(ctx context.Context, sig *Signal) error {
	return d.db.WithContext(ctx).Create(sig).Error
}

// PendingSignals returns unexpired signals at or above the confidence floor,
// oldest first. Per-user type filtering happens in the engine.
func (d *Database) PendingSignals(ctx context.Context, minConfidence int, now time.Time) ([]Signal, error) {
	var signals []Signal
	err := d.db.WithContext(ctx).
		Where("confidence_score >= ? AND (expires_at IS NULL OR expires_at > ?)", minConfidence, now).
		Order("created_at").
		Find(&signals).Error
	return signals, err
}

// SignalsBetween returns signals created in [from, to], oldest first.
// Backtests replay these against historical closes.
func (d *Database) SignalsBetween(ctx context.Context, from, to time.Time) ([]Signal, error) {
	var signals []Signal
	err := d.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at").
		Find(&signals).Error
	return signals, err
}

// Execution operations

// CreateExecution inserts an audit row. Returns ErrDuplicateExecution when the
// (user, signal, action) constraint is violated, which callers treat as a
// silent skip rather than a failure.
func (d *Database) CreateExecution(ctx context.Context, exec *TradeExecution) error {
	err := d.db.WithContext(ctx).Create(exec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateExecution
	}
	return err
}

func (d *Database) UpdateExecution(ctx context.Context, exec *TradeExecution) error {
	return d.db.WithContext(ctx).Save(exec).Error
}

// HasExecution reports whether the user already has an execution for the
// signal and action.
func (d *Database) HasExecution(ctx context.Context, userID, signalID, action string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&TradeExecution{}).
		Where("user_id = ? AND signal_id = ? AND action = ?", userID, signalID, action).
		Count(&count).Error
	return count > 0, err
}

// CountExecutionsSince counts the user's execution attempts from since onward.
func (d *Database) CountExecutionsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&TradeExecution{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// ExecutionsSince returns the user's executions from since onward, oldest first.
func (d *Database) ExecutionsSince(ctx context.Context, userID string, since time.Time) ([]TradeExecution, error) {
	var execs []TradeExecution
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at").
		Find(&execs).Error
	return execs, err
}

// Position operations

func (d *Database) CreatePosition(ctx context.Context, pos *Position) error {
	return d.db.WithContext(ctx).Create(pos).Error
}

func (d *Database) UpdatePosition(ctx context.Context, pos *Position) error {
	return d.db.WithContext(ctx).Save(pos).Error
}

func (d *Database) GetPosition(ctx context.Context, id string) (*Position, error) {
	var pos Position
	err := d.db.WithContext(ctx).First(&pos, "id = ?", id).Error
	return &pos, err
}

// ActivePositions returns the user's open positions.
func (d *Database) ActivePositions(ctx context.Context, userID string) ([]Position, error) {
	var positions []Position
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, PositionActive).
		Find(&positions).Error
	return positions, err
}

// ActiveExposure sums shares x entry price over the user's open positions.
func (d *Database) ActiveExposure(ctx context.Context, userID string) (decimal.Decimal, error) {
	positions, err := d.ActivePositions(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	exposure := decimal.Zero
	for i := range positions {
		exposure = exposure.Add(positions[i].Cost())
	}
	return exposure, nil
}

// Monitored position operations

func (d *Database) CreateMonitored(ctx context.Context, mp *MonitoredPosition) error {
	return d.db.WithContext(ctx).Create(mp).Error
}

func (d *Database) UpdateMonitored(ctx context.Context, mp *MonitoredPosition) error {
	return d.db.WithContext(ctx).Save(mp).Error
}

// ActiveMonitored returns every active monitored position across all users,
// ordered for a deterministic sweep.
func (d *Database) ActiveMonitored(ctx context.Context) ([]MonitoredPosition, error) {
	var monitored []MonitoredPosition
	err := d.db.WithContext(ctx).
		Where("active = ?", true).
		Order("user_id, created_at").
		Find(&monitored).Error
	return monitored, err
}

// Alert operations

func (d *Database) SaveAlert(ctx context.Context, alert *Alert) error {
	return d.db.WithContext(ctx).Create(alert).Error
}

// RecentAlerts returns the newest alerts, optionally scoped to one user.
func (d *Database) RecentAlerts(ctx context.Context, userID string, limit int) ([]Alert, error) {
	q := d.db.WithContext(ctx)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}

	var alerts []Alert
	err := q.Order("created_at DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
