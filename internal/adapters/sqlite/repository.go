// Package sqlite implements the ports.RunRepository interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backsim/internal/domain"
	"backsim/internal/ports"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// newRunID mints the identity for a new run record.
func newRunID() string {
	return uuid.NewString()
}

// Repository implements the ports.RunRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/backsim.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		initial_capital REAL NOT NULL,
		commission_rate REAL NOT NULL,
		slippage_rate REAL NOT NULL,
		params TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		error_message TEXT DEFAULT NULL,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		commission REAL NOT NULL,
		slippage REAL NOT NULL,
		realized_pnl REAL NOT NULL DEFAULT 0,
		direction TEXT NOT NULL,
		state TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS performance_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		portfolio_value REAL NOT NULL,
		cash_balance REAL NOT NULL,
		position_value REAL NOT NULL,
		total_return REAL NOT NULL,
		drawdown REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		run_id TEXT PRIMARY KEY,
		metrics TEXT NOT NULL,
		equity_curve TEXT NOT NULL,
		drawdown_curve TEXT NOT NULL,
		final_cash REAL NOT NULL,
		completed_at TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trades_run_id ON trades (run_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_snapshots_run_id ON performance_snapshots (run_id, timestamp);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- RunRepository Implementation ---

// CreateRun persists a new run record in the pending state and returns its ID.
func (r *Repository) CreateRun(ctx context.Context, cfg *domain.BacktestConfig) (string, error) {
	const query = `
	INSERT INTO runs (id, strategy_id, symbol, interval, start_time, end_time,
	                  initial_capital, commission_rate, slippage_rate, params, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	runID := newRunID()
	params, err := json.Marshal(cfg.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode strategy params: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		runID, cfg.StrategyID, cfg.Symbol, cfg.Interval, cfg.StartTime, cfg.EndTime,
		cfg.InitialCapital, cfg.CommissionRate, cfg.SlippageRate, string(params),
		domain.RunPending, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run for strategy %s: %w", cfg.StrategyID, err)
	}
	r.logger.Debug(ctx, "Run created", map[string]interface{}{"runID": runID, "strategy": cfg.StrategyID})
	return runID, nil
}

// UpdateRunStatus transitions a run's status, recording the error message on failures.
func (r *Repository) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, errorMessage string) error {
	const query = `
	UPDATE runs
	SET status = ?, error_message = ?, completed_at = ?
	WHERE id = ?`

	var errMsg sql.NullString
	if errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}
	var completedAt sql.NullTime
	if status == domain.RunCompleted || status == domain.RunFailed {
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, status, errMsg, completedAt, runID)
	if err != nil {
		return fmt.Errorf("failed to update status for run %s: %w", runID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for run %s: %w", runID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found for status update: %w", runID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Run status updated", map[string]interface{}{"runID": runID, "status": status})
	return nil
}

// InsertTrade records a filled order against a run.
func (r *Repository) InsertTrade(ctx context.Context, runID string, order *domain.Order, direction domain.TradeDirection, state domain.TradeState) error {
	const query = `
	INSERT INTO trades (run_id, order_id, symbol, side, order_type, quantity, price,
	                    commission, slippage, realized_pnl, direction, state, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		runID, order.ID, order.Symbol, order.Side, order.Type, order.Quantity, order.FilledPrice,
		order.Commission, order.Slippage, order.RealizedPNL, direction, state, order.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert trade for run %s: %w", runID, err)
	}
	return nil
}

// InsertSnapshot records a periodic performance snapshot.
func (r *Repository) InsertSnapshot(ctx context.Context, snap *domain.PerformanceSnapshot) error {
	const query = `
	INSERT INTO performance_snapshots (run_id, timestamp, portfolio_value, cash_balance,
	                                   position_value, total_return, drawdown)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		snap.RunID, snap.Timestamp, snap.PortfolioValue, snap.CashBalance,
		snap.PositionValue, snap.TotalReturn, snap.Drawdown)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for run %s: %w", snap.RunID, err)
	}
	return nil
}

// SaveResult persists the final metrics and curves of a completed run.
func (r *Repository) SaveResult(ctx context.Context, result *domain.BacktestResult) error {
	const query = `
	INSERT OR REPLACE INTO results (run_id, metrics, equity_curve, drawdown_curve, final_cash, completed_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics for run %s: %w", result.RunID, err)
	}
	equity, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return fmt.Errorf("failed to encode equity curve for run %s: %w", result.RunID, err)
	}
	drawdown, err := json.Marshal(result.DrawdownCurve)
	if err != nil {
		return fmt.Errorf("failed to encode drawdown curve for run %s: %w", result.RunID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		result.RunID, string(metrics), string(equity), string(drawdown),
		result.FinalPortfolio.Cash, result.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save result for run %s: %w", result.RunID, err)
	}
	r.logger.Debug(ctx, "Run result saved", map[string]interface{}{"runID": result.RunID})
	return nil
}

// --- Read Path ---

// RunRecord is the persisted view of a run.
type RunRecord struct {
	ID           string
	StrategyID   string
	Symbol       string
	Interval     string
	Status       domain.RunStatus
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// GetRun retrieves a run record by its ID.
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	const query = `
	SELECT id, strategy_id, symbol, interval, status, error_message, created_at, completed_at
	FROM runs
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, runID)
	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return rec, nil
}

// ListRuns retrieves the most recent runs, newest first, up to a limit.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	const query = `
	SELECT id, strategy_id, symbol, interval, status, error_message, created_at, completed_at
	FROM runs
	ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	records := make([]*RunRecord, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run during ListRuns: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return records, nil
}

// GetMetrics retrieves the stored performance metrics of a completed run.
func (r *Repository) GetMetrics(ctx context.Context, runID string) (*domain.PerformanceMetrics, error) {
	const query = `SELECT metrics FROM results WHERE run_id = ?`

	var blob string
	err := r.db.QueryRowContext(ctx, query, runID).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("result for run %s: %w", runID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query result for run %s: %w", runID, err)
	}

	metrics := &domain.PerformanceMetrics{}
	if err := json.Unmarshal([]byte(blob), metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics for run %s: %w", runID, err)
	}
	return metrics, nil
}

// ListTrades retrieves all trades of a run in execution order.
func (r *Repository) ListTrades(ctx context.Context, runID string) ([]*domain.Order, error) {
	const query = `
	SELECT order_id, symbol, side, order_type, quantity, price, commission, slippage, realized_pnl, executed_at
	FROM trades
	WHERE run_id = ? ORDER BY executed_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for run %s: %w", runID, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during ListTrades: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return orders, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a RunRecord.
func scanRun(s scanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var errMsg sql.NullString
	var completedAt sql.NullTime
	var status string
	err := s.Scan(&rec.ID, &rec.StrategyID, &rec.Symbol, &rec.Interval, &status, &errMsg, &rec.CreatedAt, &completedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	rec.Status = domain.RunStatus(status)
	if errMsg.Valid {
		rec.ErrorMessage = errMsg.String
	}
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time
	}
	return rec, nil
}

// scanTrade scans a row into a filled domain.Order.
func scanTrade(s scanner) (*domain.Order, error) {
	o := &domain.Order{Status: domain.OrderFilled}
	var side, orderType string
	err := s.Scan(&o.ID, &o.Symbol, &side, &orderType, &o.Quantity, &o.FilledPrice,
		&o.Commission, &o.Slippage, &o.RealizedPNL, &o.Timestamp)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	return o, nil
}
