package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"nlq_eval/internal/logging"
	"nlq_eval/internal/models"
)

// ExecutorConfig holds direct SQL connection configuration
type ExecutorConfig struct {
	// DSN may omit the password when EncryptedPassword is set.
	DSN               string
	EncryptedPassword string
	Passphrase        string
	Salt              string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	QueryTimeout time.Duration
	MaxRows      int
}

// DefaultExecutorConfig returns default executor configuration
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    60 * time.Second,
		MaxRows:         10000,
	}
}

// SQLExecutor runs analytic SQL directly against a Postgres database and
// returns tabular results. It is an alternative to the backend's execute-sql
// endpoint.
type SQLExecutor struct {
	conn         *sqlx.DB
	queryTimeout time.Duration
	maxRows      int
	logger       *logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSQLExecutor connects to the configured database
func NewSQLExecutor(cfg ExecutorConfig, logger *logging.Logger) (*SQLExecutor, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	dsn := cfg.DSN
	if cfg.EncryptedPassword != "" {
		enc, err := NewEncryptionFromPassphrase(cfg.Passphrase, cfg.Salt)
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		password, err := enc.DecryptString(cfg.EncryptedPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt database password: %w", err)
		}
		dsn, err = withPassword(dsn, password)
		if err != nil {
			return nil, err
		}
	}

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewSQLExecutorWithDB(conn, cfg.QueryTimeout, cfg.MaxRows, logger), nil
}

// NewSQLExecutorWithDB wraps an existing connection
func NewSQLExecutorWithDB(conn *sqlx.DB, queryTimeout time.Duration, maxRows int, logger *logging.Logger) *SQLExecutor {
	if logger == nil {
		logger = logging.NewLogger("sql-executor")
	}
	return &SQLExecutor{
		conn:         conn,
		queryTimeout: queryTimeout,
		maxRows:      maxRows,
		logger:       logger,
	}
}

// withPassword sets the password on a URL or key/value DSN.
func withPassword(dsn, password string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("failed to parse DSN: %w", err)
		}
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}

	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(password)
	return strings.TrimSpace(dsn) + " password='" + escaped + "'", nil
}

// ExecuteSQL runs query and returns its rows with columns in result order.
// At most MaxRows rows are returned.
func (e *SQLExecutor) ExecuteSQL(ctx context.Context, query string) (models.TableResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.TableResult{}, ErrEmptyQuery
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return models.TableResult{}, ErrExecutorClosed
	}

	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.conn.QueryxContext(ctx, query)
	if err != nil {
		return models.TableResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return models.TableResult{}, fmt.Errorf("failed to read columns: %w", err)
	}

	var values [][]any
	truncated := false
	for rows.Next() {
		if e.maxRows > 0 && len(values) >= e.maxRows {
			truncated = true
			break
		}
		vals, err := rows.SliceScan()
		if err != nil {
			return models.TableResult{}, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		values = append(values, vals)
	}
	if err := rows.Err(); err != nil {
		return models.TableResult{}, fmt.Errorf("failed to iterate rows: %w", err)
	}

	if truncated {
		e.logger.Warn("Query result truncated", "max_rows", e.maxRows)
	}
	e.logger.Debug("Executed query",
		"columns", len(columns),
		"rows", len(values),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return models.NewTableResult(columns, values), nil
}

// Health checks that the database answers a trivial query
func (e *SQLExecutor) Health(ctx context.Context) error {
	if err := e.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := e.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (e *SQLExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.conn.Close()
}
