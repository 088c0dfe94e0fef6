package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/prasenjit/antbee/internal/models"
)

// Driver names registered with database/sql
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// SQLStorage implements Storage on top of database/sql. It also keeps the
// request log table so it can serve as an audit sink.
type SQLStorage struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) a SQLite database file
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLStorage, error) {
	return NewSQLStorage(DriverSQLite, path, logger)
}

// NewPostgresStorage connects to PostgreSQL using a pgx connection string
func NewPostgresStorage(dsn string, logger *slog.Logger) (*SQLStorage, error) {
	return NewSQLStorage(DriverPostgres, dsn, logger)
}

// NewSQLStorage opens the database and creates the schema if needed
func NewSQLStorage(driver, dsn string, logger *slog.Logger) (*SQLStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStorage{
		db:     db,
		driver: driver,
		logger: logger.With("component", "storage.sql", "driver", driver),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.logger.Info("SQL storage initialized")
	return s, nil
}

func (s *SQLStorage) migrate() error {
	ts := "TIMESTAMPTZ"
	if s.driver == DriverSQLite {
		ts = "DATETIME"
		if _, err := s.db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
			return err
		}
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			position BIGINT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_route ON endpoints (method, path)`,
		`CREATE TABLE IF NOT EXISTS response_variants (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 200,
			headers TEXT NOT NULL DEFAULT '{}',
			body TEXT NOT NULL DEFAULT '',
			delay_ms INTEGER NOT NULL DEFAULT 0,
			position BIGINT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_response_variants_endpoint ON response_variants (endpoint_id, position)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			condition_json TEXT NOT NULL,
			response_id TEXT NOT NULL DEFAULT '',
			position BIGINT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_endpoint ON rules (endpoint_id, priority, position)`,
		`CREATE TABLE IF NOT EXISTS request_logs (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			headers TEXT NOT NULL DEFAULT '{}',
			body TEXT NOT NULL DEFAULT '',
			query_params TEXT NOT NULL DEFAULT '{}',
			matched_rule_id TEXT NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_created ON request_logs (created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection
func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

const endpointColumns = `id, method, path, name, description, is_active, position, created_at, updated_at`

func scanEndpoint(row scanner) (*models.Endpoint, error) {
	var ep models.Endpoint
	if err := row.Scan(&ep.ID, &ep.Method, &ep.Path, &ep.Name, &ep.Description, &ep.IsActive, &ep.Position, &ep.CreatedAt, &ep.UpdatedAt); err != nil {
		return nil, err
	}
	return &ep, nil
}

const variantColumns = `id, endpoint_id, name, status_code, headers, body, delay_ms, position, created_at, updated_at`

func scanVariant(row scanner) (*models.ResponseVariant, error) {
	var (
		v       models.ResponseVariant
		headers string
		body    string
	)
	if err := row.Scan(&v.ID, &v.EndpointID, &v.Name, &v.StatusCode, &headers, &body, &v.DelayMs, &v.Position, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &v.Headers); err != nil {
		return nil, fmt.Errorf("response %s headers: %w", v.ID, err)
	}
	if body != "" {
		v.Body = json.RawMessage(body)
	}
	return &v, nil
}

const ruleColumns = `id, endpoint_id, priority, condition_json, response_id, position, created_at, updated_at`

func scanRule(row scanner) (*models.Rule, error) {
	var (
		r    models.Rule
		cond string
	)
	if err := row.Scan(&r.ID, &r.EndpointID, &r.Priority, &cond, &r.ResponseID, &r.Position, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	// A condition that fails to decode stays zero valued and never matches
	_ = json.Unmarshal([]byte(cond), &r.Condition)
	return &r, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

func checkAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func marshalText(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// inTx runs fn inside a transaction
func (s *SQLStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// FindEndpoint returns the endpoint registered for method and path
func (s *SQLStorage) FindEndpoint(ctx context.Context, method, path string) (*models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE method = $1 AND path = $2 ORDER BY position`,
		method, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close()

	var candidates []*models.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ep := pickEndpoint(candidates)
	if ep == nil {
		return nil, fmt.Errorf("endpoint %s %s: %w", method, path, ErrNotFound)
	}
	return ep, nil
}

// ListRules returns an endpoint's rules in evaluation order
func (s *SQLStorage) ListRules(ctx context.Context, endpointID string) ([]*models.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE endpoint_id = $1 ORDER BY priority, position`,
		endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListResponseVariants returns an endpoint's variants, default first
func (s *SQLStorage) ListResponseVariants(ctx context.Context, endpointID string) ([]*models.ResponseVariant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM response_variants WHERE endpoint_id = $1 ORDER BY position`,
		endpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	vs := make([]*models.ResponseVariant, 0)
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, rows.Err()
}

// CreateEndpoint creates a new endpoint
func (s *SQLStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	if ep.Position == 0 {
		ep.Position = nextPosition()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM endpoints WHERE id = $1 OR (method = $2 AND path = $3)`,
			ep.ID, ep.Method, ep.Path).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("endpoint %s %s: %w", ep.Method, ep.Path, ErrAlreadyExists)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO endpoints (`+endpointColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ep.ID, ep.Method, ep.Path, ep.Name, ep.Description, ep.IsActive, ep.Position, ep.CreatedAt.UTC(), ep.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert endpoint: %w", err)
		}
		return nil
	})
}

// GetEndpoint retrieves an endpoint by ID
func (s *SQLStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		return nil, notFound("endpoint", id, err)
	}
	return ep, nil
}

// ListEndpoints retrieves all endpoints in creation order
func (s *SQLStorage) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+endpointColumns+` FROM endpoints ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close()

	eps := make([]*models.Endpoint, 0)
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

// UpdateEndpoint updates an endpoint
func (s *SQLStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM endpoints WHERE id <> $1 AND method = $2 AND path = $3`,
			ep.ID, ep.Method, ep.Path).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("endpoint %s %s: %w", ep.Method, ep.Path, ErrAlreadyExists)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE endpoints SET method = $2, path = $3, name = $4, description = $5, is_active = $6, updated_at = $7 WHERE id = $1`,
			ep.ID, ep.Method, ep.Path, ep.Name, ep.Description, ep.IsActive, ep.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to update endpoint: %w", err)
		}
		return checkAffected(res, "endpoint", ep.ID)
	})
}

// DeleteEndpoint deletes an endpoint with its variants and rules
func (s *SQLStorage) DeleteEndpoint(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete endpoint: %w", err)
		}
		if err := checkAffected(res, "endpoint", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM response_variants WHERE endpoint_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete responses: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE endpoint_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete rules: %w", err)
		}
		return nil
	})
}

func (s *SQLStorage) endpointExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id string) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoints WHERE id = $1`, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateResponseVariant creates a new response variant
func (s *SQLStorage) CreateResponseVariant(ctx context.Context, v *models.ResponseVariant) error {
	if err := s.endpointExists(ctx, s.db, v.EndpointID); err != nil {
		return err
	}
	if v.Position == 0 {
		v.Position = nextPosition()
	}

	headers, err := marshalText(v.Headers)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO response_variants (`+variantColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.EndpointID, v.Name, v.StatusCode, headers, string(v.Body), v.DelayMs, v.Position, v.CreatedAt.UTC(), v.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// GetResponseVariant retrieves a response variant by ID
func (s *SQLStorage) GetResponseVariant(ctx context.Context, id string) (*models.ResponseVariant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM response_variants WHERE id = $1`, id)
	v, err := scanVariant(row)
	if err != nil {
		return nil, notFound("response", id, err)
	}
	return v, nil
}

// UpdateResponseVariant updates a response variant
func (s *SQLStorage) UpdateResponseVariant(ctx context.Context, v *models.ResponseVariant) error {
	headers, err := marshalText(v.Headers)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE response_variants SET name = $2, status_code = $3, headers = $4, body = $5, delay_ms = $6, updated_at = $7 WHERE id = $1`,
		v.ID, v.Name, v.StatusCode, headers, string(v.Body), v.DelayMs, v.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update response: %w", err)
	}
	return checkAffected(res, "response", v.ID)
}

// DeleteResponseVariant deletes a response variant
func (s *SQLStorage) DeleteResponseVariant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_variants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete response: %w", err)
	}
	return checkAffected(res, "response", id)
}

func insertRule(ctx context.Context, tx interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, r *models.Rule) error {
	cond, err := json.Marshal(r.Condition)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rules (`+ruleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.EndpointID, r.Priority, string(cond), r.ResponseID, r.Position, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// CreateRule creates a new rule
func (s *SQLStorage) CreateRule(ctx context.Context, rule *models.Rule) error {
	if err := s.endpointExists(ctx, s.db, rule.EndpointID); err != nil {
		return err
	}
	if rule.Position == 0 {
		rule.Position = nextPosition()
	}
	return insertRule(ctx, s.db, rule)
}

// GetRule retrieves a rule by ID
func (s *SQLStorage) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id)
	r, err := scanRule(row)
	if err != nil {
		return nil, notFound("rule", id, err)
	}
	return r, nil
}

// UpdateRule updates a rule
func (s *SQLStorage) UpdateRule(ctx context.Context, rule *models.Rule) error {
	cond, err := json.Marshal(rule.Condition)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET priority = $2, condition_json = $3, response_id = $4, updated_at = $5 WHERE id = $1`,
		rule.ID, rule.Priority, string(cond), rule.ResponseID, rule.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return checkAffected(res, "rule", rule.ID)
}

// DeleteRule deletes a rule
func (s *SQLStorage) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return checkAffected(res, "rule", id)
}

// ReplaceRules swaps an endpoint's whole rule set in one transaction
func (s *SQLStorage) ReplaceRules(ctx context.Context, endpointID string, rules []*models.Rule) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.endpointExists(ctx, tx, endpointID); err != nil {
			return err
		}
		if id, dup := duplicateRuleID(rules); dup {
			return fmt.Errorf("rule %s listed twice: %w", id, ErrAlreadyExists)
		}
		for _, r := range rules {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT endpoint_id FROM rules WHERE id = $1`, r.ID).Scan(&owner)
			if err == nil && owner != endpointID {
				return fmt.Errorf("rule %s belongs to endpoint %s: %w", r.ID, owner, ErrAlreadyExists)
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to check rule %s: %w", r.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE endpoint_id = $1`, endpointID); err != nil {
			return fmt.Errorf("failed to clear rules: %w", err)
		}
		for _, r := range rules {
			r.EndpointID = endpointID
			r.Position = nextPosition()
			if err := insertRule(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendLog stores a request log record
func (s *SQLStorage) AppendLog(ctx context.Context, log *models.RequestLog) error {
	headers, err := marshalText(log.Headers)
	if err != nil {
		return err
	}
	query, err := marshalText(log.QueryParams)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO request_logs (id, endpoint_id, method, path, status_code, duration_ms, headers, body, query_params, matched_rule_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.EndpointID, log.Method, log.Path, log.StatusCode, log.DurationMs, headers, string(log.Body), query, log.MatchedRuleID, log.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

const logColumns = `id, endpoint_id, method, path, status_code, duration_ms, headers, body, query_params, matched_rule_id, created_at`

func scanLog(row scanner) (*models.RequestLog, error) {
	var (
		l       models.RequestLog
		headers string
		body    string
		query   string
	)
	if err := row.Scan(&l.ID, &l.EndpointID, &l.Method, &l.Path, &l.StatusCode, &l.DurationMs, &headers, &body, &query, &l.MatchedRuleID, &l.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &l.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers of request log %s: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(query), &l.QueryParams); err != nil {
		return nil, fmt.Errorf("failed to decode query params of request log %s: %w", l.ID, err)
	}
	if body != "" {
		l.Body = json.RawMessage(body)
	}
	return &l, nil
}

// ListLogs returns request logs newest first
func (s *SQLStorage) ListLogs(ctx context.Context, filter *models.LogFilter) ([]*models.RequestLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	limit := 100
	if filter != nil {
		if filter.EndpointID != "" {
			add("endpoint_id = $%d", filter.EndpointID)
		}
		if filter.Method != "" {
			add("method = $%d", filter.Method)
		}
		if filter.StatusCode != 0 {
			add("status_code = $%d", filter.StatusCode)
		}
		if !filter.Since.IsZero() {
			add("created_at >= $%d", filter.Since.UTC())
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	query := `SELECT ` + logColumns + ` FROM request_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query request logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.RequestLog, 0)
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetLog retrieves a request log by ID
func (s *SQLStorage) GetLog(ctx context.Context, id string) (*models.RequestLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM request_logs WHERE id = $1`, id)
	l, err := scanLog(row)
	if err != nil {
		return nil, notFound("request log", id, err)
	}
	return l, nil
}

// ClearLogs deletes every request log
func (s *SQLStorage) ClearLogs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM request_logs`); err != nil {
		return fmt.Errorf("failed to clear request logs: %w", err)
	}
	return nil
}

// PruneBefore deletes request logs older than cutoff
func (s *SQLStorage) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_logs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune request logs: %w", err)
	}
	return res.RowsAffected()
}
