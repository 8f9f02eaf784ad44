package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// database/sql drivers for the two SQL backends
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_name TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	value TEXT NOT NULL,
	metadata TEXT,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_metric_time
	ON metrics(agent_name, metric_type, timestamp);`

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS metrics (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	agent_name VARCHAR(255) NOT NULL,
	metric_type VARCHAR(64) NOT NULL,
	value TEXT NOT NULL,
	metadata TEXT,
	timestamp DATETIME(6) NOT NULL,
	INDEX idx_agent_metric_time (agent_name, metric_type, timestamp)
)`

// SQLStore is a [Store] backed by a database/sql database. Both the SQLite
// and MySQL backends use it; they share the same schema and, since both
// drivers use ? placeholders, the same statements.
type SQLStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewMySQLStore connects to MySQL using a go-sql-driver DSN
// (user:pass@tcp(host:port)/dbname). The connection is verified with a ping
// and the schema is created if missing.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}

	if _, err := db.Exec(mysqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize mysql schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Save inserts a single record.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	var metadata any
	if len(rec.Metadata) > 0 {
		metadata = mustJSON(rec.Metadata)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (agent_name, metric_type, value, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Agent, rec.Type, rec.Value, metadata, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// Records returns matching records, newest first.
func (s *SQLStore) Records(ctx context.Context, q Query) ([]Record, error) {
	query := `SELECT agent_name, metric_type, value, metadata, timestamp
		FROM metrics WHERE agent_name = ?`
	args := []any{q.Agent}

	if q.Type != "" {
		query += " AND metric_type = ?"
		args = append(args, q.Type)
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, q.Until.UTC())
	}
	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var metadata sql.NullString
		if err := rows.Scan(&rec.Agent, &rec.Type, &rec.Value, &metadata, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				rec.Metadata = nil
			}
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}
	return results, nil
}

// Agents returns the sorted names of all agents with stored records.
func (s *SQLStore) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT agent_name FROM metrics ORDER BY agent_name")
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
