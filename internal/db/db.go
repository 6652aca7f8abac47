// Package db provides PostgreSQL persistence for the participant
// registry and the tool-call audit trail.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrDuplicateIdentity is returned by InsertParticipant when the
// identity is already registered.
var ErrDuplicateIdentity = errors.New("identity already registered")

// DB wraps the underlying *sql.DB and provides typed query methods.
type DB struct {
	conn *sql.DB
}

// New opens a PostgreSQL connection and verifies connectivity.
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := ApplyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Participant is a registered event participant. Identity is the unique
// key (typically an email address).
type Participant struct {
	Identity  string            `json:"identity"`
	Name      string            `json:"name"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// InsertParticipant creates a new participant record. Returns
// ErrDuplicateIdentity if the identity already exists; the primary key
// constraint decides the winner when two inserts race.
func (d *DB) InsertParticipant(ctx context.Context, p *Participant) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = d.conn.ExecContext(ctx,
		`INSERT INTO participants (identity, name, metadata, created_at) VALUES ($1, $2, $3, $4)`,
		p.Identity, p.Name, meta, p.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves a participant by identity. Returns nil if
// not found.
func (d *DB) GetParticipant(ctx context.Context, identity string) (*Participant, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT identity, name, metadata, created_at FROM participants WHERE identity = $1`, identity,
	)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns all participants ordered by identity.
func (d *DB) ListParticipants(ctx context.Context) ([]*Participant, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT identity, name, metadata, created_at FROM participants ORDER BY identity ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteParticipant deletes a participant and returns the removed
// record. Returns nil if the identity was not present.
func (d *DB) DeleteParticipant(ctx context.Context, identity string) (*Participant, error) {
	row := d.conn.QueryRowContext(ctx,
		`DELETE FROM participants WHERE identity = $1 RETURNING identity, name, metadata, created_at`,
		identity,
	)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete participant: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*Participant, error) {
	p := &Participant{}
	var meta []byte
	if err := row.Scan(&p.Identity, &p.Name, &meta, &p.CreatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return p, nil
}

// ToolCall is one audited dispatch through the facade.
type ToolCall struct {
	ToolCallID string    `json:"tool_call_id"`
	TraceID    string    `json:"trace_id"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	ErrorKind  *string   `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// InsertToolCall records a dispatched tool call.
func (d *DB) InsertToolCall(ctx context.Context, tc *ToolCall) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO tool_calls (tool_call_id, trace_id, operation, status, error_kind, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tc.ToolCallID, tc.TraceID, tc.Operation, tc.Status, tc.ErrorKind, tc.DurationMS, tc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tool_call: %w", err)
	}
	return nil
}

// ListToolCalls returns recent tool calls, most recent first.
func (d *DB) ListToolCalls(ctx context.Context, limit int) ([]*ToolCall, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT tool_call_id, trace_id, operation, status, error_kind, duration_ms, created_at
		 FROM tool_calls ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tool_calls: %w", err)
	}
	defer rows.Close()

	var tcs []*ToolCall
	for rows.Next() {
		tc := &ToolCall{}
		if err := rows.Scan(&tc.ToolCallID, &tc.TraceID, &tc.Operation, &tc.Status, &tc.ErrorKind, &tc.DurationMS, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool_call: %w", err)
		}
		tcs = append(tcs, tc)
	}
	return tcs, rows.Err()
}
