package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/provider"
	"fleet-telemetry/agent/internal/settings/domain"
)

const (
	querySetting  = `SELECT value FROM settings WHERE name = $1`
	listSettings  = `SELECT name, value FROM settings ORDER BY name`
	upsertSetting = `INSERT INTO settings (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
)

// PostgresProvider hands out one pooled connection per acquisition. No connection is held
// between calls.
type PostgresProvider struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresProvider returns a settings provider backed by db. A nil db yields an always-absent provider.
func NewPostgresProvider(db *sql.DB, logger zerolog.Logger) *PostgresProvider {
	return &PostgresProvider{db: db, logger: logger.With().Str("component", "settings.postgres").Logger()}
}

// TryAcquire checks out a connection. The store is reported absent when no connection can be obtained.
func (p *PostgresProvider) TryAcquire(ctx context.Context) (Handle, bool) {
	if p == nil || p.db == nil {
		return nil, false
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("settings store unreachable")
		return nil, false
	}
	return &postgresHandle{conn: conn}, true
}

var _ provider.Provider[Handle] = (*PostgresProvider)(nil)

type postgresHandle struct {
	conn *sql.Conn
}

func (h *postgresHandle) Query(ctx context.Context, name string) (string, bool, error) {
	var v sql.NullString
	err := h.conn.QueryRowContext(ctx, querySetting, name).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if !v.Valid {
		return "", false, nil
	}
	return v.String, true, nil
}

func (h *postgresHandle) Insert(ctx context.Context, name, value string) error {
	res, err := h.conn.ExecContext(ctx, upsertSetting, name, value)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("settings: insert affected no rows")
	}
	return nil
}

func (h *postgresHandle) List(ctx context.Context) ([]domain.Setting, error) {
	rows, err := h.conn.QueryContext(ctx, listSettings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Name, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (h *postgresHandle) Release() error {
	return h.conn.Close()
}
