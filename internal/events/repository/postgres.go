package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/events/domain"
)

const insertEvent = `INSERT INTO events
	(unique_id, name, timestamp_ms, "user", workstation, data, correlation_id, application_version, application_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const listRecent = `SELECT unique_id, name, timestamp_ms, "user", workstation, data, correlation_id, application_version, application_name
FROM events ORDER BY timestamp_ms DESC, id DESC LIMIT $1`

// PostgresSink persists events to the events table, checking out one connection per acquisition.
type PostgresSink struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresSink returns a sink provider backed by db. A nil db yields an always-absent sink.
func NewPostgresSink(db *sql.DB, logger zerolog.Logger) *PostgresSink {
	return &PostgresSink{db: db, logger: logger.With().Str("component", "events.postgres").Logger()}
}

// TryAcquire checks out a connection; the sink is absent when none can be obtained.
func (s *PostgresSink) TryAcquire(ctx context.Context) (SinkHandle, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("event sink unreachable")
		return nil, false
	}
	return &postgresHandle{conn: conn}, true
}

// ListRecent returns up to limit events, newest first.
func (s *PostgresSink) ListRecent(ctx context.Context, limit int) ([]*domain.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, listRecent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.EventRecord
	for rows.Next() {
		ev := &domain.EventRecord{}
		if err := rows.Scan(&ev.UniqueID, &ev.Name, &ev.Timestamp, &ev.User, &ev.Workstation,
			&ev.Data, &ev.CorrelationID, &ev.ApplicationVersion, &ev.ApplicationName); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

var _ SinkProvider = (*PostgresSink)(nil)

type postgresHandle struct {
	conn *sql.Conn
}

func (h *postgresHandle) Insert(ctx context.Context, ev *domain.EventRecord) error {
	_, err := h.conn.ExecContext(ctx, insertEvent,
		ev.UniqueID, ev.Name, ev.Timestamp, ev.User, ev.Workstation,
		ev.Data, ev.CorrelationID, ev.ApplicationVersion, ev.ApplicationName)
	return err
}

func (h *postgresHandle) Release() error {
	return h.conn.Close()
}
