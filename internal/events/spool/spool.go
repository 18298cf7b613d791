// Package spool provides an append-only file sink that stores events as a CBOR sequence,
// one file per UTC day.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/events/repository"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Sink appends events under Dir. The sink is absent while Dir does not exist.
type Sink struct {
	Dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// New returns a spool sink writing under dir.
func New(dir string, logger zerolog.Logger) *Sink {
	return &Sink{Dir: dir, now: time.Now, logger: logger.With().Str("component", "events.spool").Logger()}
}

// FileName returns the spool file name for t.
func FileName(t time.Time) string {
	return "events-" + t.UTC().Format("20060102") + ".cbor"
}

// TryAcquire opens today's spool file for appending.
func (s *Sink) TryAcquire(context.Context) (repository.SinkHandle, bool) {
	if s == nil || s.Dir == "" {
		return nil, false
	}
	if fi, err := os.Stat(s.Dir); err != nil || !fi.IsDir() {
		return nil, false
	}
	path := filepath.Join(s.Dir, FileName(s.now()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("spool file unavailable")
		return nil, false
	}
	return &handle{f: f}, true
}

var _ repository.SinkProvider = (*Sink)(nil)

type handle struct {
	f *os.File
}

// Insert writes the encoded record with a single write call.
func (h *handle) Insert(_ context.Context, ev *domain.EventRecord) error {
	b, err := encMode.Marshal(ev)
	if err != nil {
		return err
	}
	n, err := h.f.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

func (h *handle) Release() error {
	return h.f.Close()
}

// ReadFile decodes every record in a spool file.
func ReadFile(path string) ([]*domain.EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := cbor.NewDecoder(f)
	var out []*domain.EventRecord
	for {
		ev := &domain.EventRecord{}
		if err := dec.Decode(ev); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("spool: decode record %d: %w", len(out), err)
		}
		out = append(out, ev)
	}
}
