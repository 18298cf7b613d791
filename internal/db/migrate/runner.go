// Package migrate applies the embedded settings and events migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"fleet-telemetry/agent/internal/db"
)

// ErrNoChange is returned when there is nothing to migrate.
var ErrNoChange = migrate.ErrNoChange

// ErrEmptyDSN is returned when no database URL is configured.
var ErrEmptyDSN = errors.New("migrate: database URL is not set")

func newSource() (source.Driver, error) {
	d, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return d, nil
}

// Run applies migrations against dsn. direction must be "up" or "down". Already being at the
// target version is not an error.
func Run(dsn string, direction string) error {
	if dsn == "" {
		return ErrEmptyDSN
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("migrate: direction must be up or down, got %q", direction)
	}

	src, err := newSource()
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Versions lists the embedded migration versions in ascending order.
func Versions() ([]uint, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	v, err := src.First()
	if err != nil {
		return nil, err
	}
	out := []uint{v}
	for {
		v, err = src.Next(v)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, v)
	}
}
