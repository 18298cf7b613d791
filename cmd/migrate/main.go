// Migrate applies the embedded settings and events migrations. The target database is
// SETTINGS_DATABASE_URL unless --database or --target events selects another one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"fleet-telemetry/agent/internal/config"
	"fleet-telemetry/agent/internal/db/migrate"
)

func main() {
	direction := pflag.String("direction", "up", "Migration direction: up or down")
	target := pflag.String("target", "settings", "Database to migrate: settings or events")
	database := pflag.String("database", "", "Postgres DSN; overrides --target")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	dsn := *database
	if dsn == "" {
		switch *target {
		case "settings":
			dsn = cfg.SettingsDatabaseURL
		case "events":
			dsn = cfg.EventsDatabaseURL
		default:
			fmt.Fprintf(os.Stderr, "migrate: unknown --target %q\n", *target)
			os.Exit(2)
		}
	}

	if err := migrate.Run(dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
