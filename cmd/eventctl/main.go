// Eventctl is the operator CLI of the device agent: it emits events, prints the resolved
// identity, reads and writes settings, dumps spool files and lists recent events.
//
//	eventctl [--sink kind] [--spool-dir dir] [--settings-db dsn] [--events-db dsn] <command>
//
// Commands:
//
//	emit --name N [--data JSON] [--correlation-id C] [--raw]
//	identity
//	settings list
//	settings get KEY
//	settings set KEY VALUE
//	spool dump [--date YYYYMMDD]
//	recent [--limit N]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fleet-telemetry/agent/internal/app"
	"fleet-telemetry/agent/internal/config"
	"fleet-telemetry/agent/internal/db"
	"fleet-telemetry/agent/internal/events/repository"
	"fleet-telemetry/agent/internal/events/spool"
	"fleet-telemetry/agent/internal/identity/platform"
	"fleet-telemetry/agent/internal/logging"
)

const usage = `usage: eventctl [flags] <command>

commands:
  emit --name N [--data JSON] [--correlation-id C] [--raw]
  identity
  settings list
  settings get KEY
  settings set KEY VALUE
  spool dump [--date YYYYMMDD]
  recent [--limit N]

flags:
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries what every command needs.
type cli struct {
	cfg      *config.Config
	logger   zerolog.Logger
	stdout   io.Writer
	stderr   io.Writer
	platform platform.Platform
}

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return runWith(ctx, args, stdout, stderr, nil)
}

func runWith(ctx context.Context, args []string, stdout, stderr io.Writer, p platform.Platform) int {
	fs := pflag.NewFlagSet("eventctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.String("sink", "", "event sink: postgres, kafka, otel, spool, memory or none")
	fs.String("spool-dir", "", "spool directory")
	fs.String("settings-db", "", "settings store Postgres DSN")
	fs.String("events-db", "", "events Postgres DSN")
	fs.String("log-level", "", "log level")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	v := viper.New()
	for key, flag := range map[string]string{
		"EVENT_SINK":            "sink",
		"SPOOL_DIR":             "spool-dir",
		"SETTINGS_DATABASE_URL": "settings-db",
		"EVENTS_DATABASE_URL":   "events-db",
		"LOG_LEVEL":             "log-level",
	} {
		_ = v.BindPFlag(key, fs.Lookup(flag))
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitError
	}
	logger, err := logging.New(stderr, cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintln(stderr, "logging:", err)
		return exitError
	}

	c := &cli{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr, platform: p}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}
	switch rest[0] {
	case "emit":
		return c.emit(ctx, rest[1:])
	case "identity":
		return c.identity(ctx)
	case "settings":
		return c.settings(ctx, rest[1:])
	case "spool":
		return c.spool(rest[1:])
	case "recent":
		return c.recent(ctx, rest[1:])
	}
	fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
	fs.Usage()
	return exitUsage
}

func (c *cli) newApp(ctx context.Context) (*app.App, error) {
	var opts []app.Option
	if c.platform != nil {
		opts = append(opts, app.WithPlatform(c.platform))
	}
	return app.New(ctx, c.cfg, c.logger, opts...)
}

func (c *cli) closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("shutdown")
	}
}

func (c *cli) emit(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("emit", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	name := fs.String("name", "", "event name")
	data := fs.String("data", "{}", "event payload as JSON")
	correlationID := fs.String("correlation-id", "", "correlation id (generated when empty)")
	raw := fs.Bool("raw", false, "insert data verbatim and fail on identity errors")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *name == "" {
		fmt.Fprintln(c.stderr, "emit: --name is required")
		return exitUsage
	}
	if !json.Valid([]byte(*data)) {
		fmt.Fprintln(c.stderr, "emit: --data is not valid JSON")
		return exitUsage
	}

	a, err := c.newApp(ctx)
	if err != nil {
		fmt.Fprintln(c.stderr, "emit:", err)
		return exitError
	}
	defer c.closeApp(a)

	if *raw {
		corr := *correlationID
		if corr == "" {
			corr = uuid.NewString()
		}
		if err := a.Pipeline.Insert(ctx, *name, *data, corr); err != nil {
			fmt.Fprintln(c.stderr, "emit:", err)
			return exitError
		}
		fmt.Fprintln(c.stdout, corr)
		return exitOK
	}
	a.Pipeline.InsertPayload(ctx, *name, json.RawMessage(*data))
	return exitOK
}

func (c *cli) identity(ctx context.Context) int {
	a, err := c.newApp(ctx)
	if err != nil {
		fmt.Fprintln(c.stderr, "identity:", err)
		return exitError
	}
	defer c.closeApp(a)

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.Resolver.Snapshot(ctx)); err != nil {
		fmt.Fprintln(c.stderr, "identity:", err)
		return exitError
	}
	return exitOK
}

func (c *cli) settings(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, "settings: expected list, get or set")
		return exitUsage
	}
	switch {
	case args[0] == "list" && len(args) == 1:
	case args[0] == "get" && len(args) == 2:
	case args[0] == "set" && len(args) == 3:
	default:
		fmt.Fprintln(c.stderr, "usage: settings list | settings get KEY | settings set KEY VALUE")
		return exitUsage
	}

	a, err := c.newApp(ctx)
	if err != nil {
		fmt.Fprintln(c.stderr, "settings:", err)
		return exitError
	}
	defer c.closeApp(a)

	switch args[0] {
	case "list":
		all, err := a.Settings.List(ctx)
		if err != nil {
			fmt.Fprintln(c.stderr, "settings:", err)
			return exitError
		}
		for _, st := range all {
			fmt.Fprintf(c.stdout, "%s=%s\n", st.Name, st.Value)
		}
		return exitOK
	case "get":
		v, ok := a.Settings.Value(ctx, args[1])
		if !ok {
			fmt.Fprintf(c.stderr, "settings: %s not set\n", args[1])
			return exitError
		}
		fmt.Fprintln(c.stdout, v)
		return exitOK
	}
	if err := a.Settings.Store(ctx, args[1], args[2]); err != nil {
		fmt.Fprintln(c.stderr, err)
		return exitError
	}
	return exitOK
}

func (c *cli) spool(args []string) int {
	if len(args) == 0 || args[0] != "dump" {
		fmt.Fprintln(c.stderr, "usage: spool dump [--date YYYYMMDD]")
		return exitUsage
	}
	fs := pflag.NewFlagSet("spool dump", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	date := fs.String("date", time.Now().UTC().Format("20060102"), "UTC day of the spool file")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}
	if c.cfg.SpoolDir == "" {
		fmt.Fprintln(c.stderr, "spool: --spool-dir or SPOOL_DIR is required")
		return exitUsage
	}
	day, err := time.Parse("20060102", *date)
	if err != nil {
		fmt.Fprintln(c.stderr, "spool: invalid --date:", err)
		return exitUsage
	}

	records, err := spool.ReadFile(filepath.Join(c.cfg.SpoolDir, spool.FileName(day)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(c.stderr, err)
		if len(records) == 0 {
			return exitError
		}
	}
	enc := json.NewEncoder(c.stdout)
	for _, ev := range records {
		if err := enc.Encode(ev); err != nil {
			return exitError
		}
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitError
	}
	return exitOK
}

func (c *cli) recent(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("recent", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	limit := fs.Int("limit", 20, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *limit <= 0 {
		fmt.Fprintln(c.stderr, "recent: --limit must be positive")
		return exitUsage
	}
	if c.cfg.EventsDatabaseURL == "" {
		fmt.Fprintln(c.stderr, "recent: --events-db or EVENTS_DATABASE_URL is required")
		return exitUsage
	}

	conn, err := db.Open(c.cfg.EventsDatabaseURL)
	if err != nil {
		fmt.Fprintln(c.stderr, "recent:", err)
		return exitError
	}
	defer conn.Close()

	records, err := repository.NewPostgresSink(conn, c.logger).ListRecent(ctx, *limit)
	if err != nil {
		fmt.Fprintln(c.stderr, "recent:", err)
		return exitError
	}
	enc := json.NewEncoder(c.stdout)
	for _, ev := range records {
		if err := enc.Encode(ev); err != nil {
			return exitError
		}
	}
	return exitOK
}
