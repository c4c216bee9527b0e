package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// migrationsFS holds embedded SQL migrations in migrate/sql.
//
//go:embed sql/*.sql
var migrationsFS embed.FS

const dir = "sql"

// Options defines how to run migrations.
type Options struct {
	DSN     string
	Command string // up, down, status, version, reset
	Logger  *zap.Logger
}

// Run executes migrations against the PostgreSQL database at DSN through the
// pgx stdlib driver.
func Run(opts Options) error {
	if strings.TrimSpace(opts.DSN) == "" {
		return fmt.Errorf("migrate: dsn is required")
	}

	if opts.Logger != nil {
		goose.SetLogger(gooseLogger{opts.Logger.Sugar()})
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: dialect: %w", err)
	}

	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return fmt.Errorf("migrate: open db: %w", err)
	}
	defer db.Close()

	return command(db, opts.Command)
}

// Embedded returns the migration filesystem.
func Embedded() embed.FS {
	return migrationsFS
}

func command(db *sql.DB, cmd string) error {
	switch strings.ToLower(strings.TrimSpace(cmd)) {
	case "", "up":
		return goose.Up(db, dir)
	case "down":
		return goose.Down(db, dir)
	case "status":
		return goose.Status(db, dir)
	case "version":
		return goose.Version(db, dir)
	case "reset":
		return goose.Reset(db, dir)
	default:
		return fmt.Errorf("migrate: unknown command %q", cmd)
	}
}

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(strings.TrimSpace(format), v...) }
func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(strings.TrimSpace(format), v...) }
