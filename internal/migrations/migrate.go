package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	pg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const migrationsTable = "schema_migrations_battlerelay"

var versionPrefix = regexp.MustCompile(`^0*([0-9]+)_`)

// Run applies the file migrations in dir. A database that already carries the
// profile table but no migrate metadata is baselined to the newest version
// instead of being re-created.
func Run(databaseURL, dir string, logger *zap.Logger) error {
	if databaseURL == "" {
		return errors.New("database URL is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	// Checked before the driver exists: WithInstance creates the version table.
	baseline := needsBaseline(sqlDB)

	driver, err := pg.WithInstance(sqlDB, &pg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if baseline {
		if latest := LatestVersion(abs); latest > 0 {
			logger.Info("baselining existing schema", zap.Int64("version", latest))
			if err := m.Force(int(latest)); err != nil {
				logger.Warn("baseline failed", zap.Int64("version", latest), zap.Error(err))
			}
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	logger.Info("migrations applied", zap.String("dir", abs))
	return nil
}

func needsBaseline(db *sql.DB) bool {
	var profiles, meta bool
	row := db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'player_profiles')")
	if err := row.Scan(&profiles); err != nil || !profiles {
		return false
	}
	row = db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", migrationsTable)
	if err := row.Scan(&meta); err != nil {
		return false
	}
	return !meta
}

// LatestVersion returns the highest numeric prefix among the files in dir,
// or 0 when there are none.
func LatestVersion(dir string) int64 {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	var latest int64
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := versionPrefix.FindStringSubmatch(f.Name())
		if len(m) < 2 {
			continue
		}
		v, _ := strconv.ParseInt(m[1], 10, 64)
		if v > latest {
			latest = v
		}
	}
	return latest
}
