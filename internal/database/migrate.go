// Package database はPostgreSQL接続とスキーママイグレーションを提供する。
//
// スキーマ（投稿・既読状態・監査ログ）はmigrations/以下のSQLが唯一の定義で、
// バイナリに埋め込んでgolang-migrateで適用する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗し、手動での修復が必要なことを表す。
var ErrDirtySchema = errors.New("schema is dirty; fix the failed migration and force the version")

// ErrNoMigrationApplied はロールバック対象のマイグレーションがないことを表す。
var ErrNoMigrationApplied = errors.New("no migration has been applied")

// SchemaStatus は適用済みのスキーマバージョン。Appliedがfalseの場合は未適用。
type SchemaStatus struct {
	Version uint
	Dirty   bool
	Applied bool
}

// NewMigrator は埋め込みSQLを読み込むmigrateインスタンスを生成する。呼び出し元でCloseすること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用する。最新の場合は何もしない。
func RunMigrations(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		status, err := schemaStatus(m)
		if err != nil {
			return err
		}
		if status.Dirty {
			return fmt.Errorf("version %d: %w", status.Version, ErrDirtySchema)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// RollbackMigration は直近のマイグレーションを1つ取り消す。
func RollbackMigration(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		status, err := schemaStatus(m)
		if err != nil {
			return err
		}
		if !status.Applied {
			return ErrNoMigrationApplied
		}
		if status.Dirty {
			return fmt.Errorf("version %d: %w", status.Version, ErrDirtySchema)
		}

		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("failed to roll back version %d: %w", status.Version, err)
		}
		return nil
	})
}

// SchemaVersion は現在のスキーマバージョンを返す。
func SchemaVersion(databaseURL string) (SchemaStatus, error) {
	var status SchemaStatus
	err := withMigrator(databaseURL, func(m *migrate.Migrate) error {
		var err error
		status, err = schemaStatus(m)
		return err
	})
	return status, err
}

func withMigrator(databaseURL string, fn func(m *migrate.Migrate) error) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func schemaStatus(m *migrate.Migrate) (SchemaStatus, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaStatus{}, nil
	}
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaStatus{Version: version, Dirty: dirty, Applied: true}, nil
}
