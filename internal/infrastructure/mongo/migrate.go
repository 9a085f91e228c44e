package mongo

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// インデックス定義はデフォルトのコレクション名を前提にしている。
//
//go:embed migrations/*.json
var migrationsFS embed.FS

// MigrationURL は接続URIのパスをデータベース名に置き換えた golang-migrate 用URLを返す。
func MigrationURL(mongoURI, database string) (string, error) {
	u, err := url.Parse(mongoURI)
	if err != nil {
		return "", fmt.Errorf("invalid mongo uri: %w", err)
	}
	if database = strings.TrimSpace(database); database == "" {
		return "", errors.New("database name is required")
	}
	u.Path = "/" + database
	return u.String(), nil
}

// NewMigrator はマイグレーション実行用の migrate インスタンスを生成する。
func NewMigrator(mongoURI, database string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	dbURL, err := MigrationURL(mongoURI, database)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。すでに最新の場合はエラーなしで返る。
func RunMigrations(mongoURI, database string, logger *slog.Logger) error {
	m, err := NewMigrator(mongoURI, database)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	if logger != nil {
		logger.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}
