// Package migrations embeds the PostgreSQL schema.
package migrations

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// FS holds the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS

// Source opens the embedded migrations for golang-migrate.
func Source() (source.Driver, error) {
	d, err := iofs.New(FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: open embedded source: %w", err)
	}
	return d, nil
}
