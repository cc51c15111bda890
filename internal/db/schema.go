package db

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var schemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// EnsureSchema creates a Postgres schema if it does not exist yet.
func EnsureSchema(d *gorm.DB, schema string) error {
	if !schemaName.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}

// Migrate ensures the schema and auto-migrates models into it.
func Migrate(d *gorm.DB, schema string, models ...any) error {
	if err := EnsureSchema(d, schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", schema, err)
	}
	if err := d.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrate %s: %w", schema, err)
	}
	return nil
}
