package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	contractsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "name", Type: field.TypeString, Unique: true},
		{Name: "data", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	contractsTable = &schema.Table{
		Name:       "contracts",
		Columns:    contractsColumns,
		PrimaryKey: []*schema.Column{contractsColumns[0]},
	}

	documentTextsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "source_path", Type: field.TypeString, Unique: true},
		{Name: "name", Type: field.TypeString},
		{Name: "full_text", Type: field.TypeString, Size: 2147483647},
		{Name: "updated_at", Type: field.TypeTime},
	}
	documentTextsTable = &schema.Table{
		Name:       "document_texts",
		Columns:    documentTextsColumns,
		PrimaryKey: []*schema.Column{documentTextsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "documenttext_name", Columns: []*schema.Column{documentTextsColumns[2]}},
		},
	}

	keyStateColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_reset_at", Type: field.TypeFloat64},
		{Name: "counts", Type: field.TypeJSON},
		{Name: "updated_at", Type: field.TypeTime},
	}
	keyStateTable = &schema.Table{
		Name:       "key_state",
		Columns:    keyStateColumns,
		PrimaryKey: []*schema.Column{keyStateColumns[0]},
	}

	tables = []*schema.Table{contractsTable, documentTextsTable, keyStateTable}
)

// Migrate creates missing tables, columns and indexes. Nothing is dropped.
func (d *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		d.logger.Error("db.migrate.failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	d.logger.Info("db.migrated", "tables", len(tables))
	return nil
}
