package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/nus25/gyoka/models"
)

// UpsertDocument replaces the document stored for doc.Type.
func (d *DB) UpsertDocument(ctx context.Context, doc models.Document) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO documents (type, url, content) VALUES (?, ?, ?)",
		doc.Type, doc.Url, doc.Content,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// GetDocument loads the document of the given type, or nil when absent.
func (d *DB) GetDocument(ctx context.Context, docType string) (*models.Document, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("type", "url", "content").From("documents")
	sb.Where(sb.Equal("type", docType))
	sb.Limit(1)

	query, args := sb.Build()
	var doc models.Document
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&doc.Type, &doc.Url, &doc.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns all stored documents.
func (d *DB) ListDocuments(ctx context.Context) ([]models.Document, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("type", "url", "content").From("documents")

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.Type, &doc.Url, &doc.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
