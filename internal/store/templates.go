// Package store holds the Postgres repositories. Queries use database/sql
// directly; JSON-shaped columns (variables, search_params, contacts,
// template_data, recurrence date lists) are marshalled at the boundary.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"notification-workers/internal/models"
)

// TemplateRepo persists templates. Lookup misses return (nil, nil); callers
// decide whether a miss is an error.
type TemplateRepo struct {
	db *sql.DB
}

func NewTemplateRepo(db *sql.DB) *TemplateRepo {
	return &TemplateRepo{db: db}
}

const templateColumns = `id, slug, name, title, content, is_base, variables, search_params, created_at, updated_at`

func (r *TemplateRepo) GetBySlug(ctx context.Context, slug string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE slug = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, slug))
}

func (r *TemplateRepo) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetBase returns the wrapper template, or (nil, nil) when none is installed.
func (r *TemplateRepo) GetBase(ctx context.Context) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE is_base = TRUE`
	return r.scanOne(r.db.QueryRowContext(ctx, query))
}

func (r *TemplateRepo) List(ctx context.Context, limit, offset int) ([]*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Insert(ctx context.Context, t *models.Template) (*models.Template, error) {
	variables, searchParams, err := marshalTemplateJSON(t)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO templates (slug, name, title, content, is_base, variables, search_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + templateColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query,
		t.Slug, t.Name, t.Title, t.Content, t.IsBase, variables, searchParams))
}

func (r *TemplateRepo) Update(ctx context.Context, t *models.Template) (*models.Template, error) {
	variables, searchParams, err := marshalTemplateJSON(t)
	if err != nil {
		return nil, err
	}

	query := `UPDATE templates
		SET slug = $1, name = $2, title = $3, content = $4, variables = $5, search_params = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING ` + templateColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query,
		t.Slug, t.Name, t.Title, t.Content, variables, searchParams, t.ID))
}

func (r *TemplateRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template %d: %w", id, err)
	}
	return nil
}

// ReferenceCount counts notifications still pointing at the template.
func (r *TemplateRepo) ReferenceCount(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE template_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count template references: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TemplateRepo) scanOne(row rowScanner) (*models.Template, error) {
	var (
		t            models.Template
		variables    []byte
		searchParams []byte
	)
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Title, &t.Content, &t.IsBase,
		&variables, &searchParams, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode template variables: %w", err)
		}
	}
	if len(searchParams) > 0 {
		if err := json.Unmarshal(searchParams, &t.SearchParams); err != nil {
			return nil, fmt.Errorf("failed to decode template search params: %w", err)
		}
	}
	return &t, nil
}

func marshalTemplateJSON(t *models.Template) (variables, searchParams []byte, err error) {
	variables, err = json.Marshal(t.Variables)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode template variables: %w", err)
	}
	if t.SearchParams != nil {
		searchParams, err = json.Marshal(t.SearchParams)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode template search params: %w", err)
		}
	}
	return variables, searchParams, nil
}
