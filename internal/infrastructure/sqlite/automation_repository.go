package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/flowsync/internal/metadata"
)

const automationColumns = `key, title, description, namespace, flow_id, template_path,
	configuration_schema, labels, category, difficulty_level, price, created_at, updated_at`

// AutomationRepository implements metadata.Store on the automations table.
type AutomationRepository struct {
	db  *DB
	now func() time.Time
}

func newAutomationRepository(db *DB) *AutomationRepository {
	return &AutomationRepository{db: db, now: time.Now}
}

var _ metadata.Store = (*AutomationRepository)(nil)

func scanAutomation(scanner interface{ Scan(...any) error }) (*AutomationModel, error) {
	var m AutomationModel
	err := scanner.Scan(
		&m.Key, &m.Title, &m.Description, &m.Namespace, &m.FlowID, &m.TemplatePath,
		&m.ConfigurationSchema, &m.Labels, &m.Category, &m.DifficultyLevel, &m.Price,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// Upsert inserts the projection, overwriting every column except
// created_at when the key already exists.
func (r *AutomationRepository) Upsert(ctx context.Context, p metadata.Projection) error {
	m := toAutomationModel(p, r.now())
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO automations (`+automationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			namespace = excluded.namespace,
			flow_id = excluded.flow_id,
			template_path = excluded.template_path,
			configuration_schema = excluded.configuration_schema,
			labels = excluded.labels,
			category = excluded.category,
			difficulty_level = excluded.difficulty_level,
			price = excluded.price,
			updated_at = excluded.updated_at`,
		m.Key, m.Title, m.Description, m.Namespace, m.FlowID, m.TemplatePath,
		m.ConfigurationSchema, m.Labels, m.Category, m.DifficultyLevel, m.Price,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert automation %s: %w", p.Key, err)
	}
	return nil
}

// Get returns the projection stored under key, or metadata.ErrNotFound.
func (r *AutomationRepository) Get(ctx context.Context, key string) (metadata.Projection, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE key = ?`, key)
	m, err := scanAutomation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.Projection{}, fmt.Errorf("%w: %s", metadata.ErrNotFound, key)
	}
	if err != nil {
		return metadata.Projection{}, fmt.Errorf("failed to find automation: %w", err)
	}
	return m.toProjection(), nil
}

// Count returns the number of stored automations.
func (r *AutomationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM automations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count automations: %w", err)
	}
	return n, nil
}

// ListByNamespace returns the automations of one namespace ordered by key.
func (r *AutomationRepository) ListByNamespace(ctx context.Context, namespace string) ([]metadata.Projection, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []metadata.Projection
	for rows.Next() {
		m, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		out = append(out, m.toProjection())
	}
	return out, rows.Err()
}

// Close closes the owning database.
func (r *AutomationRepository) Close() error {
	return r.db.Close()
}
