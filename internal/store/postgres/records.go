package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

// CreateTask inserts a task for the tenant.
func (s *Store) CreateTask(ctx context.Context, task ir.Task) (ir.Task, error) {
	if task.TenantID == "" || task.Title == "" {
		return ir.Task{}, errors.New("create task: tenant and title are required")
	}
	if task.ID == "" {
		task.ID = s.newID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, tenant_id, title, description, assigned_to, contact_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, task.ID, task.TenantID, task.Title, task.Description, task.AssignedTo, task.ContactID, task.CreatedAt)
	if err != nil {
		return ir.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// UpsertTag atomically fetches or creates the tag (tenantID, name).
// A concurrent insert of the same name blocks on the unique index until the
// other transaction commits, after which the select observes its row.
func (s *Store) UpsertTag(ctx context.Context, tenantID, name string) (ir.Tag, bool, error) {
	if tenantID == "" || name == "" {
		return ir.Tag{}, false, errors.New("upsert tag: tenant and name are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag := ir.Tag{TenantID: tenantID, Name: name}
	created := true
	err = tx.QueryRow(ctx, `
		INSERT INTO tags (id, tenant_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, name) DO NOTHING
		RETURNING id
	`, s.newID(), tenantID, name).Scan(&tag.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
		err = tx.QueryRow(ctx, `
			SELECT id FROM tags WHERE tenant_id = $1 AND name = $2
		`, tenantID, name).Scan(&tag.ID)
		if err != nil {
			return ir.Tag{}, false, fmt.Errorf("upsert tag: select: %w", err)
		}
	} else if err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: commit: %w", err)
	}
	return tag, created, nil
}

// AttachTag links a tenant's tag to a contact; an existing link is a no-op.
func (s *Store) AttachTag(ctx context.Context, tenantID, contactID, tagID string) (bool, error) {
	if contactID == "" {
		return false, errors.New("attach tag: contact is required")
	}

	var owner string
	err := s.pool.QueryRow(ctx, `SELECT tenant_id FROM tags WHERE id = $1`, tagID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != tenantID) {
		return false, fmt.Errorf("attach tag %s: %w", tagID, store.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("attach tag: select tag: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO contact_tags (tenant_id, contact_id, tag_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contact_id, tag_id) DO NOTHING
	`, tenantID, contactID, tagID, s.now())
	if err != nil {
		return false, fmt.Errorf("attach tag: insert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListContactTags returns the tags attached to a contact, by name.
func (s *Store) ListContactTags(ctx context.Context, tenantID, contactID string) ([]ir.Tag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.tenant_id, t.name
		FROM contact_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.tenant_id = $1 AND ct.contact_id = $2
		ORDER BY t.name ASC
	`, tenantID, contactID)
	if err != nil {
		return nil, fmt.Errorf("list contact tags: %w", err)
	}
	tags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ir.Tag, error) {
		var t ir.Tag
		err := row.Scan(&t.ID, &t.TenantID, &t.Name)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("list contact tags: %w", err)
	}
	if tags == nil {
		tags = []ir.Tag{}
	}
	return tags, nil
}

// ListTasks returns the tenant's tasks, oldest first.
func (s *Store) ListTasks(ctx context.Context, tenantID string) ([]ir.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, title, description, assigned_to, contact_id, created_at
		FROM tasks
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ir.Task, error) {
		var t ir.Task
		err := row.Scan(&t.ID, &t.TenantID, &t.Title, &t.Description, &t.AssignedTo, &t.ContactID, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []ir.Task{}
	}
	return tasks, nil
}
