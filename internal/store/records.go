package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// CreateTask inserts a task for the tenant and returns it with its ID and
// creation time set.
func (s *Store) CreateTask(ctx context.Context, task ir.Task) (ir.Task, error) {
	if task.TenantID == "" {
		return ir.Task{}, errors.New("create task: tenant is required")
	}
	if task.Title == "" {
		return ir.Task{}, errors.New("create task: title is required")
	}
	if task.ID == "" {
		task.ID = s.newID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, tenant_id, title, description, assigned_to, contact_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.TenantID, task.Title, task.Description, task.AssignedTo, task.ContactID,
		formatTime(task.CreatedAt))
	if err != nil {
		return ir.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// UpsertTag atomically fetches or creates the tag (tenantID, name).
//
// Uses ON CONFLICT(tenant_id, name) DO NOTHING followed by a select in the
// same transaction, so two concurrent callers converge on one row.
func (s *Store) UpsertTag(ctx context.Context, tenantID, name string) (tag ir.Tag, created bool, err error) {
	if tenantID == "" || name == "" {
		return ir.Tag{}, false, errors.New("upsert tag: tenant and name are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO tags (id, tenant_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, name) DO NOTHING
	`, s.newID(), tenantID, name)
	if err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: rows affected: %w", err)
	}

	tag = ir.Tag{TenantID: tenantID, Name: name}
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tags WHERE tenant_id = ? AND name = ?
	`, tenantID, name).Scan(&tag.ID)
	if err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: select: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Tag{}, false, fmt.Errorf("upsert tag: commit: %w", err)
	}
	return tag, rowsAffected > 0, nil
}

// AttachTag links a tenant's tag to a contact. Attaching an already attached
// tag is a no-op and reports attached=false. A tag belonging to another
// tenant is reported as ErrNotFound.
func (s *Store) AttachTag(ctx context.Context, tenantID, contactID, tagID string) (bool, error) {
	if contactID == "" {
		return false, errors.New("attach tag: contact is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("attach tag: begin tx: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT tenant_id FROM tags WHERE id = ?`, tagID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != tenantID) {
		return false, fmt.Errorf("attach tag %s: %w", tagID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("attach tag: select tag: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO contact_tags (tenant_id, contact_id, tag_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(contact_id, tag_id) DO NOTHING
	`, tenantID, contactID, tagID, formatTime(s.now()))
	if err != nil {
		return false, fmt.Errorf("attach tag: insert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach tag: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("attach tag: commit: %w", err)
	}
	return n > 0, nil
}

// ListContactTags returns the tags attached to a contact, by name.
func (s *Store) ListContactTags(ctx context.Context, tenantID, contactID string) ([]ir.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.tenant_id, t.name
		FROM contact_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.tenant_id = ? AND ct.contact_id = ?
		ORDER BY t.name ASC
	`, tenantID, contactID)
	if err != nil {
		return nil, fmt.Errorf("list contact tags: %w", err)
	}
	defer rows.Close()

	tags := []ir.Tag{}
	for rows.Next() {
		var t ir.Tag
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// ListTasks returns the tenant's tasks, oldest first.
func (s *Store) ListTasks(ctx context.Context, tenantID string) ([]ir.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, description, assigned_to, contact_id, created_at
		FROM tasks
		WHERE tenant_id = ?
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []ir.Task{}
	for rows.Next() {
		var (
			t         ir.Task
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Title, &t.Description, &t.AssignedTo,
			&t.ContactID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

var _ Backend = (*Store)(nil)
