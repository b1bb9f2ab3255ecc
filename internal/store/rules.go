package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRule inserts r with its trigger and actions in one transaction.
// Missing IDs and timestamps are filled in on r.
func (s *Store) CreateRule(ctx context.Context, r *ir.Rule) error {
	if err := PrepareRule(r, s.now(), s.newID); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create rule: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (id, tenant_id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.TenantID, r.Name, r.IsActive, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create rule: insert rule: %w", err)
	}

	if err := insertTriggerAndActions(ctx, tx, r); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create rule: commit: %w", err)
	}
	return nil
}

// ReplaceRule overwrites the name, active flag, trigger and actions of an
// existing rule. The old trigger and every old action are deleted and the
// new ones inserted in the same transaction.
func (s *Store) ReplaceRule(ctx context.Context, r *ir.Rule) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("replace rule: %w: id is required", ErrInvalidRule)
	}
	if err := PrepareRule(r, s.now(), s.newID); err != nil {
		return fmt.Errorf("replace rule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace rule: begin tx: %w", err)
	}
	defer tx.Rollback()

	var createdAt string
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM rules WHERE id = ? AND tenant_id = ?
	`, r.ID, r.TenantID).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("replace rule %s: %w", r.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("replace rule: select: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("replace rule: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rules SET name = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`, r.Name, r.IsActive, formatTime(r.UpdatedAt), r.ID, r.TenantID)
	if err != nil {
		return fmt.Errorf("replace rule: update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM triggers WHERE rule_id = ?`, r.ID); err != nil {
		return fmt.Errorf("replace rule: delete trigger: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE rule_id = ?`, r.ID); err != nil {
		return fmt.Errorf("replace rule: delete actions: %w", err)
	}

	if err := insertTriggerAndActions(ctx, tx, r); err != nil {
		return fmt.Errorf("replace rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace rule: commit: %w", err)
	}
	return nil
}

func insertTriggerAndActions(ctx context.Context, q querier, r *ir.Rule) error {
	conditions, err := EncodeConditions(r.Trigger.Conditions)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO triggers (id, rule_id, type, conditions)
		VALUES (?, ?, ?, ?)
	`, r.Trigger.ID, r.ID, string(r.Trigger.Type), conditions)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}

	for _, a := range r.Actions {
		config, err := EncodeConfig(a.Config)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO actions (id, rule_id, type, config, position)
			VALUES (?, ?, ?, ?, ?)
		`, a.ID, r.ID, string(a.Type), config, a.Order)
		if err != nil {
			return fmt.Errorf("insert action %s: %w", a.ID, err)
		}
	}
	return nil
}

// SetActive toggles whether a rule is considered by the matcher.
func (s *Store) SetActive(ctx context.Context, tenantID, ruleID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`, active, formatTime(s.now()), ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return requireAffected(res, "set active", ruleID)
}

// DeleteRule removes a rule; its trigger and actions cascade.
func (s *Store) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rules WHERE id = ? AND tenant_id = ?
	`, ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(res, "delete rule", ruleID)
}

func requireAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// GetRule returns one rule of the tenant. A rule whose trigger row is
// missing is returned with a nil Trigger.
func (s *Store) GetRule(ctx context.Context, tenantID, ruleID string) (ir.Rule, error) {
	rules, err := s.queryRules(ctx, `
		SELECT r.id, r.tenant_id, r.name, r.is_active, r.created_at, r.updated_at,
		       t.id, t.type, t.conditions
		FROM rules r
		LEFT JOIN triggers t ON t.rule_id = r.id
		WHERE r.id = ? AND r.tenant_id = ?
	`, ruleID, tenantID)
	if err != nil {
		return ir.Rule{}, fmt.Errorf("get rule: %w", err)
	}
	if len(rules) == 0 {
		return ir.Rule{}, fmt.Errorf("get rule %s: %w", ruleID, ErrNotFound)
	}
	return rules[0], nil
}

// ListRules returns every rule of the tenant, oldest first.
func (s *Store) ListRules(ctx context.Context, tenantID string) ([]ir.Rule, error) {
	rules, err := s.queryRules(ctx, `
		SELECT r.id, r.tenant_id, r.name, r.is_active, r.created_at, r.updated_at,
		       t.id, t.type, t.conditions
		FROM rules r
		LEFT JOIN triggers t ON t.rule_id = r.id
		WHERE r.tenant_id = ?
		ORDER BY r.created_at ASC, r.id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// ListActiveRules is the matcher's equality pre-filter: tenant, active flag
// and trigger type. Results are hydrated with ordered actions.
func (s *Store) ListActiveRules(ctx context.Context, tenantID string, t ir.TriggerType) ([]ir.Rule, error) {
	rules, err := s.queryRules(ctx, `
		SELECT r.id, r.tenant_id, r.name, r.is_active, r.created_at, r.updated_at,
		       t.id, t.type, t.conditions
		FROM rules r
		JOIN triggers t ON t.rule_id = r.id
		WHERE r.tenant_id = ? AND r.is_active = 1 AND t.type = ?
		ORDER BY r.created_at ASC, r.id ASC
	`, tenantID, string(t))
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rules, nil
}

// queryRules scans rule rows then loads each rule's actions. Rows are
// drained before the action queries because the pool holds one connection.
func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]ir.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}

	rules := []ir.Rule{}
	for rows.Next() {
		r, ok, err := scanRule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if ok {
			rules = append(rules, r)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	rows.Close()

	for i := range rules {
		actions, err := loadActions(ctx, s.db, rules[i].ID)
		if err != nil {
			return nil, err
		}
		rules[i].Actions = actions
	}
	return rules, nil
}

// scanRule reads one joined rule/trigger row. Rules whose stored conditions
// no longer decode are logged and skipped (ok=false).
func scanRule(rows *sql.Rows) (ir.Rule, bool, error) {
	var (
		r                    ir.Rule
		createdAt, updatedAt string
		trigID, trigType     sql.NullString
		conditions           sql.NullString
	)
	err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.IsActive, &createdAt, &updatedAt,
		&trigID, &trigType, &conditions)
	if err != nil {
		return ir.Rule{}, false, fmt.Errorf("scan rule: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.Rule{}, false, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.Rule{}, false, err
	}

	if trigID.Valid {
		cond, err := ir.DecodeObject([]byte(conditions.String))
		if err != nil {
			slog.Warn("skipping rule with undecodable conditions",
				"rule_id", r.ID,
				"tenant_id", r.TenantID,
				"error", err)
			return ir.Rule{}, false, nil
		}
		r.Trigger = &ir.Trigger{
			ID:         trigID.String,
			Type:       ir.TriggerType(trigType.String),
			Conditions: cond,
		}
	}
	return r, true, nil
}

func loadActions(ctx context.Context, q querier, ruleID string) ([]ir.Action, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, config, position
		FROM actions
		WHERE rule_id = ?
		ORDER BY position ASC, rowid ASC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := []ir.Action{}
	for rows.Next() {
		var (
			id, typ, config string
			position        int
		)
		if err := rows.Scan(&id, &typ, &config, &position); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, DecodeAction(id, typ, config, position))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}
