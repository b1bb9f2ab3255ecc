// Package postgres is the PostgreSQL implementation of store.Backend, for
// deployments where several engine instances share one rule store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a PostgreSQL-backed rule and record store.
type Store struct {
	pool  *pgxpool.Pool
	now   func() time.Time
	newID func() string
}

// Open runs pending migrations against url and connects a pool.
func Open(ctx context.Context, url string) (*Store, error) {
	if err := Migrate(url); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema is assumed to be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:  pool,
		now:   func() time.Time { return time.Now().UTC() },
		newID: store.NewID,
	}
}

// Migrate applies the embedded migrations to the database at url.
func Migrate(url string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(url))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the pgx5:// scheme registered by
// the migrate pgx/v5 driver.
func migrateURL(url string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(url, prefix) {
			return "pgx5://" + strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateRule inserts r with its trigger and actions in one transaction.
func (s *Store) CreateRule(ctx context.Context, r *ir.Rule) error {
	if err := store.PrepareRule(r, s.now(), s.newID); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create rule: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO rules (id, tenant_id, name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.TenantID, r.Name, r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rule: insert rule: %w", err)
	}

	if err := insertTriggerAndActions(ctx, tx, r); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("create rule: commit: %w", err)
	}
	return nil
}

// ReplaceRule deletes the trigger and actions of an existing rule and
// recreates them from r in one transaction.
func (s *Store) ReplaceRule(ctx context.Context, r *ir.Rule) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("replace rule: %w: id is required", store.ErrInvalidRule)
	}
	if err := store.PrepareRule(r, s.now(), s.newID); err != nil {
		return fmt.Errorf("replace rule: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace rule: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE rules SET name = $1, is_active = $2, updated_at = $3
		WHERE id = $4 AND tenant_id = $5
		RETURNING created_at
	`, r.Name, r.IsActive, r.UpdatedAt, r.ID, r.TenantID).Scan(&r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("replace rule %s: %w", r.ID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("replace rule: update: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM triggers WHERE rule_id = $1`, r.ID); err != nil {
		return fmt.Errorf("replace rule: delete trigger: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM actions WHERE rule_id = $1`, r.ID); err != nil {
		return fmt.Errorf("replace rule: delete actions: %w", err)
	}

	if err := insertTriggerAndActions(ctx, tx, r); err != nil {
		return fmt.Errorf("replace rule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace rule: commit: %w", err)
	}
	return nil
}

func insertTriggerAndActions(ctx context.Context, tx pgx.Tx, r *ir.Rule) error {
	conditions, err := store.EncodeConditions(r.Trigger.Conditions)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO triggers (id, rule_id, type, conditions)
		VALUES ($1, $2, $3, $4::jsonb)
	`, r.Trigger.ID, r.ID, string(r.Trigger.Type), conditions)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}

	batch := &pgx.Batch{}
	for _, a := range r.Actions {
		config, err := store.EncodeConfig(a.Config)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO actions (id, rule_id, type, config, position)
			VALUES ($1, $2, $3, $4::jsonb, $5)
		`, a.ID, r.ID, string(a.Type), config, a.Order)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert actions: %w", err)
	}
	return nil
}

// SetActive toggles whether a rule is considered by the matcher.
func (s *Store) SetActive(ctx context.Context, tenantID, ruleID string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rules SET is_active = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4
	`, active, s.now(), ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set active %s: %w", ruleID, store.ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule; its trigger and actions cascade.
func (s *Store) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1 AND tenant_id = $2`, ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete rule %s: %w", ruleID, store.ErrNotFound)
	}
	return nil
}

const selectRules = `
	SELECT r.id, r.tenant_id, r.name, r.is_active, r.created_at, r.updated_at,
	       t.id, t.type, t.conditions::text
	FROM rules r
`

// GetRule returns one rule of the tenant.
func (s *Store) GetRule(ctx context.Context, tenantID, ruleID string) (ir.Rule, error) {
	rules, err := s.queryRules(ctx, selectRules+`
		LEFT JOIN triggers t ON t.rule_id = r.id
		WHERE r.id = $1 AND r.tenant_id = $2
	`, ruleID, tenantID)
	if err != nil {
		return ir.Rule{}, fmt.Errorf("get rule: %w", err)
	}
	if len(rules) == 0 {
		return ir.Rule{}, fmt.Errorf("get rule %s: %w", ruleID, store.ErrNotFound)
	}
	return rules[0], nil
}

// ListRules returns every rule of the tenant, oldest first.
func (s *Store) ListRules(ctx context.Context, tenantID string) ([]ir.Rule, error) {
	rules, err := s.queryRules(ctx, selectRules+`
		LEFT JOIN triggers t ON t.rule_id = r.id
		WHERE r.tenant_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// ListActiveRules is the matcher's equality pre-filter.
func (s *Store) ListActiveRules(ctx context.Context, tenantID string, t ir.TriggerType) ([]ir.Rule, error) {
	rules, err := s.queryRules(ctx, selectRules+`
		JOIN triggers t ON t.rule_id = r.id
		WHERE r.tenant_id = $1 AND r.is_active AND t.type = $2
		ORDER BY r.created_at ASC, r.id ASC
	`, tenantID, string(t))
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rules, nil
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]ir.Rule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []ir.Rule{}
	index := map[string]int{}
	for rows.Next() {
		var (
			r                            ir.Rule
			trigID, trigType, conditions *string
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
			&trigID, &trigType, &conditions); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if trigID != nil {
			cond, err := ir.DecodeObject([]byte(*conditions))
			if err != nil {
				slog.Warn("skipping rule with undecodable conditions",
					"rule_id", r.ID,
					"tenant_id", r.TenantID,
					"error", err)
				continue
			}
			r.Trigger = &ir.Trigger{ID: *trigID, Type: ir.TriggerType(*trigType), Conditions: cond}
		}
		r.Actions = []ir.Action{}
		index[r.ID] = len(rules)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	if len(rules) == 0 {
		return rules, nil
	}

	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	actionRows, err := s.pool.Query(ctx, `
		SELECT rule_id, id, type, config::text, position
		FROM actions
		WHERE rule_id = ANY($1)
		ORDER BY rule_id, position ASC, seq ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		var (
			ruleID, id, typ, config string
			position                int
		)
		if err := actionRows.Scan(&ruleID, &id, &typ, &config, &position); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		i, ok := index[ruleID]
		if !ok {
			continue
		}
		rules[i].Actions = append(rules[i].Actions, store.DecodeAction(id, typ, config, position))
	}
	if err := actionRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return rules, nil
}

var _ store.Backend = (*Store)(nil)
