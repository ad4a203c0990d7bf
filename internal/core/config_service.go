package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var validRoles = map[LedgerRole]bool{
	RoleVendor:         true,
	RoleIGST:           true,
	RoleCGST:           true,
	RoleSGST:           true,
	RoleAccounts:       true,
	RoleExpenseAccount: true,
}

// loadTenantConfig reads the tenant's role-to-parents mapping. Returns
// (nil, nil) when the tenant has no configuration rows at all.
func loadTenantConfig(ctx context.Context, q Querier, tenantID string) (*TenantConfig, error) {
	rows, err := q.Query(ctx, `
		SELECT role, parent_id::text
		FROM tenant_config_parents
		WHERE tenant_id = $1
		ORDER BY role, position`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant config: %w", err)
	}
	defer rows.Close()

	var cfg *TenantConfig
	for rows.Next() {
		var role, parentID string
		if err := rows.Scan(&role, &parentID); err != nil {
			return nil, err
		}
		if cfg == nil {
			cfg = &TenantConfig{TenantID: tenantID, Parents: map[LedgerRole][]string{}}
		}
		cfg.Parents[LedgerRole(role)] = append(cfg.Parents[LedgerRole(role)], parentID)
	}
	return cfg, rows.Err()
}

// ConfigService manages the per-tenant mapping from ledger roles to
// ordered lists of parent ledgers.
type ConfigService struct {
	pool *pgxpool.Pool
}

func NewConfigService(pool *pgxpool.Pool) *ConfigService {
	return &ConfigService{pool: pool}
}

// Get returns the tenant's configuration, or nil when none is set.
func (s *ConfigService) Get(ctx context.Context, tenantID string) (*TenantConfig, error) {
	return loadTenantConfig(ctx, s.pool, tenantID)
}

// Set replaces the tenant's configuration in one transaction. Every
// referenced parent must already exist and belong to the tenant. Order
// within each role is preserved; the first parent is where new ledgers
// get created.
func (s *ConfigService) Set(ctx context.Context, tenantID string, parents map[LedgerRole][]string) (*TenantConfig, error) {
	for role := range parents {
		if !validRoles[role] {
			return nil, NewValidationError("role", "unknown ledger role %q", role)
		}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	store := NewLedgerStore(tx)
	for role, ids := range parents {
		seen := map[string]bool{}
		for _, id := range ids {
			if seen[id] {
				return nil, NewValidationError(string(role), "parent %s listed twice", id)
			}
			seen[id] = true
			if _, err := store.ParentByID(ctx, tenantID, id); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tenant_config_parents WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, fmt.Errorf("clear tenant config: %w", err)
	}
	for role, ids := range parents {
		for pos, id := range ids {
			_, err := tx.Exec(ctx, `
				INSERT INTO tenant_config_parents (tenant_id, role, parent_id, position)
				VALUES ($1, $2, $3, $4)`, tenantID, string(role), id, pos)
			if err != nil {
				return nil, fmt.Errorf("write tenant config: %w", err)
			}
		}
	}

	cfg, err := loadTenantConfig(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return cfg, nil
}
