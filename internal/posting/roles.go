package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleResolver resolves a semantic role to the tenant's account code.
type RoleResolver interface {
	Resolve(ctx context.Context, role Role) (string, error)
}

// RoleMap is a static in-memory role resolver, used in tests and for tenants
// configured at bootstrap.
type RoleMap map[Role]string

// Resolve implements RoleResolver.
func (m RoleMap) Resolve(_ context.Context, role Role) (string, error) {
	code, ok := m[role]
	if !ok || code == "" {
		return "", fmt.Errorf("%w: %s", ErrRoleNotMapped, role)
	}
	return code, nil
}

// PGRoleMap resolves roles from the account_role_map table, which holds the
// tenant's chart-of-accounts wiring.
type PGRoleMap struct {
	pool *pgxpool.Pool
}

// NewPGRoleMap constructs PGRoleMap.
func NewPGRoleMap(pool *pgxpool.Pool) *PGRoleMap {
	return &PGRoleMap{pool: pool}
}

// Resolve implements RoleResolver.
func (m *PGRoleMap) Resolve(ctx context.Context, role Role) (string, error) {
	var code string
	err := m.pool.QueryRow(ctx, `SELECT account_code FROM account_role_map WHERE role=$1`, string(role)).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrRoleNotMapped, role)
		}
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("%w: %s", ErrRoleNotMapped, role)
	}
	return code, nil
}
