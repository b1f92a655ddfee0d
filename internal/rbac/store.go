package rbac

import (
	"context"
	"fmt"

	"github.com/portalguard/portalguard/internal/platform/database"
)

// Store loads role definitions from the authz_roles table.
type Store struct {
	db database.Querier
}

// NewStore creates a role Store.
func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

// LoadRoles returns every role ordered by rank, lowest first.
func (s *Store) LoadRoles(ctx context.Context) ([]RoleDef, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, permissions, inherits
		 FROM authz_roles ORDER BY rank`)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	var defs []RoleDef
	for rows.Next() {
		var d RoleDef
		if err := rows.Scan(&d.Name, &d.Permissions, &d.Inherits); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return defs, nil
}

// SaveRoles replaces the stored roles with defs, keeping their order as rank.
// Run it on a transaction so readers never see a partial set.
func (s *Store) SaveRoles(ctx context.Context, defs []RoleDef) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM authz_roles`); err != nil {
		return fmt.Errorf("clearing roles: %w", err)
	}
	for i, d := range defs {
		perms := d.Permissions
		if perms == nil {
			perms = []string{}
		}
		inherits := d.Inherits
		if inherits == nil {
			inherits = []string{}
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO authz_roles (name, rank, permissions, inherits) VALUES ($1, $2, $3, $4)`,
			d.Name, i, perms, inherits,
		)
		if err != nil {
			return fmt.Errorf("inserting role %s: %w", d.Name, err)
		}
	}
	return nil
}
