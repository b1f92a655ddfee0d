package policy

import (
	"context"
	"fmt"

	"github.com/portalguard/portalguard/internal/platform/database"
	"github.com/portalguard/portalguard/internal/rbac"
)

// Store loads a Document from Postgres: roles from authz_roles, rules from
// authz_route_rules in insertion order. Exclusions are not stored; the
// store uses the ones it was created with.
type Store struct {
	db         database.Querier
	roles      *rbac.Store
	exclusions ExclusionDef
}

func NewStore(db database.Querier, exclusions ExclusionDef) *Store {
	return &Store{db: db, roles: rbac.NewStore(db), exclusions: exclusions}
}

func (s *Store) Load(ctx context.Context) (Document, error) {
	roles, err := s.roles.LoadRoles(ctx)
	if err != nil {
		return Document{}, err
	}
	rules, err := s.LoadRules(ctx)
	if err != nil {
		return Document{}, err
	}
	return Document{Roles: roles, Rules: rules, Exclusions: s.exclusions}, nil
}

// LoadRules returns stored rules in declaration order.
func (s *Store) LoadRules(ctx context.Context) ([]RuleDef, error) {
	rows, err := s.db.Query(ctx,
		`SELECT pattern, class, exact, require_auth, allowed_roles, minimum_role, permissions
		 FROM authz_route_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying route rules: %w", err)
	}
	defer rows.Close()

	var defs []RuleDef
	for rows.Next() {
		var (
			d           RuleDef
			requireAuth bool
		)
		if err := rows.Scan(&d.Pattern, &d.Class, &d.Exact, &requireAuth,
			&d.AllowedRoles, &d.MinimumRole, &d.Permissions); err != nil {
			return nil, fmt.Errorf("scanning route rule: %w", err)
		}
		d.RequireAuth = &requireAuth
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating route rules: %w", err)
	}
	return defs, nil
}

// Save replaces the stored roles and rules with doc. Run it on a
// transaction.
func (s *Store) Save(ctx context.Context, doc Document) error {
	if err := s.roles.SaveRoles(ctx, doc.Roles); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM authz_route_rules`); err != nil {
		return fmt.Errorf("clearing route rules: %w", err)
	}
	for _, d := range doc.Rules {
		r, err := d.Rule()
		if err != nil {
			return err
		}
		roles := make([]string, 0, len(r.AllowedRoles))
		for _, role := range r.AllowedRoles {
			roles = append(roles, string(role))
		}
		perms := make([]string, 0, len(r.Permissions))
		for _, p := range r.Permissions {
			perms = append(perms, string(p))
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO authz_route_rules
			 (pattern, class, exact, require_auth, allowed_roles, minimum_role, permissions)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.Pattern, string(r.Class), r.Exact, r.RequireAuth, roles, string(r.MinimumRole), perms,
		)
		if err != nil {
			return fmt.Errorf("inserting route rule %s: %w", r.Pattern, err)
		}
	}
	return nil
}
