package rbac

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrCyclicInheritance = errors.New("cyclic role inheritance")
	ErrDuplicateRole     = errors.New("duplicate role")
	ErrEmptyRoleSet      = errors.New("role set is empty")
)

// Role is a member of the closed, ordered role set defined by a Model.
type Role string

// Permission is an opaque "<resource>:<action>" token. "*" grants everything
// and "<resource>:*" grants every action on a resource.
type Permission string

const Wildcard Permission = "*"

// Default roles, lowest first.
const (
	RoleViewer    Role = "viewer"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ConfigError marks a role or policy configuration that must stop the
// process from serving traffic.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Decision represents the result of a permission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PolicyEngine defines the permission-check interface used by API handlers.
type PolicyEngine interface {
	Authorize(ctx context.Context, principal *Principal, permission Permission) (*Decision, error)
}
