// Package gate is a small policy registry: each resource type registers a
// Policy and handlers ask the Gate whether a subject may act on a resource.
package gate

import (
	"context"
	"errors"
)

// Action describes the kind of operation a user wants to perform.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionList   Action = "list"
	ActionExport Action = "export"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNoPolicyDefined = errors.New("no policy defined for resource")
)

// Policy decides whether user may perform action on resource. resource is nil
// for list and create checks.
type Policy[U any] interface {
	Can(ctx context.Context, user U, action Action, resource any) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc[U any] func(ctx context.Context, user U, action Action, resource any) bool

func (f PolicyFunc[U]) Can(ctx context.Context, user U, action Action, resource any) bool {
	return f(ctx, user, action, resource)
}

// Gate maps resource types to policies. Register everything before serving.
type Gate[U comparable] struct {
	policies map[string]Policy[U]
}

func New[U comparable]() *Gate[U] {
	return &Gate[U]{policies: make(map[string]Policy[U])}
}

// Register adds or replaces the policy of resourceType.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize returns ErrUnauthorized for a zero subject or a denied action and
// ErrNoPolicyDefined when resourceType is unknown.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	var zero U
	if user == zero {
		return ErrUnauthorized
	}
	p, ok := g.policies[resourceType]
	if !ok {
		return ErrNoPolicyDefined
	}
	if !p.Can(ctx, user, action, resource) {
		return ErrUnauthorized
	}
	return nil
}

func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}

// Owned is implemented by resources that belong to one user.
type Owned interface {
	OwnerID() uint
}

// Ownership allows list and create for any authenticated user and every other
// action only on resources the user owns. Resources that are not Owned are denied.
func Ownership() Policy[uint] {
	return PolicyFunc[uint](func(_ context.Context, uid uint, _ Action, resource any) bool {
		if resource == nil {
			return true
		}
		o, ok := resource.(Owned)
		return ok && o.OwnerID() == uid
	})
}
