package policy

import "context"

// ResourceRecipe is the resource type registered on the default gate.
const ResourceRecipe = "recipe"

// Ownable is implemented by models that belong to a user.
type Ownable interface {
	GetUserID() uint
}

// OwnershipPolicy allows access when the resource's owner is the user.
type OwnershipPolicy struct{}

// NewOwnershipPolicy creates a new ownership policy.
func NewOwnershipPolicy() *OwnershipPolicy {
	return &OwnershipPolicy{}
}

// Can reports whether userID owns resource. A nil resource (list/create) is
// allowed; anything that is not Ownable is denied.
func (p *OwnershipPolicy) Can(_ context.Context, userID uint, _ Action, resource any) bool {
	if resource == nil {
		return true
	}
	ownable, ok := resource.(Ownable)
	if !ok {
		return false
	}
	return ownable.GetUserID() == userID
}

// NewOwnershipGate returns a gate with the ownership policy registered for
// recipes. Tag and ingredient ownership is enforced in the queries that
// resolve relation ids.
func NewOwnershipGate() *Gate[uint] {
	g := NewGate[uint]()
	g.Register(ResourceRecipe, NewOwnershipPolicy())
	return g
}
