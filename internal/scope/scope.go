// Package scope narrows reads and writes to the records a caller may see.
package scope

import "pulsemetrics/internal/apperr"

// Scope is the actor restriction derived from a verified identity.
type Scope struct {
	ActorID  string
	Elevated bool
}

// Resolve builds the scope of a caller. A caller is elevated only when
// adminRole is non-empty and equals the caller's role.
func Resolve(actorID, role, adminRole string) Scope {
	return Scope{ActorID: actorID, Elevated: adminRole != "" && role == adminRole}
}

// Apply returns the actor a query must filter on. Standard callers are
// always pinned to themselves whatever they asked for; elevated callers get
// the requested actor, or no actor filter when none was requested.
func (s Scope) Apply(requested string) string {
	if !s.Elevated {
		return s.ActorID
	}
	return requested
}

// OwnerFor returns the owner of a record being written. Only elevated
// callers may write on behalf of another actor.
func (s Scope) OwnerFor(requested string) string {
	if s.Elevated && requested != "" {
		return requested
	}
	return s.ActorID
}

// RequireElevated rejects standard callers of cross-actor operations.
func (s Scope) RequireElevated(op string) error {
	if s.Elevated {
		return nil
	}
	return apperr.Forbidden(op + " requires an elevated role")
}
