package engine

import (
	"nms-backend/internal/metadata"
)

// Authorize verifies that the user may perform action on entity. A nil user
// is the system itself.
func (e *Engine) Authorize(user *metadata.UserContext, entity, action string) error {
	if user.Can(entity, action) {
		return nil
	}
	return ForbiddenError()
}

// scopePredicate restricts non-admin reads to instances related through the
// entity's scope relationship to something the user is related to. It
// returns nil when no restriction applies.
func (e *Engine) scopePredicate(user *metadata.UserContext, entity *metadata.Entity) Predicate {
	if user.IsAdmin() || entity.Scope == nil {
		return nil
	}
	rel := entity.Relationship(entity.Scope.Relationship)
	if rel == nil {
		return nil
	}
	ids := user.Related[rel.Target]
	return PredicateFunc(func(b *SQLBuilder) string {
		return b.In(rel, ids)
	})
}
