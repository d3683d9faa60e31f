package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"nms-backend/internal/metadata"
	"nms-backend/internal/secrets"
	"nms-backend/internal/store"
)

// Settings is passed explicitly into operations whose behavior used to
// depend on process-wide configuration.
type Settings struct {
	MigrationPath       string
	UnitsPath           string
	UpdatePoolsOnImport bool
}

// Engine runs filtering, bulk mutation and instance writes over any entity
// type declared in the registry.
type Engine struct {
	store    *store.Store
	registry *metadata.Registry
	secrets  secrets.Policy
	log      *zap.SugaredLogger

	hooks   map[string][]ConstraintHook
	derived map[string][]derivedProgram
	now     func() time.Time
}

// New compiles the computed fields declared by the registry and returns an
// engine ready to serve requests.
func New(s *store.Store, reg *metadata.Registry, policy secrets.Policy, log *zap.SugaredLogger) (*Engine, error) {
	derived, err := compileDerived(reg)
	if err != nil {
		return nil, fmt.Errorf("compile computed fields: %w", err)
	}
	return &Engine{
		store:    s,
		registry: reg,
		secrets:  policy,
		log:      log,
		hooks:    make(map[string][]ConstraintHook),
		derived:  derived,
		now:      time.Now,
	}, nil
}

func (e *Engine) Registry() *metadata.Registry { return e.registry }
func (e *Engine) Store() *store.Store          { return e.store }
func (e *Engine) Secrets() secrets.Policy      { return e.secrets }

func (e *Engine) entity(name string) (*metadata.Entity, error) {
	entity := e.registry.GetEntity(name)
	if entity == nil {
		return nil, UnknownEntityError(name)
	}
	return entity, nil
}

func (e *Engine) relationship(entity *metadata.Entity, name string) (*metadata.Relationship, *metadata.Entity, error) {
	rel := entity.Relationship(name)
	if rel == nil {
		return nil, nil, UnknownRelationshipError(entity.Name, name)
	}
	target := e.registry.GetEntity(rel.Target)
	if target == nil {
		return nil, nil, UnknownEntityError(rel.Target)
	}
	return rel, target, nil
}

func (e *Engine) stamp() string {
	return timestamp(e.now())
}
