package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/easyspace-ai/easygrid/internal/infrastructure/persistence"
	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/formula"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// FieldGraph is an immutable dependency snapshot of one base. Edges run
// from a field to the fields whose values derive from it.
type FieldGraph struct {
	// dependents[a] lists fields recomputed when a changes
	dependents map[string][]string
	// dependencies[b] lists fields b reads
	dependencies map[string][]string
	fields       map[string]*models.Field
}

// DependencyGraphService builds and caches per-base field dependency
// graphs. Any schema mutation invalidates the base's snapshot.
type DependencyGraphService struct {
	tables *persistence.TableRepository
	fields *persistence.FieldRepository
	cache  persistence.Cache
}

// NewDependencyGraphService creates a new DependencyGraphService
func NewDependencyGraphService(tables *persistence.TableRepository, fields *persistence.FieldRepository, cache persistence.Cache) *DependencyGraphService {
	return &DependencyGraphService{tables: tables, fields: fields, cache: cache}
}

func graphCacheKey(baseID string) string {
	return "depgraph:" + baseID
}

// Invalidate drops the cached snapshot for a base.
func (s *DependencyGraphService) Invalidate(baseID string) {
	s.cache.Delete(graphCacheKey(baseID))
}

// Get returns the base's dependency graph, building it when the cache is
// cold or expired.
func (s *DependencyGraphService) Get(ctx context.Context, baseID string) (*FieldGraph, error) {
	if cached, ok := s.cache.Get(graphCacheKey(baseID)); ok {
		if graph, ok := cached.(*FieldGraph); ok {
			return graph, nil
		}
	}

	graph, err := s.build(ctx, baseID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(graphCacheKey(baseID), graph,
		time.Duration(constants.DependencyGraphTTLSeconds)*time.Second)
	return graph, nil
}

// build loads every field of the base and derives the edge set.
func (s *DependencyGraphService) build(ctx context.Context, baseID string) (*FieldGraph, error) {
	tables, err := s.tables.ListByBase(ctx, baseID)
	if err != nil {
		return nil, err
	}
	tableIDs := make([]string, len(tables))
	for i, t := range tables {
		tableIDs[i] = t.ID
	}
	fieldsByTable, err := s.fields.ListByTables(ctx, tableIDs)
	if err != nil {
		return nil, err
	}

	graph := &FieldGraph{
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		fields:       make(map[string]*models.Field),
	}
	for _, fields := range fieldsByTable {
		for _, f := range fields {
			graph.fields[f.ID] = f
		}
	}

	for _, fields := range fieldsByTable {
		for _, f := range fields {
			deps, err := s.directDependencies(f, fields, graph.fields)
			if err != nil {
				// A broken formula must not take the whole graph down;
				// the field simply has no resolvable dependencies.
				log.Printf("⚠️ Skipping dependencies of field %s: %v", f.ID, err)
				continue
			}
			for _, dep := range deps {
				graph.addEdge(dep, f.ID)
			}
		}
	}

	log.Printf("📐 Built dependency graph for base %s: %d fields, %d tables",
		baseID, len(graph.fields), len(tables))
	return graph, nil
}

func (g *FieldGraph) addEdge(from, to string) {
	g.dependents[from] = append(g.dependents[from], to)
	g.dependencies[to] = append(g.dependencies[to], from)
}

// directDependencies resolves the fields f reads. sameTable is f's own
// table's field list for formula token resolution; allFields spans the base.
func (s *DependencyGraphService) directDependencies(f *models.Field, sameTable []*models.Field, allFields map[string]*models.Field) ([]string, error) {
	if f.Options == nil {
		return nil, nil
	}
	switch f.Type {
	case constants.FieldTypeFormula:
		tokens, err := formula.ExtractReferences(f.Options.Formula.Expression)
		if err != nil {
			return nil, err
		}
		var deps []string
		for _, token := range tokens {
			ref := resolveFieldToken(token, sameTable)
			if ref == nil {
				return nil, fmt.Errorf("formula references unknown field '%s'", token)
			}
			deps = append(deps, ref.ID)
		}
		return deps, nil
	case constants.FieldTypeRollup:
		deps := []string{f.Options.Rollup.LinkFieldID}
		if f.Options.Rollup.RollupFieldID != "" {
			deps = append(deps, f.Options.Rollup.RollupFieldID)
		}
		return deps, nil
	case constants.FieldTypeLookup:
		return []string{f.Options.Lookup.LinkFieldID, f.Options.Lookup.LookupFieldID}, nil
	case constants.FieldTypeCount:
		return []string{f.Options.Count.LinkFieldID}, nil
	case constants.FieldTypeLink:
		// The cached titles derive from the foreign lookup field.
		if f.Options.Link.LookupFieldID != "" {
			if _, ok := allFields[f.Options.Link.LookupFieldID]; ok {
				return []string{f.Options.Link.LookupFieldID}, nil
			}
		}
		return nil, nil
	}
	return nil, nil
}

// resolveFieldToken matches a formula token against a table's fields, by id
// first and display name second.
func resolveFieldToken(token string, fields []*models.Field) *models.Field {
	for _, f := range fields {
		if f.ID == token {
			return f
		}
	}
	for _, f := range fields {
		if f.Name == token {
			return f
		}
	}
	return nil
}

// Dependents returns the fields directly derived from fieldID.
func (g *FieldGraph) Dependents(fieldID string) []string {
	return g.dependents[fieldID]
}

// Dependencies returns the fields fieldID directly reads.
func (g *FieldGraph) Dependencies(fieldID string) []string {
	return g.dependencies[fieldID]
}

// Field returns the field metadata captured in the snapshot.
func (g *FieldGraph) Field(id string) (*models.Field, bool) {
	f, ok := g.fields[id]
	return f, ok
}

// TransitiveDependents returns every field reachable from fieldID in
// topological order, fieldID excluded. The order is safe for sequential
// recomputation.
func (g *FieldGraph) TransitiveDependents(fieldID string) []string {
	// reverse DFS postorder; preorder would emit a shared dependent before
	// the intermediate it also reads
	visited := map[string]bool{fieldID: true}
	var postorder []string
	var visit func(id string)
	visit = func(id string) {
		for _, dep := range g.dependents[id] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			visit(dep)
			postorder = append(postorder, dep)
		}
	}
	visit(fieldID)

	order := make([]string, len(postorder))
	for i, id := range postorder {
		order[len(postorder)-1-i] = id
	}
	return order
}

// CheckCycle verifies that giving fieldID the dependency list deps keeps
// the graph acyclic. On failure the returned error carries the cycle path,
// first and last element equal.
func (g *FieldGraph) CheckCycle(fieldID string, deps []string) error {
	// A proposed dependency that is itself downstream of fieldID closes a
	// loop; the reported path follows dependent edges so it reads in
	// recomputation order.
	for _, dep := range deps {
		if dep == fieldID {
			return apperrors.NewCircularDependencyError([]string{fieldID, fieldID})
		}
		if path := g.pathBetween(fieldID, dep); path != nil {
			return apperrors.NewCircularDependencyError(append(path, fieldID))
		}
	}
	return nil
}

// pathBetween finds a path from 'from' to 'target' walking the dependents
// relation, returning the node sequence from..target.
func (g *FieldGraph) pathBetween(from, target string) []string {
	visited := map[string]bool{}
	var dfs func(id string) []string
	dfs = func(id string) []string {
		if id == target {
			return []string{id}
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		for _, dep := range g.dependents[id] {
			if path := dfs(dep); path != nil {
				return append([]string{id}, path...)
			}
		}
		return nil
	}
	return dfs(from)
}
