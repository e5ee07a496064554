package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/graphrag-go/graphrag/internal/atomicfile"
	"github.com/graphrag-go/graphrag/internal/errs"
	"github.com/graphrag-go/graphrag/model"
)

// graphFile is graph_data.json's on-disk shape: nodes keyed by entity
// name, edges keyed by the canonical "a||b" pair.
type graphFile struct {
	Nodes map[string]model.Entity  `json:"nodes"`
	Edges map[string]model.Relation `json:"edges"`
}

// GraphStore is the file-backed reference implementation of the graph
// trait. The adjacency structure used for degree lookups and traversal is
// rebuilt from the edge map on load and kept in sync on every mutation.
type GraphStore struct {
	path string

	mu        sync.RWMutex
	nodes     map[string]model.Entity
	edges     map[string]model.Relation
	adjacency map[string]map[string]bool
	dirty     bool

	logger *slog.Logger
}

// NewGraphStore opens (or creates) {workingDir}/{namespace}/graph_data.json.
func NewGraphStore(workingDir, namespace string, logger *slog.Logger) (*GraphStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := ensureNamespaceDir(workingDir, namespace, "graph_data")
	if err != nil {
		return nil, &errs.StorageError{Backend: "graph_data", Op: "open", Cause: err}
	}

	s := &GraphStore{
		path:      path,
		nodes:     make(map[string]model.Entity),
		edges:     make(map[string]model.Relation),
		adjacency: make(map[string]map[string]bool),
		logger:    logger,
	}
	if err := s.load(); err != nil {
		return nil, &errs.StorageError{Backend: "graph_data", Op: "load", Cause: err}
	}
	logger.Info("storage: opened graph store", "path", path, "nodes", len(s.nodes), "edges", len(s.edges))
	return s, nil
}

func (s *GraphStore) load() error {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}

	var gf graphFile
	if err := json.Unmarshal(b, &gf); err != nil {
		return err
	}
	if gf.Nodes != nil {
		s.nodes = gf.Nodes
	}
	if gf.Edges != nil {
		s.edges = gf.Edges
	}
	s.rebuildAdjacency()
	return nil
}

func (s *GraphStore) rebuildAdjacency() {
	s.adjacency = make(map[string]map[string]bool, len(s.nodes))
	for key, rel := range s.edges {
		a, b := endpointsFromKey(key)
		if a == "" {
			a, b = rel.SrcID, rel.TgtID
		}
		s.link(a, b)
	}
}

func (s *GraphStore) link(a, b string) {
	if s.adjacency[a] == nil {
		s.adjacency[a] = make(map[string]bool)
	}
	if s.adjacency[b] == nil {
		s.adjacency[b] = make(map[string]bool)
	}
	s.adjacency[a][b] = true
	s.adjacency[b][a] = true
}

func (s *GraphStore) unlink(a, b string) {
	delete(s.adjacency[a], b)
	delete(s.adjacency[b], a)
}

func endpointsFromKey(key string) (string, string) {
	parts := strings.SplitN(key, "||", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// UpsertNode writes (or replaces) an entity node, keyed by entity_name.
func (s *GraphStore) UpsertNode(e model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[e.EntityName] = e
	if _, ok := s.adjacency[e.EntityName]; !ok {
		s.adjacency[e.EntityName] = make(map[string]bool)
	}
	s.dirty = true
}

// GetNode returns the node for name.
func (s *GraphStore) GetNode(name string) (model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[name]
	return n, ok
}

// RemoveNode deletes a node and its adjacency entry. It does not remove
// incident edges; those stay in the store until removed via RemoveEdge.
func (s *GraphStore) RemoveNode(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[name]; ok {
		delete(s.nodes, name)
		delete(s.adjacency, name)
		s.dirty = true
	}
}

// Degree returns the number of distinct neighbors name has.
func (s *GraphStore) Degree(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.adjacency[name])
}

// UpsertEdge writes (or replaces) an edge, canonicalizing its key so
// lookups by either endpoint order return the same record (I4).
func (s *GraphStore) UpsertEdge(r model.Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[r.Key()] = r
	s.link(r.SrcID, r.TgtID)
	s.dirty = true
}

// GetEdge returns the edge between a and b, regardless of argument order.
func (s *GraphStore) GetEdge(a, b string) (model.Relation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.edges[model.EdgeKey(a, b)]
	return r, ok
}

// EdgesIncident returns every edge touching any of the given entity names,
// deduplicated by canonical key.
func (s *GraphStore) EdgesIncident(names []string) []model.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []model.Relation
	for _, name := range names {
		for neighbor := range s.adjacency[name] {
			key := model.EdgeKey(name, neighbor)
			if seen[key] {
				continue
			}
			seen[key] = true
			if r, ok := s.edges[key]; ok {
				out = append(out, r)
			}
		}
	}
	return out
}

// EdgeDegree returns deg(a) + deg(b), used to rank relations by combined
// endpoint degree.
func (s *GraphStore) EdgeDegree(a, b string) int {
	return s.Degree(a) + s.Degree(b)
}

// RemoveEdge deletes the edge between a and b.
func (s *GraphStore) RemoveEdge(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := model.EdgeKey(a, b)
	if _, ok := s.edges[key]; ok {
		delete(s.edges, key)
		s.unlink(a, b)
		s.dirty = true
	}
}

// AllNodes returns every node keyed by entity_name.
func (s *GraphStore) AllNodes() map[string]model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Entity, len(s.nodes))
	for k, v := range s.nodes {
		out[k] = v
	}
	return out
}

// AllEdges returns every edge keyed by its canonical "a||b" key.
func (s *GraphStore) AllEdges() map[string]model.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Relation, len(s.edges))
	for k, v := range s.edges {
		out[k] = v
	}
	return out
}

// NodesByDegreeDesc orders names by Degree descending, stable on ties.
func (s *GraphStore) NodesByDegreeDesc(names []string) []string {
	s.mu.RLock()
	degrees := make(map[string]int, len(names))
	for _, n := range names {
		degrees[n] = len(s.adjacency[n])
	}
	s.mu.RUnlock()

	out := append([]string(nil), names...)
	sort.SliceStable(out, func(i, j int) bool { return degrees[out[i]] > degrees[out[j]] })
	return out
}

// KnowledgeSubgraph performs a breadth-first traversal from seeds up to
// maxHops away, capped at maxNodes total nodes. Truncation happens in BFS
// order, so closer nodes are always kept over farther ones.
func (s *GraphStore) KnowledgeSubgraph(seeds []string, maxHops, maxNodes int) (nodes []model.Entity, edges []model.Relation, truncated bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type queued struct {
		name  string
		depth int
	}

	visited := make(map[string]bool, len(seeds))
	queue := make([]queued, 0, len(seeds))
	for _, seed := range seeds {
		if _, ok := s.nodes[seed]; !ok {
			continue
		}
		if !visited[seed] {
			visited[seed] = true
			queue = append(queue, queued{name: seed, depth: 0})
		}
	}

	edgeSeen := make(map[string]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if maxNodes > 0 && len(nodes) >= maxNodes {
			truncated = true
			break
		}
		nodes = append(nodes, s.nodes[current.name])

		if current.depth >= maxHops {
			continue
		}

		neighborNames := make([]string, 0, len(s.adjacency[current.name]))
		for neighbor := range s.adjacency[current.name] {
			neighborNames = append(neighborNames, neighbor)
		}
		sort.Strings(neighborNames)

		for _, neighbor := range neighborNames {
			key := model.EdgeKey(current.name, neighbor)
			if !edgeSeen[key] {
				edgeSeen[key] = true
				if r, ok := s.edges[key]; ok {
					edges = append(edges, r)
				}
			}
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, queued{name: neighbor, depth: current.depth + 1})
			}
		}
	}

	if maxNodes > 0 && len(queue) > 0 {
		truncated = true
	}

	return nodes, edges, truncated
}

// Commit writes the in-memory state to disk atomically if dirty.
func (s *GraphStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	gf := graphFile{Nodes: s.nodes, Edges: s.edges}
	b, err := json.Marshal(gf)
	if err != nil {
		return &errs.StorageError{Backend: "graph_data", Op: "commit", Cause: err}
	}
	if err := atomicfile.Write(s.path, b, 0o600); err != nil {
		return &errs.StorageError{Backend: "graph_data", Op: "commit", Cause: err}
	}
	s.dirty = false
	s.logger.Info("storage: committed graph store", "nodes", len(s.nodes), "edges", len(s.edges))
	return nil
}

// Drop clears all nodes and edges in memory and marks the store dirty.
func (s *GraphStore) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]model.Entity)
	s.edges = make(map[string]model.Relation)
	s.adjacency = make(map[string]map[string]bool)
	s.dirty = true
}
