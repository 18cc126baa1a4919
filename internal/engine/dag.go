package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Flowline/internal/domain"
)

// Vertex — узел workflow в графе зависимостей.
type Vertex struct {
	// Node — определение узла из Workflow.
	Node *domain.Node

	// ID — идентификатор узла.
	ID string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Vertex

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Vertex
}

// DAG — направленный ациклический граф узлов workflow.
type DAG struct {
	// Vertices — все узлы графа (nodeID → Vertex).
	Vertices map[string]*Vertex

	// RootNodes — узлы без зависимостей (точки входа).
	RootNodes []*Vertex

	// Order — топологически отсортированный список узлов.
	Order []*Vertex
}

// BuildDAG строит граф по связям workflow и по ссылкам в шаблонах.
//
// Ребро source → target означает: target читает выход source
// и не может стартовать раньше, чем source завершится.
// Плейсхолдер {{source...}} в config или inputMapping узла target
// даёт такое же ребро, даже если связи между узлами нет.
func BuildDAG(wf *domain.Workflow) (*DAG, error) {
	dag := &DAG{
		Vertices:  make(map[string]*Vertex, len(wf.Nodes)),
		RootNodes: make([]*Vertex, 0),
	}

	// Первый проход: создаём все узлы
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.ID == "" {
			return nil, NewValidationError("", "id", fmt.Sprintf("node at index %d has empty ID", i), ErrEmptyNodeID)
		}
		if _, exists := dag.Vertices[node.ID]; exists {
			return nil, NewValidationError(node.ID, "id", "duplicate node ID", ErrDuplicateNodeID)
		}
		dag.Vertices[node.ID] = &Vertex{
			Node:       node,
			ID:         node.ID,
			DependsOn:  make([]*Vertex, 0),
			Dependents: make([]*Vertex, 0),
		}
	}

	// Второй проход: связываем узлы
	for _, conn := range wf.Connections {
		from, ok := dag.Vertices[conn.SourceNodeID]
		if !ok {
			return nil, NewValidationError(conn.TargetNodeID, "connections",
				fmt.Sprintf("connection %q references unknown source node %q", conn.ID, conn.SourceNodeID), ErrDanglingConnection)
		}
		to, ok := dag.Vertices[conn.TargetNodeID]
		if !ok {
			return nil, NewValidationError(conn.SourceNodeID, "connections",
				fmt.Sprintf("connection %q references unknown target node %q", conn.ID, conn.TargetNodeID), ErrDanglingConnection)
		}
		if from == to {
			return nil, NewValidationError(from.ID, "connections", "node is connected to itself", ErrSelfDependency)
		}
		dag.addEdge(from, to)
	}

	// Третий проход: неявные рёбра из плейсхолдеров
	for i := range wf.Nodes {
		to := dag.Vertices[wf.Nodes[i].ID]
		for _, ref := range TemplateRefs(&wf.Nodes[i]) {
			from, ok := dag.Vertices[ref]
			if !ok || from == to {
				continue
			}
			dag.addEdge(from, to)
		}
	}

	dag.findRootNodes()

	// Проверяем на циклы и строим топологический порядок
	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Несколько связей между одной парой узлов (разные handles) дают одно ребро.
func (d *DAG) addEdge(from, to *Vertex) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
// Порядок детерминирован: по ID.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Vertex, 0)
	for _, v := range d.Vertices {
		if v.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, v)
		}
	}
	sort.Slice(d.RootNodes, func(i, j int) bool {
		return d.RootNodes[i].ID < d.RootNodes[j].ID
	})
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Vertex, error) {
	inDegree := make(map[string]int, len(d.Vertices))
	for id, v := range d.Vertices {
		inDegree[id] = v.InDegree
	}

	queue := make([]*Vertex, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Vertex, 0, len(d.Vertices))

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)

		for _, dependent := range v.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(d.Vertices) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: nodes %v", ErrCyclicDependency, stuck)
	}

	return order, nil
}

// GetReadyNodes возвращает узлы, готовые к выполнению, в топологическом порядке.
//
// Узел готов, если:
// - Все его зависимости завершены (в completed)
// - Сам узел ещё не завершён и не в процессе (не в completed и не в running)
func (d *DAG) GetReadyNodes(completed, running map[string]bool) []*Vertex {
	ready := make([]*Vertex, 0)

	for _, v := range d.Order {
		if completed[v.ID] || running[v.ID] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range v.DependsOn {
			if !completed[dep.ID] {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			ready = append(ready, v)
		}
	}

	return ready
}

// GetVertex возвращает узел по ID.
func (d *DAG) GetVertex(id string) *Vertex {
	return d.Vertices[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Vertices)
}

// TemplateRefs возвращает отсортированные первые сегменты путей всех
// плейсхолдеров в config и inputMapping узла.
// Ссылки узла на самого себя не отбрасываются: это решает вызывающий.
func TemplateRefs(node *domain.Node) []string {
	seen := make(map[string]bool)
	collectRefs(node.Config, seen)
	collectRefs(node.InputMapping, seen)

	refs := make([]string, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func collectRefs(value any, seen map[string]bool) {
	switch v := value.(type) {
	case string:
		for _, seg := range ParseTemplate(v).Segments {
			if seg.Kind == SegmentPlaceholder && len(seg.Path) > 0 {
				seen[seg.Path[0]] = true
			}
		}
	case map[string]any:
		for _, item := range v {
			collectRefs(item, seen)
		}
	case map[string]string:
		for _, item := range v {
			collectRefs(item, seen)
		}
	case []any:
		for _, item := range v {
			collectRefs(item, seen)
		}
	}
}
