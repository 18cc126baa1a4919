package orchestrator

import (
	"sync"

	"github.com/shaiso/Flowline/internal/engine"
)

// RunState — состояние выполнения одного run в памяти.
//
// RunState создаётся когда Engine начинает выполнение workflow
// и живёт до возврата из Execute.
//
// Узел проходит pending → running → {succeeded | failed | skipped}.
// Упавшие узлы и узлы, пропущенные из-за упавшей зависимости, блокируют
// своих потомков. Узлы, пропущенные по _flow_run_condition, не блокируют.
type RunState struct {
	// DAG — граф зависимостей узлов.
	DAG *engine.DAG

	// done — узлы в финальном статусе (nodeID → true).
	done map[string]bool

	// running — узлы в процессе выполнения.
	running map[string]bool

	// succeeded — успешно выполненные узлы.
	succeeded map[string]bool

	// failed — упавшие узлы.
	failed map[string]bool

	// skipped — пропущенные узлы (nodeID → блокирует ли потомков).
	skipped map[string]bool

	mu sync.RWMutex
}

// NewRunState создаёт новый RunState.
func NewRunState(dag *engine.DAG) *RunState {
	return &RunState{
		DAG:       dag,
		done:      make(map[string]bool),
		running:   make(map[string]bool),
		succeeded: make(map[string]bool),
		failed:    make(map[string]bool),
		skipped:   make(map[string]bool),
	}
}

// GetReadyNodes возвращает узлы, готовые к выполнению.
// Узел готов, если все его зависимости в финальном статусе и он ещё не запущен.
func (s *RunState) GetReadyNodes() []*engine.Vertex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.DAG.GetReadyNodes(s.done, s.running)
}

// IsBlocked возвращает true, если хотя бы одна зависимость узла упала
// или была пропущена из-за упавшей зависимости.
func (s *RunState) IsBlocked(v *engine.Vertex) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dep := range v.DependsOn {
		if s.failed[dep.ID] || s.skipped[dep.ID] {
			return true
		}
	}
	return false
}

// MarkNodeRunning помечает узел как выполняющийся.
func (s *RunState) MarkNodeRunning(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running[nodeID] = true
}

// MarkNodeSucceeded помечает узел как успешно выполненный.
func (s *RunState) MarkNodeSucceeded(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, nodeID)
	s.done[nodeID] = true
	s.succeeded[nodeID] = true
}

// MarkNodeFailed помечает узел как упавший.
func (s *RunState) MarkNodeFailed(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, nodeID)
	s.done[nodeID] = true
	s.failed[nodeID] = true
}

// MarkNodeSkipped помечает узел как пропущенный.
// blocking=true — потомки узла тоже будут пропущены.
func (s *RunState) MarkNodeSkipped(nodeID string, blocking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, nodeID)
	s.done[nodeID] = true
	s.skipped[nodeID] = blocking
}

// PendingNodes возвращает узлы, которые ещё не запускались, в топологическом порядке.
func (s *RunState) PendingNodes() []*engine.Vertex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*engine.Vertex
	for _, v := range s.DAG.Order {
		if !s.done[v.ID] && !s.running[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.DAG.Size()
	return RunStats{
		TotalNodes:     total,
		SucceededNodes: len(s.succeeded),
		RunningNodes:   len(s.running),
		FailedNodes:    len(s.failed),
		SkippedNodes:   len(s.skipped),
		PendingNodes:   total - len(s.done) - len(s.running),
	}
}

// RunStats — статистика выполнения run.
type RunStats struct {
	TotalNodes     int
	SucceededNodes int
	RunningNodes   int
	FailedNodes    int
	SkippedNodes   int
	PendingNodes   int
}
