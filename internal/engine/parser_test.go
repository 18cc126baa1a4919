package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Flowline/internal/domain"
)

type typeSet map[domain.NodeType]bool

func (s typeSet) Has(t domain.NodeType) bool { return s[t] }

var knownTypes = typeSet{
	domain.NodeTypeHTTPRequest: true,
	domain.NodeTypeLogMessage:  true,
	domain.NodeTypeDBQuery:     true,
}

func TestValidate_EmptyNodes(t *testing.T) {
	tests := []struct {
		name string
		wf   *domain.Workflow
	}{
		{name: "nil workflow", wf: nil},
		{name: "no nodes", wf: &domain.Workflow{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.wf, knownTypes)
			if !errors.Is(err, ErrEmptyNodes) {
				t.Errorf("expected ErrEmptyNodes, got %v", err)
			}
		})
	}
}

func TestValidate_UnknownNodeType(t *testing.T) {
	wf := &domain.Workflow{Nodes: []domain.Node{{ID: "n1", Type: "teleport"}}}

	_, err := Validate(wf, knownTypes)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("expected ErrUnknownNodeType, got %v", err)
	}
	if vErr.NodeID != "n1" || vErr.Field != "type" {
		t.Errorf("unexpected context: %+v", vErr)
	}
}

func TestValidate_AliasType(t *testing.T) {
	wf := &domain.Workflow{Nodes: []domain.Node{{ID: "q", Type: "databaseQuery"}}}

	if _, err := Validate(wf, knownTypes); err != nil {
		t.Errorf("alias type should validate, got %v", err)
	}
}

func TestValidate_RetryAndWebhook(t *testing.T) {
	tests := []struct {
		name string
		node domain.Node
	}{
		{
			name: "negative attempts",
			node: domain.Node{ID: "n", Type: domain.NodeTypeHTTPRequest, RetryConfig: &domain.RetryConfig{Attempts: -1}},
		},
		{
			name: "webhook without url",
			node: domain.Node{ID: "n", Type: domain.NodeTypeHTTPRequest, OnErrorWebhookConfig: &domain.OnErrorWebhookConfig{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &domain.Workflow{Nodes: []domain.Node{tt.node}}
			_, err := Validate(wf, knownTypes)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestValidate_ReturnsDAG(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeTypeHTTPRequest},
			{ID: "b", Type: domain.NodeTypeLogMessage},
		},
		Connections: []domain.Connection{{SourceNodeID: "a", TargetNodeID: "b"}},
	}

	dag, err := Validate(wf, knownTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.Size() != 2 || len(dag.RootNodes) != 1 {
		t.Errorf("unexpected dag: size=%d roots=%d", dag.Size(), len(dag.RootNodes))
	}
}
