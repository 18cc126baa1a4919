package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/nodes"
)

// Зарезервированные ключи конфигурации узла.
const (
	runConditionKey   = "_flow_run_condition"
	retryConfigKey    = "retry"
	onErrorWebhookKey = "onErrorWebhook"
	timeoutKey        = "timeoutMs"
)

// Причины пропуска узла.
const (
	reasonUpstreamFailed = "Upstream dependency failed."
	reasonConditionFalse = "_flow_run_condition was falsy"
	reasonCancelled      = "Run cancelled."
)

// nodeOutcome — итог выполнения узла, который горутина узла
// возвращает в dispatch.
type nodeOutcome struct {
	node     *domain.Node
	status   domain.NodeStatus
	output   nodes.Output
	err      error
	reason   string
	attempts []domain.AttemptRecord
	duration time.Duration
}

// runNode выполняет один узел: разрешение конфигурации, _flow_run_condition,
// исполнитель с повторами, on-error webhook.
//
// runNode не меняет RunState и data bag, это делает apply.
func (e *Engine) runNode(ctx context.Context, rc *runContext, node *domain.Node) *nodeOutcome {
	start := e.now()
	outcome := &nodeOutcome{node: node}

	ctx, span := e.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", string(node.Type)),
	))
	defer span.End()

	defer func() {
		outcome.duration = e.now().Sub(start)
		span.SetAttributes(
			attribute.String("node.status", string(outcome.status)),
			attribute.Int("node.attempts", len(outcome.attempts)),
		)
		if outcome.err != nil {
			span.RecordError(outcome.err)
			span.SetStatus(codes.Error, outcome.err.Error())
		}
	}()

	config := e.resolver.ResolveNodeConfig(ctx, node.Config, node.InputMapping, rc.bag, rc.logs, rc.exec.UserID)

	if raw, ok := config[runConditionKey]; ok {
		condition := ""
		if raw != nil {
			condition = fmt.Sprint(raw)
		}
		if !engine.EvaluateCondition(condition, node.DisplayName(), rc.logs) {
			rc.logs.Info("[ENGINE/main] Skipping node %s: %s.", node.DisplayName(), reasonConditionFalse)
			outcome.status = domain.NodeStatusSkipped
			outcome.reason = reasonConditionFalse
			return outcome
		}
	}

	executor, err := e.registry.Get(node.Type.Canonical())
	if err != nil {
		return e.failNode(ctx, rc, outcome, err)
	}

	policy, err := retryPolicy(node, config)
	if err != nil {
		rc.logs.Info("[ENGINE/main] Node %s has an unreadable retry config (%v). Using a single attempt.", node.DisplayName(), err)
	}
	maxAttempts := policy.MaxAttempts()
	if rc.exec.Simulation {
		maxAttempts = 1
	}
	timeout := e.nodeTimeout
	if ms := nodes.GetConfigInt(config, timeoutKey); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	req := &nodes.Request{
		Node:   node,
		Config: config,
		Exec:   rc.exec,
		Bag:    rc.bag,
		Logs:   rc.logs,
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptStart := e.now()
		output, err := e.attempt(ctx, executor, req, timeout)

		record := domain.AttemptRecord{
			Attempt:   attempt,
			StartedAt: attemptStart,
			Duration:  e.now().Sub(attemptStart),
		}
		if err == nil {
			outcome.attempts = append(outcome.attempts, record)
			rc.logs.Success("[ENGINE/main] Node %s executed successfully.", node.DisplayName())
			outcome.status = domain.NodeStatusSuccess
			outcome.output = output
			return outcome
		}

		record.Error = err.Error()
		outcome.attempts = append(outcome.attempts, record)
		lastErr = err

		if attempt >= maxAttempts || !shouldRetry(ctx, err, policy) {
			break
		}

		delay := calculateBackoff(attempt, policy)
		rc.logs.Error("[ENGINE/main] Node %s failed on attempt %d: %v. Retrying in %dms...",
			node.DisplayName(), attempt, err, delay.Milliseconds())
		e.metrics.NodeRetried(string(node.Type.Canonical()))

		if err := e.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("%w: retry wait interrupted: %v", nodes.ErrNodeCancelled, err)
			break
		}
	}

	if isRunCancelled(ctx, lastErr) {
		rc.logs.Info("[ENGINE/main] Node %s interrupted: %v", node.DisplayName(), lastErr)
		outcome.status = domain.NodeStatusSkipped
		outcome.reason = reasonCancelled
		return outcome
	}

	return e.failNode(ctx, rc, outcome, lastErr)
}

// attempt выполняет одну попытку с таймаутом.
func (e *Engine) attempt(ctx context.Context, executor nodes.Executor, req *nodes.Request, timeout time.Duration) (out nodes.Output, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node executor panic: %v", r)
		}
	}()

	// Успех исполнителя остаётся успехом, даже если таймаут истёк после вызова.
	return executor.Execute(ctx, req)
}

// failNode завершает узел ошибкой и отправляет on-error webhook.
func (e *Engine) failNode(ctx context.Context, rc *runContext, outcome *nodeOutcome, err error) *nodeOutcome {
	node := outcome.node
	outcome.status = domain.NodeStatusError
	outcome.err = err

	rc.logs.Error("[ENGINE/main] Node %s FAILED permanently: %v", node.DisplayName(), err)

	if hook := onErrorWebhook(node); hook != nil {
		e.notifyError(ctx, rc, node, hook, err)
	}
	return outcome
}

// apply записывает итог узла в data bag, RunState и ExecutionResult.
func (e *Engine) apply(rc *runContext, o *nodeOutcome) {
	nr := rc.result.Nodes[o.node.ID]
	nr.Attempts = o.attempts

	switch o.status {
	case domain.NodeStatusSuccess:
		nr.Status = domain.NodeStatusSuccess
		nr.Output = o.output
		e.writeBag(rc, o.node.ID, o.output)
		rc.state.MarkNodeSucceeded(o.node.ID)

	case domain.NodeStatusSkipped:
		e.skipNode(rc, o.node, o.reason, false)

	default:
		msg := o.err.Error()
		nr.Status = domain.NodeStatusError
		nr.Error = msg
		annotation := map[string]any{
			"lastExecutionStatus": string(domain.NodeStatusError),
			"error":               msg,
			"error_message":       msg,
		}
		nr.Output = annotation
		e.writeBag(rc, o.node.ID, annotation)
		rc.state.MarkNodeFailed(o.node.ID)

		rc.logger.Warn("node failed",
			"node_id", o.node.ID,
			"node_type", o.node.Type,
			"attempts", len(o.attempts),
			"error", o.err,
		)
	}

	e.metrics.NodeFinished(string(o.node.Type.Canonical()), string(o.status), o.duration)
}

// skipNode помечает узел пропущенным.
// blocking=true — потомки узла тоже будут пропущены.
func (e *Engine) skipNode(rc *runContext, node *domain.Node, reason string, blocking bool) {
	nr := rc.result.Nodes[node.ID]
	annotation := map[string]any{
		"lastExecutionStatus": string(domain.NodeStatusSkipped),
		"reason":              reason,
	}
	nr.Status = domain.NodeStatusSkipped
	nr.Reason = reason
	nr.Output = annotation

	e.writeBag(rc, node.ID, annotation)
	rc.state.MarkNodeSkipped(node.ID, blocking)

	if blocking {
		e.metrics.NodeFinished(string(node.Type.Canonical()), string(domain.NodeStatusSkipped), 0)
	}
}

func (e *Engine) writeBag(rc *runContext, nodeID string, value any) {
	if err := rc.bag.Set(nodeID, value); err != nil {
		rc.logger.Error("data bag write rejected", "node_id", nodeID, "error", err)
	}
}

// isRunCancelled проверяет, вызвана ли ошибка отменой run, а не узла.
func isRunCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, nodes.ErrNodeCancelled) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
