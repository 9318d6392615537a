package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentmesh/internal/ctxkeys"
	"github.com/BaSui01/agentmesh/internal/metrics"
	"github.com/BaSui01/agentmesh/internal/telemetry"
	"github.com/BaSui01/agentmesh/session"
	"github.com/BaSui01/agentmesh/types"
)

// dispatchLoop drains the queue until the context is cancelled or the
// queue is closed and empty. Exactly one of these runs per Start.
func (r *Runtime) dispatchLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer r.running.Store(false)

	for {
		item, err := r.queue.Receive(ctx)
		if err != nil {
			r.logger.Debug("dispatcher exiting", zap.NamedError("cause", err))
			return
		}
		if r.metrics != nil {
			r.metrics.SetQueueDepth(r.queue.Len())
		}
		r.dispatch(ctx, item)
	}
}

// dispatch drives one task through its full handoff chain. Handoffs are
// resolved inline, so the chain finishes (or fails) before the next
// queued task is picked up. Session writes use a context that survives
// dispatcher cancellation so shutdown cannot corrupt the record.
func (r *Runtime) dispatch(ctx context.Context, item dispatchItem) {
	task, target := item.task, item.target

	ctx, span := telemetry.Tracer().Start(ctx, "runtime.dispatch",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("session.id", task.SessionID),
			attribute.String("agent.entry", target),
		))
	defer span.End()

	ctx = ctxkeys.WithTaskID(ctx, task.ID)
	ctx = ctxkeys.WithSessionID(ctx, task.SessionID)
	saveCtx := context.WithoutCancel(ctx)

	r.ensureSession(saveCtx, task, target)

	resp := r.invoke(ctx, target, task)
	for hop := 0; ; hop++ {
		interrupted := ctx.Err() != nil && !resp.Success
		final := interrupted || !resp.Success || resp.NextAgent == ""

		var finished bool
		var status session.Status
		r.withSession(saveCtx, task.SessionID, func(sess *session.Session) {
			sess.AddResponse(resp)
			sess.CurrentAgent = resp.AgentName
			sess.HandoffCount = task.GetInt(types.ContextKeyHandoffCount)
			if final && !interrupted && !sess.Completed {
				status = session.StatusCompleted
				if !resp.Success {
					status = session.StatusFailed
				}
				sess.Finish(resp, status)
				finished = true
			}
		})
		if finished {
			r.sessionsActive.Add(-1)
			r.sessionsEnded.Add(1)
			if r.metrics != nil {
				r.metrics.SessionEnded(string(status))
			}
			r.logger.Info("session finished",
				zap.String("session_id", task.SessionID),
				zap.String("status", string(status)),
				zap.Int("handoffs", hop),
				zap.String("agent", resp.AgentName),
			)
		}

		if interrupted {
			// Shutdown mid-chain. The session stays incomplete; the
			// record shows how far the task got.
			r.logger.Warn("dispatch interrupted",
				zap.String("session_id", task.SessionID),
				zap.String("agent", resp.AgentName),
			)
			span.SetStatus(codes.Error, "dispatch interrupted")
			return
		}
		if final {
			if !resp.Success {
				span.SetStatus(codes.Error, resp.Error)
			}
			span.SetAttributes(attribute.Int("handoffs", hop))
			return
		}

		req := resp.Handoff
		if req == nil {
			req = types.NewHandoffRequest(resp.NextAgent, "agent requested transfer", task)
		}
		req.HandoffCount = task.GetInt(types.ContextKeyHandoffCount)
		task.Set(types.ContextKeyHandoffSource, resp.AgentName)
		if req.Reason != "" {
			task.Set(types.ContextKeyHandoffReason, req.Reason)
		}

		ctx = ctxkeys.WithHop(ctx, hop+1)
		resp = r.HandleHandoff(ctx, req)
	}
}

// ensureSession makes sure the task has a persisted session marked
// running. Published tasks already have one; this also covers tasks whose
// store entry expired between publish and dispatch.
func (r *Runtime) ensureSession(ctx context.Context, task *types.Task, target string) {
	if task.SessionID != "" {
		if sess, err := r.sessions.Get(ctx, task.SessionID); err == nil {
			if !sess.Completed {
				sess.Status = session.StatusRunning
				sess.CurrentAgent = target
				r.saveSession(ctx, sess)
			}
			return
		}
	}

	sess := session.New(task, target)
	sess.Status = session.StatusRunning
	r.saveSession(ctx, sess)
	r.sessionsActive.Add(1)
	if r.metrics != nil {
		r.metrics.SessionStarted()
	}
}

// HandleHandoff validates and resolves one transfer of control. The cap
// check happens before the count is incremented, so a request arriving at
// the cap is rejected. Rejections come back as failed responses from the
// runtime itself; an accepted handoff returns the target agent's response.
func (r *Runtime) HandleHandoff(ctx context.Context, req *types.HandoffRequest) *types.Response {
	if req == nil {
		return types.NewErrorResponse(runtimeName,
			types.NewError(types.ErrProcessFailed, "handoff request is nil"))
	}
	if err := req.Validate(); err != nil {
		return types.NewErrorResponse(runtimeName,
			types.NewError(types.ErrProcessFailed, err.Error()))
	}

	task := req.Task
	count := task.GetInt(types.ContextKeyHandoffCount)
	maxHandoffs := req.MaxHandoffs
	if maxHandoffs <= 0 {
		maxHandoffs = r.config.MaxHandoffs
	}
	from := task.GetString(types.ContextKeyHandoffSource)

	if count >= maxHandoffs {
		r.errorsTotal.Add(1)
		if r.metrics != nil {
			r.metrics.RecordHandoff(from, req.TargetAgent, metrics.HandoffRejectedLoop)
		}
		task.AddHistory(runtimeName, "handoff_rejected",
			fmt.Sprintf("count %d at cap %d", count, maxHandoffs))
		r.logger.Warn("handoff rejected: cap reached",
			zap.String("from", from),
			zap.String("target", req.TargetAgent),
			zap.Int("count", count),
			zap.Int("max", maxHandoffs),
		)
		return types.NewErrorResponse(runtimeName,
			types.NewErrorf(types.ErrHandoffLoopExceeded,
				"handoff count %d reached the cap of %d", count, maxHandoffs))
	}

	if _, ok := r.GetAgent(req.TargetAgent); !ok {
		r.errorsTotal.Add(1)
		if r.metrics != nil {
			r.metrics.RecordHandoff(from, req.TargetAgent, metrics.HandoffRejectedUnknown)
		}
		task.AddHistory(runtimeName, "handoff_rejected",
			fmt.Sprintf("unknown agent %q", req.TargetAgent))
		r.logger.Warn("handoff rejected: unknown target",
			zap.String("from", from),
			zap.String("target", req.TargetAgent),
		)
		return types.NewErrorResponse(runtimeName,
			types.NewErrorf(types.ErrUnknownAgent,
				"agent %q is not registered", req.TargetAgent))
	}

	task.Set(types.ContextKeyHandoffCount, count+1)
	r.handoffsTotal.Add(1)
	if r.metrics != nil {
		r.metrics.RecordHandoff(from, req.TargetAgent, metrics.HandoffAccepted)
	}
	r.logger.Debug("handoff accepted",
		zap.String("from", from),
		zap.String("target", req.TargetAgent),
		zap.Int("count", count+1),
		zap.String("reason", req.Reason),
	)

	return r.invoke(ctx, req.TargetAgent, task)
}

// invoke resolves the agent and calls its HandleTask, normalizing a nil
// response into a failed one. Unregistered targets fail the same way.
func (r *Runtime) invoke(ctx context.Context, target string, task *types.Task) *types.Response {
	a, ok := r.GetAgent(target)
	if !ok {
		r.errorsTotal.Add(1)
		if r.metrics != nil {
			r.metrics.RecordDispatch(target, metrics.StatusFailed, 0)
		}
		return types.NewErrorResponse(runtimeName,
			types.NewErrorf(types.ErrUnknownAgent, "agent %q is not registered", target))
	}

	ctx = ctxkeys.WithAgentName(ctx, target)
	r.tasksDispatched.Add(1)

	start := time.Now()
	resp := a.HandleTask(ctx, task)
	elapsed := time.Since(start)

	if resp == nil {
		resp = types.NewErrorResponse(target,
			types.NewErrorf(types.ErrProcessFailed, "agent %s returned no response", target))
	}
	if !resp.Success {
		r.errorsTotal.Add(1)
	}

	if r.metrics != nil {
		status := metrics.StatusSuccess
		switch {
		case !resp.Success:
			status = metrics.StatusFailed
		case resp.NextAgent != "":
			status = metrics.StatusHandoff
		}
		r.metrics.RecordDispatch(target, status, elapsed)
	}
	r.logger.Debug("task dispatched",
		zap.String("agent", target),
		zap.String("task_id", task.ID),
		zap.Bool("success", resp.Success),
		zap.String("next_agent", resp.NextAgent),
		zap.Duration("elapsed", elapsed),
	)
	return resp
}
