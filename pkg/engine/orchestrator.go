package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/observability"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/safety"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/dirigent-dev/dirigent/pkg/transport"
)

// errTerminalViolation is returned when something attempts to emit a
// second terminal event for the same response. The first terminal event
// wins; the violation is a bug, not a recoverable condition.
var errTerminalViolation = errors.New("engine: terminal event already emitted")

// incompleteReasonCancelled marks a response cut short by the caller
// disconnecting or cancelling the request context.
const incompleteReasonCancelled = "cancelled"

// orchestrator runs the agentic loop for one response: inference
// iterations, server-side tool dispatch, safety gates, and the ordered
// event stream. One orchestrator serves exactly one response and is not
// reused.
type orchestrator struct {
	provider  provider.Provider
	gate      *safety.Gate
	executors []tools.ToolExecutor
	cfg       Config

	req      *api.CreateResponseRequest
	cc       *chatContext
	chain    *chainState
	newItems []api.Item

	resp *api.Response
	w    transport.ResponseWriter
	ctx  context.Context

	seq          int
	outputIndex  int
	iterations   int
	terminalSent bool

	// writerGone is set when the consumer stops accepting events. The
	// loop keeps running so the terminal response can still be persisted.
	writerGone bool
}

func newOrchestrator(p provider.Provider, gate *safety.Gate, executors []tools.ToolExecutor, cfg Config, req *api.CreateResponseRequest, cc *chatContext, chain *chainState, newItems []api.Item, w transport.ResponseWriter) *orchestrator {
	o := &orchestrator{
		provider:  p,
		gate:      gate,
		executors: executors,
		cfg:       cfg,
		req:       req,
		cc:        cc,
		chain:     chain,
		newItems:  newItems,
		w:         w,
		seq:       1,
	}
	o.resp = o.buildResponse()
	return o
}

// buildResponse constructs the in_progress response shell echoing the
// request's configuration.
func (o *orchestrator) buildResponse() *api.Response {
	resp := &api.Response{
		ID:                api.NewResponseID(),
		Object:            "response",
		CreatedAt:         time.Now().Unix(),
		Status:            api.ResponseStatusInProgress,
		Model:             o.req.Model,
		Conversation:      o.req.Conversation,
		Output:            []api.Item{},
		Guardrails:        o.req.Guardrails,
		Tools:             o.req.Tools,
		ParallelToolCalls: true,
		Truncation:        "disabled",
		Text:              o.req.Text,
		Temperature:       1.0,
		TopP:              1.0,
		MaxOutputTokens:   o.req.MaxOutputTokens,
		MaxInferIters:     o.cfg.maxInferIters(o.req),
		Usage:             &api.Usage{},
		Store:             api.ResolveStore(o.req),
		Metadata:          o.req.Metadata,
		User:              o.req.User,
	}
	if o.req.PreviousResponseID != "" {
		prev := o.req.PreviousResponseID
		resp.PreviousResponseID = &prev
	}
	if o.req.Instructions != "" {
		instr := o.req.Instructions
		resp.Instructions = &instr
	}
	if o.req.ToolChoice != nil {
		resp.ToolChoice = o.req.ToolChoice
	}
	if o.req.Temperature != nil {
		resp.Temperature = *o.req.Temperature
	}
	if o.req.TopP != nil {
		resp.TopP = *o.req.TopP
	}
	if o.req.ParallelToolCalls != nil {
		resp.ParallelToolCalls = *o.req.ParallelToolCalls
	}
	if o.req.Truncation != "" {
		resp.Truncation = o.req.Truncation
	}
	return resp
}

// nextSeq returns the next event sequence number. Numbering starts at 1
// and is strictly monotonic within a response.
func (o *orchestrator) nextSeq() int {
	n := o.seq
	o.seq++
	return n
}

func (o *orchestrator) nextOutputIndex() int {
	n := o.outputIndex
	o.outputIndex++
	return n
}

// emit assigns the sequence number and writes the event. A write failure
// stops further writes but never the loop: the response outcome must not
// depend on the consumer staying connected.
func (o *orchestrator) emit(ev api.StreamEvent) {
	ev.SequenceNumber = o.nextSeq()
	if o.writerGone {
		return
	}
	if err := o.w.WriteEvent(o.ctx, ev); err != nil {
		o.writerGone = true
		slog.Debug("event consumer gone, continuing without writes",
			"response_id", o.resp.ID,
			"sequence_number", ev.SequenceNumber,
			"error", err,
		)
	}
}

// snapshot returns a copy of the response for embedding in lifecycle
// events, so later mutation does not alias emitted events.
func (o *orchestrator) snapshot() *api.Response {
	cp := *o.resp
	cp.Output = append([]api.Item(nil), o.resp.Output...)
	return &cp
}

// Run executes the loop to a terminal response. The returned response is
// always terminal when the error is nil; provider and gate errors that
// occur after the created event surface as a failed response, not as an
// error return.
func (o *orchestrator) Run(ctx context.Context) (*api.Response, error) {
	o.ctx = ctx

	checkIDs := api.GuardrailIDs(o.req.Guardrails)

	// Input gate: runs over the full rolling buffer before the first
	// inference call. A violation produces a complete refusal response
	// without touching the backend.
	if o.gate != nil && len(checkIDs) > 0 {
		violation, err := o.gate.Check(ctx, messageTexts(o.cc.messages), checkIDs)
		if err != nil {
			return nil, err
		}
		if violation != nil {
			observability.SafetyChecksTotal.WithLabelValues(violation.CheckID, "flagged").Inc()
			return o.refuse(violation), nil
		}
		for _, id := range checkIDs {
			observability.SafetyChecksTotal.WithLabelValues(id, "pass").Inc()
		}
	}

	o.emit(api.StreamEvent{Type: api.EventResponseCreated, Response: o.snapshot()})
	o.emit(api.StreamEvent{Type: api.EventResponseInProgress, Response: o.snapshot()})

	o.resolveApprovals(ctx)
	o.emitListTools()

	maxIters := o.resp.MaxInferIters
	for iter := 0; iter < maxIters; iter++ {
		turn, err := o.runInference(ctx)
		if err != nil {
			return o.fail(err)
		}
		o.iterations++

		o.resp.Usage.Add(turn.usage)
		if turn.message != nil {
			o.resp.Output = append(o.resp.Output, *turn.message)
		}

		var serverCalls []*toolCallState
		clientFacing := false
		for _, tc := range turn.calls {
			if tc.kind == callFunction {
				o.resp.Output = append(o.resp.Output, tc.item)
				clientFacing = true
			} else {
				serverCalls = append(serverCalls, tc)
			}
		}

		if turn.cancelled {
			return o.incomplete(incompleteReasonCancelled)
		}
		if turn.finish == provider.FinishReasonLength {
			return o.incomplete(api.IncompleteReasonMaxOutputTokens)
		}

		if len(serverCalls) == 0 {
			// Plain text, or calls the client must execute: either way
			// this turn is the last one.
			return o.complete(ctx)
		}

		// Record the model's turn before tool results. Approval-gated
		// calls stay out of the buffer; they replay after the caller
		// answers.
		o.cc.appendAssistantTurn(turn.text(), o.bufferedCalls(turn.calls))

		pending := o.dispatchTools(ctx, serverCalls)
		if pending || clientFacing {
			return o.complete(ctx)
		}

		slog.Debug("continuing inference loop",
			"response_id", o.resp.ID,
			"iteration", iter+1,
			"tool_calls", len(serverCalls),
		)
	}

	slog.Warn("inference iteration budget exhausted",
		"response_id", o.resp.ID,
		"max_infer_iters", maxIters,
	)
	return o.incomplete(api.IncompleteReasonMaxInferIters)
}

func (o *orchestrator) needsApproval(tc *toolCallState) bool {
	return tc.kind == callMCP && tc.binding != nil && tc.binding.requireApproval.RequiresFor(tc.name)
}

// bufferedCalls renders a turn's calls for the assistant message,
// excluding approval-gated ones.
func (o *orchestrator) bufferedCalls(calls []*toolCallState) []provider.ProviderToolCall {
	var out []provider.ProviderToolCall
	for _, tc := range calls {
		if o.needsApproval(tc) {
			continue
		}
		out = append(out, provider.ProviderToolCall{
			ID:   tc.callID,
			Type: "function",
			Function: provider.ProviderFunctionCall{
				Name:      tc.name,
				Arguments: tc.args.String(),
			},
		})
	}
	return out
}

// runInference performs one streaming provider call and assembles the
// turn. A stream error aborts the turn unless it is the caller's own
// cancellation, which finishes as a cancelled turn.
func (o *orchestrator) runInference(ctx context.Context) (*turnResult, error) {
	events, err := o.provider.Stream(ctx, o.cc.providerRequest())
	if err != nil {
		return nil, err
	}

	st := newStreamState(o)
	for ev := range events {
		switch ev.Type {
		case provider.ProviderEventTurnDone:
			return st.finish(ev.FinishReason, ev.Usage), nil

		case provider.ProviderEventError:
			if errors.Is(ev.Err, context.Canceled) || ctx.Err() != nil {
				turn := st.finish("", nil)
				turn.cancelled = true
				return turn, nil
			}
			return nil, ev.Err

		default:
			st.handle(ev)
		}
	}

	// Channel closed without a turn-done event. Treat like cancellation
	// when the context is gone, otherwise the backend misbehaved.
	if ctx.Err() != nil {
		turn := st.finish("", nil)
		turn.cancelled = true
		return turn, nil
	}
	return nil, errors.New("provider stream ended without completion")
}

// refuse produces the input-gate refusal: a completed response whose only
// output is a refusal message, with exactly the created and completed
// events on the stream.
func (o *orchestrator) refuse(v *safety.Violation) *api.Response {
	slog.Info("input rejected by safety check",
		"response_id", o.resp.ID,
		"check_id", v.CheckID,
		"categories", v.Categories,
	)

	msg := v.Message
	if msg == "" {
		msg = safety.DefaultRefusalMessage
	}
	o.resp.Output = []api.Item{{
		ID:     api.NewItemID(),
		Type:   api.ItemTypeMessage,
		Status: api.ItemStatusCompleted,
		Message: &api.MessageData{
			Role:   api.RoleAssistant,
			Output: []api.OutputContentPart{api.NewRefusalPart(msg)},
		},
	}}

	o.emit(api.StreamEvent{Type: api.EventResponseCreated, Response: o.snapshot()})
	o.finalize(api.ResponseStatusCompleted)
	return o.resp
}

// complete runs the output gate and finalizes the response as completed.
// An output violation replaces the output with a refusal message; the
// response status stays completed.
func (o *orchestrator) complete(ctx context.Context) (*api.Response, error) {
	checkIDs := append(api.GuardrailIDs(o.req.Guardrails), o.cfg.OutputChecks...)
	if o.gate != nil && len(checkIDs) > 0 {
		text := api.OutputText(o.resp.Output)
		if text != "" {
			violation, err := o.gate.CheckText(ctx, text, checkIDs)
			if err != nil {
				// A gate backend failure must not discard a finished
				// response; the output passes unfiltered.
				slog.Error("output safety check failed, returning unfiltered output",
					"response_id", o.resp.ID,
					"error", err,
				)
			}
			if violation != nil {
				observability.SafetyChecksTotal.WithLabelValues(violation.CheckID, "flagged").Inc()
				slog.Info("output replaced by safety check",
					"response_id", o.resp.ID,
					"check_id", violation.CheckID,
					"categories", violation.Categories,
				)
				msg := violation.Message
				if msg == "" {
					msg = safety.DefaultRefusalMessage
				}
				o.resp.Output = []api.Item{{
					ID:     api.NewItemID(),
					Type:   api.ItemTypeMessage,
					Status: api.ItemStatusCompleted,
					Message: &api.MessageData{
						Role:   api.RoleAssistant,
						Output: []api.OutputContentPart{api.NewRefusalPart(msg)},
					},
				}}
			}
		}
	}

	if err := o.finalize(api.ResponseStatusCompleted); err != nil {
		return nil, err
	}
	return o.resp, nil
}

func (o *orchestrator) incomplete(reason string) (*api.Response, error) {
	o.resp.IncompleteDetails = &api.IncompleteDetails{Reason: reason}
	if err := o.finalize(api.ResponseStatusIncomplete); err != nil {
		return nil, err
	}
	return o.resp, nil
}

// fail finalizes the response as failed with a sanitized error. Raw
// backend error text is logged but never put on the wire.
func (o *orchestrator) fail(err error) (*api.Response, error) {
	slog.Error("response failed",
		"response_id", o.resp.ID,
		"error", err,
	)
	o.resp.Error = sanitizeProviderError(err)
	if ferr := o.finalize(api.ResponseStatusFailed); ferr != nil {
		return nil, ferr
	}
	return o.resp, nil
}

// finalize stamps the terminal status and emits the single terminal
// event. A second call is a bug and fails loudly.
func (o *orchestrator) finalize(status api.ResponseStatus) error {
	if o.terminalSent {
		slog.Error("terminal event already emitted",
			"response_id", o.resp.ID,
			"status", status,
		)
		return errTerminalViolation
	}
	o.terminalSent = true

	now := time.Now().Unix()
	o.resp.Status = status
	o.resp.CompletedAt = &now
	if o.iterations > 0 {
		observability.InferIterationsTotal.
			WithLabelValues(string(status)).
			Add(float64(o.iterations))
	}

	var evType api.StreamEventType
	switch status {
	case api.ResponseStatusCompleted:
		evType = api.EventResponseCompleted
	case api.ResponseStatusIncomplete:
		evType = api.EventResponseIncomplete
	case api.ResponseStatusFailed:
		evType = api.EventResponseFailed
	}
	o.emit(api.StreamEvent{Type: evType, Response: o.snapshot()})
	return nil
}
