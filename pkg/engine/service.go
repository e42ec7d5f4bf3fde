package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/safety"
	"github.com/dirigent-dev/dirigent/pkg/storage"
	"github.com/dirigent-dev/dirigent/pkg/tools"
	"github.com/dirigent-dev/dirigent/pkg/transport"
)

// Engine is the orchestration service. It implements
// transport.ResponseCreator and composes the provider, storage, safety,
// and tool subsystems; every dependency except the provider is optional,
// and missing ones degrade the matching features instead of failing
// construction.
type Engine struct {
	provider  provider.Provider
	store     storage.ResponseStore
	convs     storage.ConversationStore
	gate      *safety.Gate
	executors []tools.ToolExecutor
	mcp       MCPRegistry
	cfg       Config

	storeCh   chan *storage.StoredResponse
	storeWG   sync.WaitGroup
	closeOnce sync.Once
}

// Options carries the optional dependencies for New.
type Options struct {
	Store         storage.ResponseStore
	Conversations storage.ConversationStore
	Gate          *safety.Gate
	Executors     []tools.ToolExecutor
	MCP           MCPRegistry
}

// New creates an Engine. The provider is the only required dependency.
func New(p provider.Provider, cfg Config, opts Options) (*Engine, error) {
	if p == nil {
		return nil, errors.New("engine: provider is required")
	}
	e := &Engine{
		provider:  p,
		store:     opts.Store,
		convs:     opts.Conversations,
		gate:      opts.Gate,
		executors: opts.Executors,
		mcp:       opts.MCP,
		cfg:       cfg,
	}
	if cfg.StoreInBackground && e.store != nil {
		e.storeCh = make(chan *storage.StoredResponse, cfg.storeWorkers()*2)
		for i := 0; i < cfg.storeWorkers(); i++ {
			e.storeWG.Add(1)
			go e.storeWorker()
		}
	}
	return e, nil
}

// Close drains the background persistence pool.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.storeCh != nil {
			close(e.storeCh)
			e.storeWG.Wait()
		}
	})
	return nil
}

// CreateResponse runs the full pipeline for one request: validation,
// chain resolution, tool resolution, the orchestration loop, and
// persistence. Events always flow through the orchestrator; for
// non-streaming requests they are collapsed into the final response
// object here.
func (e *Engine) CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w transport.ResponseWriter) error {
	if req.Model == "" {
		req.Model = e.cfg.DefaultModel
	}

	if apiErr := api.ValidateRequest(req, e.cfg.validation()); apiErr != nil {
		return apiErr
	}
	if apiErr := api.ValidateStatelessConstraints(req); apiErr != nil {
		return apiErr
	}
	if err := e.gate.Resolve(api.GuardrailIDs(req.Guardrails)); err != nil {
		return api.NewInvalidRequestError("guardrails", err.Error())
	}
	if apiErr := provider.ValidateCapabilities(e.provider.Capabilities(), req); apiErr != nil {
		return apiErr
	}

	chain, err := resolveChain(ctx, e.store, e.convs, req)
	if err != nil {
		return err
	}

	tc := resolveTools(ctx, req, e.mcp, e.executors, chain.recoveredMCP)
	newItems := req.Input.ToItems()
	cc := newChatContext(req, chain.messages, newItems, tc)

	ew := w
	var collector *collectingWriter
	if !req.Stream {
		collector = &collectingWriter{}
		ew = collector
	}

	o := newOrchestrator(e.provider, e.gate, e.executors, e.cfg, req, cc, chain, newItems, ew)
	resp, err := o.Run(ctx)
	if err != nil {
		return err
	}

	// The persisted input is the full chained item list, not just this
	// request's items.
	inputItems := make([]api.Item, 0, len(chain.priorItems)+len(newItems))
	inputItems = append(inputItems, chain.priorItems...)
	inputItems = append(inputItems, newItems...)
	e.persist(ctx, resp, inputItems, cc.messages)
	e.syncConversation(ctx, req, newItems, resp)

	if collector != nil {
		final := collector.terminal
		if final == nil {
			final = resp
		}
		return w.WriteResponse(ctx, final)
	}
	return nil
}

// persist stores a terminal response when the request asked for it.
// Persistence failures are logged, never surfaced: the caller already has
// the response.
func (e *Engine) persist(ctx context.Context, resp *api.Response, input []api.Item, messages []provider.ProviderMessage) {
	if e.store == nil || !resp.Store {
		return
	}
	rec := &storage.StoredResponse{
		Response: resp,
		Input:    input,
		Messages: messages,
	}

	if e.storeCh != nil {
		select {
		case e.storeCh <- rec:
		default:
			// Pool saturated; fall through to a synchronous save rather
			// than dropping the record.
			e.saveRecord(ctx, rec)
		}
		return
	}
	e.saveRecord(ctx, rec)
}

func (e *Engine) saveRecord(ctx context.Context, rec *storage.StoredResponse) {
	if err := e.store.SaveResponse(ctx, rec); err != nil {
		slog.Error("failed to persist response",
			"response_id", rec.Response.ID,
			"error", err,
		)
	}
}

func (e *Engine) storeWorker() {
	defer e.storeWG.Done()
	for rec := range e.storeCh {
		// Detached from the request context: the caller may be gone by
		// the time the record is written.
		e.saveRecord(context.Background(), rec)
	}
}

// syncConversation appends this turn's items to the conversation, when
// one was named.
func (e *Engine) syncConversation(ctx context.Context, req *api.CreateResponseRequest, newItems []api.Item, resp *api.Response) {
	if e.convs == nil || req.Conversation == "" {
		return
	}
	items := make([]api.Item, 0, len(newItems)+len(resp.Output))
	items = append(items, newItems...)
	items = append(items, resp.Output...)
	if err := e.convs.AddItems(ctx, req.Conversation, items); err != nil {
		slog.Error("failed to sync conversation items",
			"conversation_id", req.Conversation,
			"response_id", resp.ID,
			"error", err,
		)
	}
}

// collectingWriter absorbs the event stream for non-streaming requests
// and captures the terminal response snapshot.
type collectingWriter struct {
	terminal *api.Response
}

func (c *collectingWriter) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	switch ev.Type {
	case api.EventResponseCompleted, api.EventResponseIncomplete, api.EventResponseFailed:
		if c.terminal != nil {
			return fmt.Errorf("multiple terminal events on one response")
		}
		c.terminal = ev.Response
	}
	return nil
}

func (c *collectingWriter) WriteResponse(context.Context, *api.Response) error {
	return errors.New("collectingWriter does not accept complete responses")
}

func (c *collectingWriter) Flush() error { return nil }
