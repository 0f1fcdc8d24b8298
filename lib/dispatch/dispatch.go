// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/wire"
)

// HandlerFunc processes one request through ctx. It must not send its
// own terminal status -- the [Dispatcher] does that after the handler
// returns, using whatever [ActionContext.Status] reports at that
// point.
type HandlerFunc[C any] func(ctx *ActionContext[C])

// Registry maps action names to the handler that serves them.
type Registry[C any] struct {
	handlers map[string]HandlerFunc[C]
}

// NewRegistry returns an empty Registry.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{handlers: make(map[string]HandlerFunc[C])}
}

// Register binds name to handler, replacing any existing binding.
func (r *Registry[C]) Register(name string, handler HandlerFunc[C]) {
	r.handlers[name] = handler
}

func (r *Registry[C]) lookup(name string) (HandlerFunc[C], bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Dispatcher is the single worker that drains an inbox and turns each
// request into exactly one terminal status on the outbox, invoking
// the registered handler for the request's action name along the
// way.
type Dispatcher[C any] struct {
	registry *Registry[C]
	inbox    *queue.Queue
	outbox   *queue.Queue
	config   C
}

// Batch bounds for a single Dequeue call: 100 messages or 100000
// bytes of cumulative size, whichever comes first.
const (
	batchMaxCount = 100
	batchMaxBytes = 100_000
)

// New returns a Dispatcher that serves requests from inbox, using
// registry to find handlers and config as the value every
// [ActionContext.Config] call returns, writing replies and statuses
// to outbox.
func New[C any](registry *Registry[C], inbox, outbox *queue.Queue, config C) *Dispatcher[C] {
	return &Dispatcher[C]{registry: registry, inbox: inbox, outbox: outbox, config: config}
}

// Run dequeues batches from the inbox and dispatches each message
// until the inbox is shut down, at which point Run returns nil. Run
// is meant to be the body of the dispatcher's single worker
// goroutine; a second concurrent call races on delivery order and is
// not supported.
func (d *Dispatcher[C]) Run() error {
	for {
		batch, err := d.inbox.Dequeue(batchMaxCount, batchMaxBytes, true)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				return nil
			}
			return fmt.Errorf("dispatch: dequeuing inbox: %w", err)
		}
		for _, request := range batch {
			d.dispatchOne(request)
		}
	}
}

func (d *Dispatcher[C]) dispatchOne(request wire.Message) {
	if request.Kind != wire.TypeMessage {
		slog.Warn("dispatcher dropping non-request message", "session_id", request.SessionID, "kind", request.Kind)
		return
	}

	ctx := newActionContext(request, d.config, d.outbox)
	handler, ok := d.registry.lookup(request.Name)
	if !ok {
		ctx.SetError(fmt.Sprintf("Unrecognized action: %s", request.Name))
	} else {
		d.invoke(handler, ctx)
	}

	d.sendStatus(ctx)
}

func (d *Dispatcher[C]) invoke(handler HandlerFunc[C], ctx *ActionContext[C]) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("action handler panicked", "action", ctx.request.Name, "panic", r)
			ctx.SetError(fmt.Sprintf("Exception in ProcessRequest: %v", r))
		}
	}()
	handler(ctx)
}

func (d *Dispatcher[C]) sendStatus(ctx *ActionContext[C]) {
	status := ctx.Status()
	data, err := codec.Marshal(status)
	if err != nil {
		slog.Error("dispatcher failed to encode terminal status", "action", ctx.request.Name, "error", err)
		return
	}
	message := wire.Message{
		SessionID:  ctx.request.SessionID,
		RequestID:  ctx.request.RequestID,
		ResponseID: ctx.reserveResponseID(),
		TaskID:     ctx.request.TaskID,
		ArgsType:   "Status",
		Args:       data,
		Kind:       wire.TypeStatus,
		Priority:   ctx.request.Priority,
	}
	if err := d.outbox.Enqueue(message); err != nil {
		slog.Warn("dispatcher could not enqueue terminal status", "action", ctx.request.Name, "error", err)
	}
}
