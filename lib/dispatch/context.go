// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/fieldglass/fieldglass/lib/codec"
	"github.com/fieldglass/fieldglass/lib/queue"
	"github.com/fieldglass/fieldglass/lib/wire"
)

// ActionContext is the only handle a [HandlerFunc] has on the dispatch
// pipeline for the one request it was invoked with. C is the
// configuration type handlers see through [ActionContext.Config] --
// typically *clientconfig.Config, substituted by the caller of
// [New].
type ActionContext[C any] struct {
	request wire.Message
	config  C
	outbox  *queue.Queue

	mu             sync.Mutex
	nextResponseID uint64
	status         wire.Status
}

func newActionContext[C any](request wire.Message, config C, outbox *queue.Queue) *ActionContext[C] {
	return &ActionContext[C]{
		request:        request,
		config:         config,
		outbox:         outbox,
		nextResponseID: 1,
		status:         wire.Status{Code: wire.StatusOK},
	}
}

// Message returns the request this context was created to handle.
func (c *ActionContext[C]) Message() wire.Message {
	return c.request
}

// Config returns the configuration handle supplied to the
// [Dispatcher] at construction.
func (c *ActionContext[C]) Config() C {
	return c.config
}

// Status returns the status the handler has recorded so far. Absent
// a call to [ActionContext.SetError], it reports OK.
func (c *ActionContext[C]) Status() wire.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PopulateArgs decodes the request's Args into dest, which must be a
// pointer. It requires the request's ArgsType to equal wantType: an
// empty ArgsType means no args were provided at all, and a non-empty
// but different ArgsType means the caller sent the wrong shape.
// Either case fails before decoding is attempted, rather than risk
// silently decoding the wrong shape.
func (c *ActionContext[C]) PopulateArgs(wantType string, dest any) error {
	if c.request.ArgsType == "" {
		return fmt.Errorf("Expected args of type: %s, but no args provided.", wantType)
	}
	if c.request.ArgsType != wantType {
		return fmt.Errorf("Expected args of type: %s, but received args of type: %s", wantType, c.request.ArgsType)
	}
	if err := codec.Unmarshal(c.request.Args, dest); err != nil {
		return fmt.Errorf("Unable to parse args.")
	}
	return nil
}

// SendMessage enqueues an intermediate reply of the given name and
// payload onto the outbox, tagged with the next response id in
// sequence for this request. Handlers that stream multiple results
// call this once per item; the dispatcher appends the terminal
// status afterward.
func (c *ActionContext[C]) SendMessage(name string, payload any) error {
	data, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatch: encoding payload for %q: %w", name, err)
	}
	message := wire.Message{
		SessionID:  c.request.SessionID,
		RequestID:  c.request.RequestID,
		ResponseID: c.reserveResponseID(),
		TaskID:     c.request.TaskID,
		Name:       name,
		ArgsType:   argsTypeName(payload),
		Args:       data,
		Kind:       wire.TypeMessage,
		Priority:   c.request.Priority,
	}
	return c.outbox.Enqueue(message)
}

// SendResponse is [ActionContext.SendMessage] under the request's own
// action name, the common case of a single reply value.
func (c *ActionContext[C]) SendResponse(payload any) error {
	return c.SendMessage(c.request.Name, payload)
}

// SetError records that the handler failed. The dispatcher reports
// this as the request's terminal status instead of OK. Calling
// SetError does not stop the handler; it should return immediately
// after.
func (c *ActionContext[C]) SetError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = wire.GenericError(message)
}

func (c *ActionContext[C]) reserveResponseID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextResponseID
	c.nextResponseID++
	return id
}

func argsTypeName(payload any) string {
	t := reflect.TypeOf(payload)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
