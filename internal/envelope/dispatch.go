package envelope

import (
	"fmt"
	"log/slog"
	"sync"
)

type HandlerFunc func(Envelope) error

// ErrorHook is told about every envelope that could not be handled. env is
// the zero Envelope when the raw frame did not decode.
type ErrorHook func(env Envelope, err error)

// Dispatcher routes envelopes to handlers by exact type match.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback []route
	onError  ErrorHook
}

type route struct {
	match func(msgType string) bool
	h     HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Handle(msgType string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.handlers, msgType)
		return
	}
	d.handlers[msgType] = h
}

// HandleFunc registers a handler that decodes the payload into T first.
func HandleFunc[T any](d *Dispatcher, msgType string, h func(Envelope, T) error) {
	d.Handle(msgType, func(env Envelope) error {
		var body T
		if err := env.Bind(&body); err != nil {
			return fmt.Errorf("decode %s payload: %w", msgType, err)
		}
		return h(env, body)
	})
}

// HandleMatch registers h for every type match accepts that has no exact
// handler. Matchers are tried in registration order.
func (d *Dispatcher) HandleMatch(match func(msgType string) bool, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = append(d.fallback, route{match: match, h: h})
}

func (d *Dispatcher) OnError(hook ErrorHook) {
	d.mu.Lock()
	d.onError = hook
	d.mu.Unlock()
}

func (d *Dispatcher) lookup(msgType string) HandlerFunc {
	if h := d.handlers[msgType]; h != nil {
		return h
	}
	for _, r := range d.fallback {
		if r.match(msgType) {
			return r.h
		}
	}
	return nil
}

// Dispatch runs the handler registered for env.Type. Unknown types are
// logged and dropped; handler failures go to the error hook. A failing
// envelope never affects the next one.
func (d *Dispatcher) Dispatch(env Envelope) error {
	d.mu.RLock()
	h := d.lookup(env.Type)
	hook := d.onError
	d.mu.RUnlock()

	if h == nil {
		slog.Warn("dropping envelope with unknown type", "type", env.Type, "id", env.ID)
		return ErrUnknownType
	}

	err := d.safeCall(h, env)
	if err != nil {
		slog.Error("envelope handler failed", "type", env.Type, "id", env.ID, "err", err)
		if hook != nil {
			hook(env, err)
		}
	}
	return err
}

// DispatchRaw decodes data and dispatches it.
func (d *Dispatcher) DispatchRaw(data []byte) error {
	env, err := Decode(data)
	if err != nil {
		slog.Error("dropping undecodable envelope", "err", err, "size", len(data))
		d.mu.RLock()
		hook := d.onError
		d.mu.RUnlock()
		if hook != nil {
			hook(Envelope{}, err)
		}
		return err
	}
	return d.Dispatch(env)
}

func (d *Dispatcher) safeCall(h HandlerFunc, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(env)
}
