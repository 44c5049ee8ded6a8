package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// MetadataSuffix marks the JSON envelope that announces a binary transfer.
const MetadataSuffix = "_Metadata"

const (
	defaultPendingTTL = 30 * time.Second
	maxOrphanFrames   = 64
)

// FieldSpec names one typed array of a transfer and its element count.
type FieldSpec struct {
	Name   string      `json:"name"`
	Kind   ElementKind `json:"kind"`
	Length int         `json:"length"`
}

// Metadata is the payload of a {EventType}_Metadata envelope. Info carries
// dimensions and other event-specific values.
type Metadata struct {
	Fields []FieldSpec     `json:"fields"`
	Info   json.RawMessage `json:"info,omitempty"`
}

// Transfer is a completed binary transfer.
type Transfer struct {
	EventType string
	Info      json.RawMessage
	Fields    map[string]TypedArray
}

// Base64Field is the JSON fallback for one typed array.
type Base64Field struct {
	Kind ElementKind `json:"kind"`
	Data string      `json:"data"`
}

// MetadataEventType strips the metadata suffix from msgType.
func MetadataEventType(msgType string) (string, bool) {
	if !strings.HasSuffix(msgType, MetadataSuffix) {
		return "", false
	}
	eventType := strings.TrimSuffix(msgType, MetadataSuffix)
	return eventType, eventType != ""
}

func FieldName(eventType, field string) string { return eventType + "_" + field }

type pendingTransfer struct {
	meta      Metadata
	specs     map[string]FieldSpec
	fields    map[string]TypedArray
	startedAt time.Time
}

type orphan struct {
	frame      BinaryFrame
	receivedAt time.Time
}

// Receiver reassembles metadata envelopes and typed-array frames into
// transfers. Frames may arrive before their metadata; they are held for a
// while and matched by name. Not safe for concurrent use.
type Receiver struct {
	now func() time.Time
	ttl time.Duration

	handlers map[string]func(Transfer)
	fallback func(Transfer)
	pending  map[string]*pendingTransfer
	orphans  []orphan
}

func NewReceiver() *Receiver {
	return NewReceiverWithNow(time.Now)
}

func NewReceiverWithNow(now func() time.Time) *Receiver {
	return &Receiver{
		now:      now,
		ttl:      defaultPendingTTL,
		handlers: make(map[string]func(Transfer)),
		pending:  make(map[string]*pendingTransfer),
	}
}

// Handle registers fn for completed transfers of eventType.
func (r *Receiver) Handle(eventType string, fn func(Transfer)) {
	r.handlers[eventType] = fn
}

// HandleAll registers fn for completed transfers of any event type without
// its own handler.
func (r *Receiver) HandleAll(fn func(Transfer)) {
	r.fallback = fn
}

func (r *Receiver) handles(eventType string) bool {
	_, ok := r.handlers[eventType]
	return ok || r.fallback != nil
}

// Accepts reports whether msgType belongs to a handled event type, either
// as its metadata or as a base64 field of a registered or announced
// transfer.
func (r *Receiver) Accepts(msgType string) bool {
	if eventType, ok := MetadataEventType(msgType); ok {
		return r.handles(eventType)
	}
	_, ok := r.eventFor(msgType)
	return ok
}

// eventFor picks the longest registered or pending event type that
// prefixes name.
func (r *Receiver) eventFor(name string) (string, bool) {
	best := ""
	consider := func(eventType string) {
		if strings.HasPrefix(name, eventType+"_") && len(eventType) > len(best) {
			best = eventType
		}
	}
	for eventType := range r.handlers {
		consider(eventType)
	}
	for eventType := range r.pending {
		consider(eventType)
	}
	return best, best != ""
}

// OnMetadata starts a transfer. A transfer already in progress for the
// same event type is discarded.
func (r *Receiver) OnMetadata(eventType string, raw []byte) error {
	r.expire()
	if !r.handles(eventType) {
		return fmt.Errorf("bridge: no handler for %s", eventType)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("bridge: %s metadata: %w", eventType, err)
	}
	specs := make(map[string]FieldSpec, len(meta.Fields))
	for _, f := range meta.Fields {
		if f.Name == "" || f.Kind.Size() == 0 || f.Length < 0 {
			return fmt.Errorf("bridge: %s metadata has invalid field %+v", eventType, f)
		}
		specs[f.Name] = f
	}
	if _, ok := r.pending[eventType]; ok {
		slog.Warn("discarding incomplete transfer", "event_type", eventType)
	}
	p := &pendingTransfer{
		meta:      meta,
		specs:     specs,
		fields:    make(map[string]TypedArray, len(specs)),
		startedAt: r.now(),
	}
	r.pending[eventType] = p

	kept := r.orphans[:0]
	for _, o := range r.orphans {
		if strings.HasPrefix(o.frame.Name, eventType+"_") {
			if err := r.accept(eventType, p, o.frame); err != nil {
				slog.Warn("dropping buffered frame", "name", o.frame.Name, "err", err)
			}
			continue
		}
		kept = append(kept, o)
	}
	r.orphans = kept
	r.complete(eventType, p)
	return nil
}

// OnFrame routes a decoded binary frame to its transfer.
func (r *Receiver) OnFrame(f BinaryFrame) error {
	r.expire()
	eventType, ok := r.eventFor(f.Name)
	if !ok && r.fallback == nil {
		return fmt.Errorf("bridge: no handler for frame %s", f.Name)
	}
	p, ok := r.pending[eventType]
	if !ok {
		if len(r.orphans) >= maxOrphanFrames {
			r.orphans = r.orphans[1:]
		}
		r.orphans = append(r.orphans, orphan{frame: f, receivedAt: r.now()})
		return nil
	}
	if err := r.accept(eventType, p, f); err != nil {
		return err
	}
	r.complete(eventType, p)
	return nil
}

// OnBinary decodes a raw binary websocket frame and routes it.
func (r *Receiver) OnBinary(data []byte) error {
	f, err := DecodeFrame(data)
	if err != nil {
		return err
	}
	return r.OnFrame(f)
}

// OnBase64 is the JSON fallback path for msgType {EventType}_{Field}.
func (r *Receiver) OnBase64(msgType string, raw []byte) error {
	var body Base64Field
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("bridge: %s: %w", msgType, err)
	}
	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil {
		return fmt.Errorf("bridge: %s base64: %w", msgType, err)
	}
	arr := TypedArray{Kind: body.Kind, Data: data}
	if err := arr.validate(); err != nil {
		return fmt.Errorf("bridge: %s: %w", msgType, err)
	}
	return r.OnFrame(BinaryFrame{Name: msgType, Array: arr})
}

func (r *Receiver) accept(eventType string, p *pendingTransfer, f BinaryFrame) error {
	field := strings.TrimPrefix(f.Name, eventType+"_")
	spec, ok := p.specs[field]
	if !ok {
		return fmt.Errorf("bridge: %s has no field %q", eventType, field)
	}
	if f.Array.Kind != spec.Kind {
		return fmt.Errorf("bridge: %s expected %s, got %s", f.Name, spec.Kind, f.Array.Kind)
	}
	if f.Array.Len() != spec.Length || len(f.Array.Data) != spec.Length*spec.Kind.Size() {
		return fmt.Errorf("%w: %s expected %d elements, got %d bytes", ErrSizeMismatch, f.Name, spec.Length, len(f.Array.Data))
	}
	p.fields[field] = f.Array
	return nil
}

func (r *Receiver) complete(eventType string, p *pendingTransfer) {
	if len(p.fields) < len(p.specs) {
		return
	}
	delete(r.pending, eventType)
	fn, ok := r.handlers[eventType]
	if !ok {
		fn = r.fallback
	}
	if fn == nil {
		return
	}
	fn(Transfer{EventType: eventType, Info: p.meta.Info, Fields: p.fields})
}

func (r *Receiver) expire() {
	now := r.now()
	for eventType, p := range r.pending {
		if now.Sub(p.startedAt) > r.ttl {
			slog.Warn("transfer timed out", "event_type", eventType, "received", len(p.fields), "expected", len(p.specs))
			delete(r.pending, eventType)
		}
	}
	kept := r.orphans[:0]
	for _, o := range r.orphans {
		if now.Sub(o.receivedAt) <= r.ttl {
			kept = append(kept, o)
		}
	}
	r.orphans = kept
}

// FrameSender is the transport surface a transfer is sent over.
type FrameSender interface {
	Send(msgType string, payload any) bool
	SendBinary(frame []byte) bool
}

// Field is one named array of an outgoing transfer.
type Field struct {
	Name  string
	Array TypedArray
}

var ErrNotSent = errors.New("bridge: transfer not sent")

// SendTransfer emits the metadata envelope followed by one binary frame per
// field.
func SendTransfer(s FrameSender, eventType string, info any, fields ...Field) error {
	meta := Metadata{Fields: make([]FieldSpec, 0, len(fields))}
	frames := make([][]byte, 0, len(fields))
	for _, f := range fields {
		frame, err := EncodeFrame(FieldName(eventType, f.Name), f.Array)
		if err != nil {
			return err
		}
		frames = append(frames, frame)
		meta.Fields = append(meta.Fields, FieldSpec{Name: f.Name, Kind: f.Array.Kind, Length: f.Array.Len()})
	}
	if info != nil {
		raw, err := json.Marshal(info)
		if err != nil {
			return err
		}
		meta.Info = raw
	}
	if !s.Send(eventType+MetadataSuffix, meta) {
		return ErrNotSent
	}
	for _, frame := range frames {
		if !s.SendBinary(frame) {
			return ErrNotSent
		}
	}
	return nil
}

// SendTransferBase64 is SendTransfer over the JSON channel only.
func SendTransferBase64(s FrameSender, eventType string, info any, fields ...Field) error {
	meta := Metadata{Fields: make([]FieldSpec, 0, len(fields))}
	for _, f := range fields {
		if err := f.Array.validate(); err != nil {
			return err
		}
		meta.Fields = append(meta.Fields, FieldSpec{Name: f.Name, Kind: f.Array.Kind, Length: f.Array.Len()})
	}
	if info != nil {
		raw, err := json.Marshal(info)
		if err != nil {
			return err
		}
		meta.Info = raw
	}
	if !s.Send(eventType+MetadataSuffix, meta) {
		return ErrNotSent
	}
	for _, f := range fields {
		body := Base64Field{Kind: f.Array.Kind, Data: base64.StdEncoding.EncodeToString(f.Array.Data)}
		if !s.Send(FieldName(eventType, f.Name), body) {
			return ErrNotSent
		}
	}
	return nil
}
