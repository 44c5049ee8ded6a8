package bridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrSizeMismatch = errors.New("bridge: buffer size mismatch")
	ErrShortFrame   = errors.New("bridge: short frame")
	ErrUnknownKind  = errors.New("bridge: unknown element kind")
)

type ElementKind uint8

const (
	KindUint8 ElementKind = iota + 1
	KindInt32
	KindFloat32
)

func (k ElementKind) Size() int {
	switch k {
	case KindUint8:
		return 1
	case KindInt32, KindFloat32:
		return 4
	default:
		return 0
	}
}

func (k ElementKind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k ElementKind) MarshalText() ([]byte, error) {
	if k.Size() == 0 {
		return nil, ErrUnknownKind
	}
	return []byte(k.String()), nil
}

func (k *ElementKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "uint8", "byte":
		*k = KindUint8
	case "int32":
		*k = KindInt32
	case "float32":
		*k = KindFloat32
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(b))
	}
	return nil
}

// TypedArray is a homogeneous numeric buffer in little-endian layout.
type TypedArray struct {
	Kind ElementKind
	Data []byte
}

func (a TypedArray) Len() int {
	if a.Kind.Size() == 0 {
		return 0
	}
	return len(a.Data) / a.Kind.Size()
}

func (a TypedArray) validate() error {
	size := a.Kind.Size()
	if size == 0 {
		return ErrUnknownKind
	}
	if len(a.Data)%size != 0 {
		return fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrSizeMismatch, len(a.Data), size)
	}
	return nil
}

func (a TypedArray) Float32s() ([]float32, error) {
	if a.Kind != KindFloat32 {
		return nil, fmt.Errorf("bridge: %s array read as float32", a.Kind)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

func (a TypedArray) Int32s() ([]int32, error) {
	if a.Kind != KindInt32 {
		return nil, fmt.Errorf("bridge: %s array read as int32", a.Kind)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	out := make([]int32, len(a.Data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

func (a TypedArray) Bytes() []byte { return bytes.Clone(a.Data) }

func Float32Array(values []float32) TypedArray {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return TypedArray{Kind: KindFloat32, Data: data}
}

func Int32Array(values []int32) TypedArray {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
	}
	return TypedArray{Kind: KindInt32, Data: data}
}

func Uint8Array(values []byte) TypedArray {
	return TypedArray{Kind: KindUint8, Data: bytes.Clone(values)}
}

// BinaryFrame is one named typed array on the binary channel. Name follows
// the {EventType}_{FieldName} convention.
type BinaryFrame struct {
	Name  string
	Array TypedArray
}

// EncodeFrame lays out u16 name length, name, u8 kind, payload.
func EncodeFrame(name string, arr TypedArray) ([]byte, error) {
	if name == "" || len(name) > math.MaxUint16 {
		return nil, fmt.Errorf("bridge: invalid frame name length %d", len(name))
	}
	if err := arr.validate(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 3+len(name)+len(arr.Data))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(name)))
	out = append(out, name...)
	out = append(out, byte(arr.Kind))
	out = append(out, arr.Data...)
	return out, nil
}

// DecodeFrame parses b and copies the payload out of it, so b may be reused
// or freed once DecodeFrame returns.
func DecodeFrame(b []byte) (BinaryFrame, error) {
	if len(b) < 2 {
		return BinaryFrame{}, ErrShortFrame
	}
	n := int(binary.LittleEndian.Uint16(b))
	if len(b) < 2+n+1 || n == 0 {
		return BinaryFrame{}, ErrShortFrame
	}
	name := string(b[2 : 2+n])
	arr := TypedArray{Kind: ElementKind(b[2+n]), Data: bytes.Clone(b[3+n:])}
	if arr.Data == nil {
		arr.Data = []byte{}
	}
	if err := arr.validate(); err != nil {
		return BinaryFrame{}, fmt.Errorf("frame %s: %w", name, err)
	}
	return BinaryFrame{Name: name, Array: arr}, nil
}
