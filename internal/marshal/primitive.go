package marshal

import (
	"encoding/binary"
	"math"

	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// primitiveMarshaller converts booleans and 1/2/4/8-byte signed/unsigned
// integers and IEEE floats, per spec §4.3 "Primitive".
type primitiveMarshaller struct {
	typ *registry.Type
}

func newPrimitiveMarshaller(t *registry.Type) bridge.Marshaller {
	return &primitiveMarshaller{typ: t}
}

func (m *primitiveMarshaller) isBool() bool { return m.typ == registry.BoolType }

func (m *primitiveMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	if m.isBool() {
		return v.Kind() == jsengine.Bool
	}
	return v.Kind() == jsengine.Number
}

func (m *primitiveMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	buf, ok := cc.Heap().ReadBytes(ptr, m.typ.Size)
	if !ok {
		return nil, bridge.NewTypeError(m.typ.Name, "invalid native storage for primitive read")
	}
	if m.isBool() {
		return jc.NewBool(buf[0] != 0), nil
	}
	return jc.NewNumber(decodeNumber(buf, m.typ.Flags.Unsigned, m.typ.Flags.FloatingPoint)), nil
}

func (m *primitiveMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	ptr := cc.Alloc(m.typ)
	if m.isBool() {
		b := byte(0)
		if v.Kind() == jsengine.Bool && v.Bool() {
			b = 1
		}
		cc.Heap().WriteBytes(ptr, []byte{b})
		return ptr, nil
	}
	var f float64
	if v.Kind() == jsengine.Number {
		f = v.Float64()
	} else if m.typ.Flags.Opaque && v.IsNullOrUndefined() {
		f = 0
	}
	buf := encodeNumber(f, m.typ.Size, m.typ.Flags.Unsigned, m.typ.Flags.FloatingPoint)
	cc.Heap().WriteBytes(ptr, buf)
	return ptr, nil
}

// DecodeNumber and EncodeNumber are exported for the prototype builder's
// fast-path instance/static field accessors (spec §4.6, §9's "small
// fast-path accessor specialization"): reading/writing an integer or float
// of width 1/2/4/8 directly, without going through a Marshaller lookup.
func DecodeNumber(buf []byte, unsigned, float bool) float64 { return decodeNumber(buf, unsigned, float) }

func EncodeNumber(f float64, width uintptr, unsigned, float bool) []byte {
	return encodeNumber(f, width, unsigned, float)
}

func decodeNumber(buf []byte, unsigned, float bool) float64 {
	switch len(buf) {
	case 1:
		if unsigned {
			return float64(buf[0])
		}
		return float64(int8(buf[0]))
	case 2:
		u := binary.LittleEndian.Uint16(buf)
		if unsigned {
			return float64(u)
		}
		return float64(int16(u))
	case 4:
		if float {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
		}
		u := binary.LittleEndian.Uint32(buf)
		if unsigned {
			return float64(u)
		}
		return float64(int32(u))
	case 8:
		if float {
			return math.Float64frombits(binary.LittleEndian.Uint64(buf))
		}
		u := binary.LittleEndian.Uint64(buf)
		if unsigned {
			return float64(u)
		}
		return float64(int64(u))
	default:
		return 0
	}
}

// encodeNumber truncates f to width bytes with the wrap behavior of a
// native integer cast (property 1, spec §8): values outside the target
// range wrap modulo 2^(8*width) rather than saturating.
func encodeNumber(f float64, width uintptr, unsigned, float bool) []byte {
	buf := make([]byte, width)
	switch width {
	case 1:
		if float {
			buf[0] = byte(f)
			return buf
		}
		buf[0] = byte(int64(f))
	case 2:
		if float {
			binary.LittleEndian.PutUint16(buf, uint16(f))
			return buf
		}
		binary.LittleEndian.PutUint16(buf, uint16(int64(f)))
	case 4:
		if float {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
			return buf
		}
		binary.LittleEndian.PutUint32(buf, uint32(int64(f)))
	case 8:
		if float {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
			return buf
		}
		if unsigned {
			binary.LittleEndian.PutUint64(buf, uint64(f))
		} else {
			binary.LittleEndian.PutUint64(buf, uint64(int64(f)))
		}
	}
	return buf
}
