package marshal

import (
	"github.com/cryguy/tsbridge/internal/bridge"
	"github.com/cryguy/tsbridge/internal/jsengine"
	"github.com/cryguy/tsbridge/internal/registry"
)

// structMarshaller is the trivial (POD) struct marshaller of spec §4.3:
// properties recognized by positive offset, converted field by field.
type structMarshaller struct {
	typ    *registry.Type
	fields []*registry.Property
}

func newStructMarshaller(t *registry.Type) bridge.Marshaller {
	var fields []*registry.Property
	for _, p := range t.Properties {
		if p.Kind == registry.PropField && p.Offset >= 0 {
			fields = append(fields, p)
		}
	}
	return &structMarshaller{typ: t, fields: fields}
}

func (m *structMarshaller) CanAccept(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) bool {
	if v.Kind() != jsengine.Object {
		return false
	}
	obj, ok := v.(jsengine.Obj)
	if !ok {
		return false
	}
	for _, f := range m.fields {
		fv, err := obj.Get(f.Name)
		if err != nil {
			return false
		}
		if fv.IsNullOrUndefined() {
			continue
		}
		fieldTD := bridge.TypeDataOf(f.Type)
		if fieldTD == nil || fieldTD.Marshaller == nil {
			return false
		}
		if !fieldTD.Marshaller.CanAccept(cc, jc, fv) {
			return false
		}
	}
	return true
}

func (m *structMarshaller) ToScript(cc *bridge.CallContext, jc jsengine.Ctx, ptr uintptr, needsCopy, isHostReturn bool) (jsengine.Value, error) {
	obj, err := jc.NewObject()
	if err != nil {
		return nil, bridge.NewTypeError(m.typ.Name, "allocating script object: %v", err)
	}
	for _, f := range m.fields {
		fieldTD := bridge.TypeDataOf(f.Type)
		fv, err := fieldTD.Marshaller.ToScript(cc, jc, ptr+uintptr(f.Offset), false, isHostReturn)
		if err != nil {
			return nil, err
		}
		if err := obj.Set(f.Name, fv); err != nil {
			return nil, bridge.NewTypeError(m.typ.Name, "setting field %q: %v", f.Name, err)
		}
	}
	return obj, nil
}

func (m *structMarshaller) FromScript(cc *bridge.CallContext, jc jsengine.Ctx, v jsengine.Value) (uintptr, error) {
	obj, ok := v.(jsengine.Obj)
	if !ok {
		return 0, bridge.NewTypeError(m.typ.Name, "expected an object")
	}
	base := cc.Alloc(m.typ)
	for _, f := range m.fields {
		fv, err := obj.Get(f.Name)
		if err != nil {
			return 0, bridge.NewTypeError(m.typ.Name, "reading field %q: %v", f.Name, err)
		}
		if fv.IsNullOrUndefined() {
			cc.Heap().Zero(base+uintptr(f.Offset), f.Type.Size)
			continue
		}
		fieldTD := bridge.TypeDataOf(f.Type)
		if fieldTD == nil || fieldTD.Marshaller == nil {
			return 0, bridge.NewTypeError(m.typ.Name, "field %q has no marshaller installed", f.Name)
		}
		cc.SetNextAllocation(base + uintptr(f.Offset))
		if _, err := fieldTD.Marshaller.FromScript(cc, jc, fv); err != nil {
			return 0, err
		}
	}
	return base, nil
}
