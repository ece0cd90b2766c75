package model

import (
	"context"
	"errors"
	"testing"
)

func TestElementAddModel(t *testing.T) {
	el := NewElement(0, 0x0100, nil)

	if err := el.AddModel(newTestModel(0x1000)); err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	if err := el.AddModel(newTestModel(0x1000)); !errors.Is(err, ErrDuplicateModel) {
		t.Errorf("duplicate AddModel error = %v, want ErrDuplicateModel", err)
	}

	// Same id under a vendor is a different model.
	if err := el.AddModel(newTestModel(0x1000, WithVendor(0x05f1))); err != nil {
		t.Errorf("vendor model with SIG id rejected: %v", err)
	}
	if n := len(el.Models()); n != 2 {
		t.Errorf("Models() has %d entries, want 2", n)
	}
}

func TestElementDispatchOrder(t *testing.T) {
	el := NewElement(0, 0x0100, nil)
	var order []uint16
	for _, id := range []uint16{0x1000, 0x1100, 0x1102} {
		m := &orderModel{Base: NewBase(id), order: &order}
		if err := el.AddModel(m); err != nil {
			t.Fatalf("AddModel: %v", err)
		}
	}

	el.ProcessInbound(context.Background(), Message{Source: 0x0101, Payload: []byte{0x82, 0x01}})

	want := []uint16{0x1000, 0x1100, 0x1102}
	if len(order) != len(want) {
		t.Fatalf("dispatched to %d models, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("dispatch[%d] = 0x%04x, want 0x%04x", i, order[i], want[i])
		}
	}
}

type orderModel struct {
	*Base
	order *[]uint16
}

func (m *orderModel) ProcessMessage(context.Context, Message) {
	*m.order = append(*m.order, m.ID())
}

func TestElementApplyConfig(t *testing.T) {
	el := NewElement(2, 0, nil)
	m := newTestModel(0x1001)
	_ = el.AddModel(m)

	if err := el.ApplyConfig(0x1001, ConfigUpdate{Bindings: []uint16{0}}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if !m.Config().Bound(0) {
		t.Error("binding not applied")
	}

	err := el.ApplyConfig(0x1234, ConfigUpdate{Bindings: []uint16{0}})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("ApplyConfig unknown model error = %v", err)
	}
}

func TestElementApplyConfigFirstMatch(t *testing.T) {
	el := NewElement(0, 0, nil)
	sig := newTestModel(0x0001)
	vendor := newTestModel(0x0001, WithVendor(0x05f1))
	_ = el.AddModel(sig)
	_ = el.AddModel(vendor)

	_ = el.ApplyConfig(0x0001, ConfigUpdate{Bindings: []uint16{7}})
	if !sig.Config().Bound(7) || vendor.Config().Bound(7) {
		t.Error("ApplyConfig should hit only the first model with the id")
	}

	if err := el.ApplyVendorConfig(0x05f1, 0x0001, ConfigUpdate{Bindings: []uint16{8}}); err != nil {
		t.Fatalf("ApplyVendorConfig: %v", err)
	}
	if !vendor.Config().Bound(8) {
		t.Error("vendor config not applied")
	}
}

func TestElementInfoSplitsVendorModels(t *testing.T) {
	el := NewElement(0, 0x0100, nil)
	_ = el.AddModel(newTestModel(0x1000))
	_ = el.AddModel(newTestModel(0x1100))
	_ = el.AddModel(newTestModel(0x0001, WithVendor(0x05f1)))

	info := el.Info()
	if info.Index != 0 || info.Location != 0x0100 {
		t.Errorf("info header = %+v", info)
	}
	if len(info.Models) != 2 || len(info.VendorModels) != 1 {
		t.Fatalf("models = %d sig, %d vendor", len(info.Models), len(info.VendorModels))
	}
	if info.VendorModels[0].Vendor != 0x05f1 {
		t.Errorf("vendor = 0x%04x", info.VendorModels[0].Vendor)
	}
}

func TestElementPath(t *testing.T) {
	el := NewElement(0x0a, 0, nil)
	if el.Path() != "" {
		t.Errorf("detached Path() = %q", el.Path())
	}
	app := NewApplication("/node")
	_ = app.AddElement(el)
	if el.Path() != "/node/ele0a" {
		t.Errorf("Path() = %q, want /node/ele0a", el.Path())
	}
}
