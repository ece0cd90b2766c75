package codec

import (
	"bytes"
	"testing"
)

func TestEncodeOnOff(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"get", EncodeOnOffGet(), []byte{0x82, 0x01}},
		{"set", EncodeOnOffSet(1, 5, true), []byte{0x82, 0x02, 0x01, 0x05}},
		{"set unack", EncodeOnOffSet(0, 6, false), []byte{0x82, 0x03, 0x00, 0x06}},
		{"status", EncodeOnOffStatus(1), []byte{0x82, 0x04, 0x01}},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Errorf("%s = %x, want %x", tt.name, tt.got, tt.want)
		}
	}
}

func TestDecodeOnOff(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    OnOffMessage
		ok      bool
	}{
		{"get", []byte{0x82, 0x01}, OnOffMessage{Opcode: OpOnOffGet}, true},
		{"set", []byte{0x82, 0x02, 0x01, 0x05}, OnOffMessage{Opcode: OpOnOffSet, State: 1, TID: 5}, true},
		{"set unack", []byte{0x82, 0x03, 0x00, 0xfe}, OnOffMessage{Opcode: OpOnOffSetUnack, State: 0, TID: 0xfe}, true},
		{"status", []byte{0x82, 0x04, 0x01}, OnOffMessage{Opcode: OpOnOffStatus, State: 1}, true},
		{"empty", nil, OnOffMessage{}, false},
		{"one byte", []byte{0x82}, OnOffMessage{}, false},
		{"get with trailing byte", []byte{0x82, 0x01, 0x00}, OnOffMessage{}, false},
		{"status opcode with set length", []byte{0x82, 0x04, 0x01, 0x05}, OnOffMessage{}, false},
		{"set opcode with status length", []byte{0x82, 0x02, 0x01}, OnOffMessage{}, false},
		{"foreign opcode", []byte{0x82, 0x31}, OnOffMessage{}, false},
		{"too long", []byte{0x82, 0x02, 0x01, 0x05, 0x00}, OnOffMessage{}, false},
		{"invalid state", []byte{0x82, 0x02, 0x02, 0x05}, OnOffMessage{}, false},
		{"invalid status state", []byte{0x82, 0x04, 0xff}, OnOffMessage{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeOnOff(tt.payload)
			if ok != tt.ok {
				t.Fatalf("DecodeOnOff(%x) ok = %v, want %v", tt.payload, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("DecodeOnOff(%x) = %+v, want %+v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestOnOffAcknowledged(t *testing.T) {
	set, _ := DecodeOnOff(EncodeOnOffSet(1, 1, true))
	unack, _ := DecodeOnOff(EncodeOnOffSet(1, 1, false))
	if !set.Acknowledged() {
		t.Error("Set not acknowledged")
	}
	if unack.Acknowledged() {
		t.Error("Set Unacknowledged reported as acknowledged")
	}
}

func TestSplitOpcode(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		opcode  uint32
		params  []byte
		ok      bool
	}{
		{"one octet", []byte{0x52, 0x01}, 0x52, []byte{0x01}, true},
		{"two octets", []byte{0x82, 0x04, 0x01}, 0x8204, []byte{0x01}, true},
		{"three octets", []byte{0xc0, 0xf1, 0x05, 0xaa}, 0xc0f105, []byte{0xaa}, true},
		{"rfu", []byte{0x7f}, 0, nil, false},
		{"short two", []byte{0x82}, 0, nil, false},
		{"short three", []byte{0xc0, 0x01}, 0, nil, false},
		{"empty", nil, 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, params, ok := SplitOpcode(tt.payload)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if op != tt.opcode {
				t.Errorf("opcode = 0x%x, want 0x%x", op, tt.opcode)
			}
			if tt.ok && !bytes.Equal(params, tt.params) {
				t.Errorf("params = %x, want %x", params, tt.params)
			}
		})
	}
}

func TestAppendOpcode(t *testing.T) {
	tests := []struct {
		opcode uint32
		want   []byte
	}{
		{0x52, []byte{0x52}},
		{0x8201, []byte{0x82, 0x01}},
		{0xc0f105, []byte{0xc0, 0xf1, 0x05}},
	}
	for _, tt := range tests {
		if got := AppendOpcode(nil, tt.opcode); !bytes.Equal(got, tt.want) {
			t.Errorf("AppendOpcode(0x%x) = %x, want %x", tt.opcode, got, tt.want)
		}
	}
}
