package platform

import (
	"testing"

	"github.com/fakeyudi/howl/internal/capture"
	"github.com/fakeyudi/howl/internal/session"
)

func TestVirtualKeyNames(t *testing.T) {
	tests := []struct {
		keycode uint16
		name    string
	}{
		{0x001E, "A"},
		{0x0010, "Q"},
		{0x0032, "M"},
		{0x0002, "1"},
		{0x000B, "0"},
		{0x001C, "Enter"},
		{0x0039, "Space"},
		{0x003B, "F1"},
		{0x0044, "F10"},
		{0x0058, "F12"},
		{0xE048, "Up"},
		{0x0E53, "Delete"},
	}
	for _, tt := range tests {
		vk, ok := virtualKey(tt.keycode)
		if !ok {
			t.Errorf("keycode %#x not mapped", tt.keycode)
			continue
		}
		if got := capture.KeyName(vk); got != tt.name {
			t.Errorf("keycode %#x: KeyName = %q, want %q", tt.keycode, got, tt.name)
		}
	}

	if _, ok := virtualKey(0x7777); ok {
		t.Error("unknown keycode reported as mapped")
	}
}

func TestModifierKeysAreModifiers(t *testing.T) {
	for _, kc := range []uint16{0x002A, 0x0036, 0x001D, 0x0E1D, 0x0038, 0x0E38} {
		vk, ok := virtualKey(kc)
		if !ok || !capture.IsModifier(vk) {
			t.Errorf("keycode %#x -> vk %#x (ok=%v) is not a modifier", kc, vk, ok)
		}
	}
}

func TestModifiersFromMask(t *testing.T) {
	tests := []struct {
		mask             uint16
		shift, ctrl, alt bool
	}{
		{0, false, false, false},
		{maskShiftL, true, false, false},
		{maskCtrlR, false, true, false},
		{maskAltL | maskCtrlL, false, true, true},
		{maskMetaL | maskMetaR, false, false, false},
	}
	for _, tt := range tests {
		s, c, a := modifiers(tt.mask)
		if s != tt.shift || c != tt.ctrl || a != tt.alt {
			t.Errorf("modifiers(%#x) = %v,%v,%v", tt.mask, s, c, a)
		}
	}
}

func TestButton(t *testing.T) {
	if b, ok := button(1); !ok || b != session.ButtonLeft {
		t.Errorf("button(1) = %q, %v", b, ok)
	}
	if b, ok := button(2); !ok || b != session.ButtonRight {
		t.Errorf("button(2) = %q, %v", b, ok)
	}
	if _, ok := button(3); ok {
		t.Error("middle button should not be recorded")
	}
}
