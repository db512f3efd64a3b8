package capture

import (
	"fmt"

	"github.com/fakeyudi/howl/internal/session"
)

// Windows virtual-key codes used by the tables below.
const (
	vkBack     = 0x08
	vkTab      = 0x09
	vkReturn   = 0x0D
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkEscape   = 0x1B
	vkSpace    = 0x20
	vkPrior    = 0x21
	vkNext     = 0x22
	vkEnd      = 0x23
	vkHome     = 0x24
	vkLeft     = 0x25
	vkUp       = 0x26
	vkRight    = 0x27
	vkDown     = 0x28
	vkInsert   = 0x2D
	vkDelete   = 0x2E
	vk0        = 0x30
	vk9        = 0x39
	vkA        = 0x41
	vkZ        = 0x5A
	vkNumpad0  = 0x60
	vkNumpad9  = 0x69
	vkF1       = 0x70
	vkF12      = 0x7B
	vkLShift   = 0xA0
	vkRMenu    = 0xA5
	keyTableSz = 256
)

// shiftedDigits maps digit keys 0-9 to their US-layout shifted symbol.
const shiftedDigits = ")!@#$%^&*("

var (
	keyNames   [keyTableSz]string
	isModifier [keyTableSz]bool
)

func init() {
	named := map[int]string{
		vkBack:    "Backspace",
		vkTab:     "Tab",
		vkReturn:  "Enter",
		vkShift:   "Shift",
		vkControl: "Ctrl",
		vkMenu:    "Alt",
		vkEscape:  "Esc",
		vkSpace:   "Space",
		vkPrior:   "PageUp",
		vkNext:    "PageDown",
		vkEnd:     "End",
		vkHome:    "Home",
		vkLeft:    "Left",
		vkUp:      "Up",
		vkRight:   "Right",
		vkDown:    "Down",
		vkInsert:  "Insert",
		vkDelete:  "Delete",
	}
	for vk, name := range named {
		keyNames[vk] = name
	}
	for vk := vk0; vk <= vk9; vk++ {
		keyNames[vk] = string(rune(vk))
	}
	for vk := vkA; vk <= vkZ; vk++ {
		keyNames[vk] = string(rune(vk))
	}
	for vk := vkF1; vk <= vkF12; vk++ {
		keyNames[vk] = fmt.Sprintf("F%d", vk-vkF1+1)
	}

	isModifier[vkShift] = true
	isModifier[vkControl] = true
	isModifier[vkMenu] = true
	for vk := vkLShift; vk <= vkRMenu; vk++ {
		isModifier[vk] = true
	}
}

// KeyName returns the logical name for a virtual-key code, such as "Enter",
// "F5" or "A". Unmapped codes render as "Key<code>".
func KeyName(vk int) string {
	if vk >= 0 && vk < keyTableSz && keyNames[vk] != "" {
		return keyNames[vk]
	}
	return fmt.Sprintf("Key%d", vk)
}

// IsModifier reports whether vk is Shift, Ctrl or Alt (either side).
func IsModifier(vk int) bool {
	return vk >= 0 && vk < keyTableSz && isModifier[vk]
}

// PrintableText resolves the text a key press would type on a US layout.
// Presses with Ctrl or Alt held are shortcuts and yield "".
func PrintableText(vk int, shift, ctrl, alt bool) string {
	if ctrl || alt {
		return ""
	}
	switch {
	case vk >= vkA && vk <= vkZ:
		if shift {
			return string(rune(vk))
		}
		return string(rune(vk + ('a' - 'A')))
	case vk >= vk0 && vk <= vk9:
		if shift {
			return string(shiftedDigits[vk-vk0])
		}
		return string(rune(vk))
	case vk >= vkNumpad0 && vk <= vkNumpad9:
		return string(rune('0' + vk - vkNumpad0))
	case vk == vkSpace:
		return " "
	}
	return ""
}

// keystroke builds the recorded event for a key press.
func keystroke(in KeyInput) session.KeystrokeEvent {
	return session.KeystrokeEvent{
		VirtualKeyCode: in.VirtualKeyCode,
		Key:            KeyName(in.VirtualKeyCode),
		Text:           PrintableText(in.VirtualKeyCode, in.Shift, in.Ctrl, in.Alt),
		Phase:          session.PhaseDown,
		WindowTitle:    in.WindowTitle,
		Ctrl:           in.Ctrl,
		Alt:            in.Alt,
		Shift:          in.Shift,
		IsModifier:     IsModifier(in.VirtualKeyCode),
	}
}
