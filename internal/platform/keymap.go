// Package platform provides the desktop implementation of capture.Platform.
// The real adapter needs cgo and is built with -tags robotgo; other builds
// get a stub that reports capture.ErrUnsupported.
package platform

import "github.com/fakeyudi/howl/internal/session"

// Modifier bits in a hook event mask.
const (
	maskShiftL = 1 << 0
	maskCtrlL  = 1 << 1
	maskMetaL  = 1 << 2
	maskAltL   = 1 << 3
	maskShiftR = 1 << 4
	maskCtrlR  = 1 << 5
	maskMetaR  = 1 << 6
	maskAltR   = 1 << 7
)

// modifiers decodes the Shift, Ctrl and Alt state of a hook event mask.
func modifiers(mask uint16) (shift, ctrl, alt bool) {
	shift = mask&(maskShiftL|maskShiftR) != 0
	ctrl = mask&(maskCtrlL|maskCtrlR) != 0
	alt = mask&(maskAltL|maskAltR) != 0
	return
}

// vkByKeycode maps the hook's portable scan-style key codes to Windows
// virtual-key codes, which is what the recorder stores.
var vkByKeycode = map[uint16]int{
	0x0001: 0x1B, // Esc
	0x000E: 0x08, // Backspace
	0x000F: 0x09, // Tab
	0x001C: 0x0D, // Enter
	0x0039: 0x20, // Space

	0x002A: 0xA0, // Shift L
	0x0036: 0xA1, // Shift R
	0x001D: 0xA2, // Ctrl L
	0x0E1D: 0xA3, // Ctrl R
	0x0038: 0xA4, // Alt L
	0x0E38: 0xA5, // Alt R

	0x0E49: 0x21, // PageUp
	0x0E51: 0x22, // PageDown
	0x0E4F: 0x23, // End
	0x0E47: 0x24, // Home
	0xE04B: 0x25, // Left
	0xE048: 0x26, // Up
	0xE04D: 0x27, // Right
	0xE050: 0x28, // Down
	0x0E52: 0x2D, // Insert
	0x0E53: 0x2E, // Delete

	0x000C: 0xBD, // -
	0x000D: 0xBB, // =
	0x001A: 0xDB, // [
	0x001B: 0xDD, // ]
	0x0027: 0xBA, // ;
	0x0028: 0xDE, // '
	0x0029: 0xC0, // `
	0x002B: 0xDC, // \
	0x0033: 0xBC, // ,
	0x0034: 0xBE, // .
	0x0035: 0xBF, // /
}

func init() {
	// Letter rows in physical order.
	rows := []struct {
		first   uint16
		letters string
	}{
		{0x0010, "QWERTYUIOP"},
		{0x001E, "ASDFGHJKL"},
		{0x002C, "ZXCVBNM"},
	}
	for _, r := range rows {
		for i, c := range r.letters {
			vkByKeycode[r.first+uint16(i)] = int(c)
		}
	}
	// 1..9 then 0.
	for i := range 9 {
		vkByKeycode[0x0002+uint16(i)] = '1' + i
	}
	vkByKeycode[0x000B] = '0'
	for i := range 10 {
		vkByKeycode[0x003B+uint16(i)] = 0x70 + i // F1..F10
	}
	vkByKeycode[0x0057] = 0x7A // F11
	vkByKeycode[0x0058] = 0x7B // F12
}

// virtualKey translates a hook key code. ok is false for keys the recorder
// has no name for.
func virtualKey(keycode uint16) (vk int, ok bool) {
	vk, ok = vkByKeycode[keycode]
	return
}

// button maps a hook mouse button number. Only left and right presses are
// recorded.
func button(b uint16) (session.ButtonKind, bool) {
	switch b {
	case 1:
		return session.ButtonLeft, true
	case 2:
		return session.ButtonRight, true
	}
	return "", false
}
