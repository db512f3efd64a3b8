package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestKeyName(t *testing.T) {
	cases := map[int]string{
		0x08: "Backspace",
		0x0D: "Enter",
		0x1B: "Esc",
		0x25: "Left",
		0x2E: "Delete",
		0x30: "0",
		0x41: "A",
		0x5A: "Z",
		0x70: "F1",
		0x7B: "F12",
		0xA0: "Key160",
		0x07: "Key7",
		-1:   "Key-1",
		999:  "Key999",
	}
	for vk, want := range cases {
		if got := KeyName(vk); got != want {
			t.Errorf("KeyName(%#x) = %q, want %q", vk, got, want)
		}
	}
}

func TestPrintableText(t *testing.T) {
	cases := []struct {
		vk               int
		shift, ctrl, alt bool
		want             string
	}{
		{vk: 0x41, want: "a"},
		{vk: 0x41, shift: true, want: "A"},
		{vk: 0x31, want: "1"},
		{vk: 0x31, shift: true, want: "!"},
		{vk: 0x30, shift: true, want: ")"},
		{vk: 0x39, shift: true, want: "("},
		{vk: 0x65, want: "5"},
		{vk: 0x20, want: " "},
		{vk: 0x0D, want: ""},
		{vk: 0x70, want: ""},
	}
	for _, c := range cases {
		if got := PrintableText(c.vk, c.shift, c.ctrl, c.alt); got != c.want {
			t.Errorf("PrintableText(%#x, shift=%v) = %q, want %q", c.vk, c.shift, got, c.want)
		}
	}
}

// Ctrl or Alt held never yields typed text, whatever the key.
func TestShortcutsNeverProduceText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vk := rapid.IntRange(0, 255).Draw(t, "vk")
		shift := rapid.Bool().Draw(t, "shift")
		ctrl := rapid.Bool().Draw(t, "ctrl")
		alt := rapid.Bool().Draw(t, "alt")
		if !ctrl && !alt {
			ctrl = true
		}
		if got := PrintableText(vk, shift, ctrl, alt); got != "" {
			t.Fatalf("PrintableText(%#x, ctrl=%v, alt=%v) = %q, want empty", vk, ctrl, alt, got)
		}
	})
}

func TestModifierKeysHaveNoText(t *testing.T) {
	for _, vk := range []int{0x10, 0x11, 0x12, 0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5} {
		if !IsModifier(vk) {
			t.Errorf("IsModifier(%#x) = false, want true", vk)
		}
		ev := keystroke(KeyInput{VirtualKeyCode: vk})
		if ev.Text != "" || !ev.IsModifier {
			t.Errorf("keystroke(%#x) = %+v, want modifier with no text", vk, ev)
		}
	}
	if IsModifier(0x41) {
		t.Error("IsModifier(A) = true, want false")
	}
}

func TestWatchFramesReportsNewPNGs(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchFrames(ctx, dir, func(p string) { got <- p })
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, FrameName(0))
	if err := os.WriteFile(want, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p != want {
			t.Errorf("reported %q, want %q", p, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame notification")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchFrames returned %v", err)
	}
}
