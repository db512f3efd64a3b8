package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/fakeyudi/howl/internal/narrate"
)

// Narrator serves narrations from a Cache and falls through to the wrapped
// backend on a miss. Only successful narrations are stored.
type Narrator struct {
	next  narrate.Narrator
	cache *Cache
	scope string
	log   *slog.Logger
}

// Option configures a Narrator.
type Option func(*Narrator)

// WithLogger sets the logger used for cache read and write failures.
func WithLogger(l *slog.Logger) Option {
	return func(n *Narrator) { n.log = l }
}

// Wrap returns next decorated with c. scope separates entries produced by
// different backends or models, e.g. "openai/qwen2-vl".
func Wrap(next narrate.Narrator, c *Cache, scope string, opts ...Option) *Narrator {
	n := &Narrator{next: next, cache: c, scope: scope, log: slog.Default()}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Unwrap implements narrate.Decorator.
func (n *Narrator) Unwrap() narrate.Narrator {
	return n.next
}

// NarrateStep implements narrate.Narrator. Cache failures are logged and
// never fail the step.
func (n *Narrator) NarrateStep(ctx context.Context, req narrate.Request) (string, error) {
	key, err := Key(n.scope, req)
	if err != nil {
		n.log.Warn("cannot fingerprint step, bypassing cache", "step", req.StepNumber, "err", err)
		return n.next.NarrateStep(ctx, req)
	}

	text, ok, err := n.cache.Get(ctx, key)
	if err != nil {
		n.log.Warn("cache lookup failed", "step", req.StepNumber, "err", err)
	}
	if ok {
		n.log.Debug("cache hit", "step", req.StepNumber)
		return text, nil
	}

	text, err = n.next.NarrateStep(ctx, req)
	if err != nil {
		return "", err
	}
	if err := n.cache.Put(ctx, key, n.scope, text); err != nil {
		n.log.Warn("cache store failed", "step", req.StepNumber, "err", err)
	}
	return text, nil
}

// Key fingerprints a request: the scope, the full prompt text and the
// contents of every screenshot the backend could see. Renaming or
// re-recording frames therefore never returns a stale narration.
func Key(scope string, req narrate.Request) (string, error) {
	h := sha256.New()
	io.WriteString(h, scope)
	h.Write([]byte{0})
	io.WriteString(h, narrate.StepPrompt(req))
	h.Write([]byte{0})

	shots := []string{req.Current.Screenshot}
	if req.Previous != nil {
		shots = append(shots, req.Previous.Screenshot)
	}
	for _, path := range shots {
		if err := hashFile(h, path); err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
