package cmd

import (
	"errors"
	"fmt"

	"github.com/fakeyudi/howl/internal/cache"
	"github.com/fakeyudi/howl/internal/narrate"
	"github.com/fakeyudi/howl/internal/session"
)

var errNoRecordings = errors.New("no recorded sessions, run 'howl record' first")

// loadSession returns the session named in args, or the most recent one.
func loadSession(store session.SessionStore, args []string) (*session.Session, error) {
	var (
		s   *session.Session
		err error
	)
	if len(args) > 0 {
		s, err = store.Load(args[0])
	} else {
		s, err = store.Latest()
	}
	if errors.Is(err, session.ErrNoSession) {
		if len(args) > 0 {
			return nil, fmt.Errorf("session %s not found", args[0])
		}
		return nil, errNoRecordings
	}
	return s, err
}

// newNarrator builds the configured backend, wrapped in the narration cache
// unless useCache is false. The returned close func releases the cache.
func newNarrator(useCache bool) (narrate.Narrator, func(), error) {
	n, err := narrate.New(cfg.NarrateConfig(), narrate.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if !useCache || !cfg.CacheEnabled() {
		return n, func() {}, nil
	}

	c, err := openCache()
	if err != nil {
		// a broken cache never blocks generation
		logger.Warn("narration cache unavailable", "err", err)
		return n, func() {}, nil
	}
	return cache.Wrap(n, c, cfg.Scope(), cache.WithLogger(logger)), func() { c.Close() }, nil
}

func openCache() (*cache.Cache, error) {
	path := cfg.Cache.Path
	if path == "" {
		p, err := cache.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return cache.Open(path)
}
