//go:build !robotgo

package platform

import "github.com/fakeyudi/howl/internal/capture"

// New returns the platform for this build. Without the robotgo tag there is
// no input hook, so recording is unavailable.
func New() (capture.Platform, error) {
	return nil, capture.ErrUnsupported
}
