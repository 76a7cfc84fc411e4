package ledger

import (
	"time"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// SystemClock reads wall-clock time from the host.
type SystemClock struct{}

// Now returns the current time in whole seconds since the Unix epoch.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

var _ domain.Clock = SystemClock{}
