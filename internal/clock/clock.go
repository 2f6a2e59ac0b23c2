package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock reads so grant windows and cap boundaries can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return System{} }),
)

type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }
