package sysbus

import (
	"log/slog"

	"github.com/fogfish/opts"
)

type settings struct {
	id             Identity
	logger         *slog.Logger
	maxSubscribers int
}

// Option configures a Bus.
type Option = opts.Option[settings]

var (
	// WithID sets the identity of the local instance. Defaults to "bus-"
	// followed by a UUIDv7.
	WithID = opts.ForName[settings, Identity]("id")

	// WithLogger sets the logger used to report rejected peers, failing
	// subscribers and subscriber leaks.
	WithLogger = opts.ForName[settings, *slog.Logger]("logger")

	// WithMaxSubscribers sets the per event subscriber count above which a
	// leak warning is logged. Zero disables the warning.
	WithMaxSubscribers = opts.ForName[settings, int]("maxSubscribers")
)
