package game

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Option configures a Game during creation.
type Option func(*gameOptions)

type gameOptions struct {
	rules  Rules
	bus    EventBus
	clock  quartz.Clock
	logger *log.Logger
}

func defaultOptions() *gameOptions {
	return &gameOptions{
		clock:  quartz.NewReal(),
		logger: log.NewWithOptions(io.Discard, log.Options{}),
	}
}

// WithRules sets deployment rules. The zero Rules is the default.
func WithRules(rules Rules) Option {
	return func(o *gameOptions) { o.rules = rules }
}

// WithEventBus publishes game events on bus instead of a private bus.
func WithEventBus(bus EventBus) Option {
	return func(o *gameOptions) { o.bus = bus }
}

// WithClock sets the clock used to timestamp events.
func WithClock(clock quartz.Clock) Option {
	return func(o *gameOptions) { o.clock = clock }
}

// WithLogger sets the logger. Games log nothing by default.
func WithLogger(logger *log.Logger) Option {
	return func(o *gameOptions) { o.logger = logger }
}

