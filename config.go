package foreman

import (
	"log/slog"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/table"
)

// Config holds global configuration for storages, worlds and registries
var Config config = config{
	eventChannelCapacity: 256,
	maxInternedIDs:       1 << 16,
}

type config struct {
	tableEvents          table.TableEvents
	logger               *slog.Logger
	eventChannelCapacity int
	maxInternedIDs       int
	metrics              *Metrics
}

// SetTableEvents configures the table event callbacks
func (c *config) SetTableEvents(te table.TableEvents) {
	c.tableEvents = te
}

// SetLogger overrides the bark component loggers for every package component
func (c *config) SetLogger(l *slog.Logger) {
	c.logger = l
}

// SetEventChannelCapacity bounds newly created event channels
func (c *config) SetEventChannelCapacity(n int) {
	if n > 0 {
		c.eventChannelCapacity = n
	}
}

// SetMetrics installs the default metrics used by new registries and worlds
func (c *config) SetMetrics(m *Metrics) {
	c.metrics = m
}

func (c *config) loggerFor(component string) *slog.Logger {
	if c.logger != nil {
		return c.logger.With(bark.KeyComponent, component)
	}
	return bark.For(component)
}
