package foreman

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/TheBitDrifter/bark"
)

// Dispatcher runs registered systems against a World in graph order on the
// calling goroutine. It keeps one Runnable per system and only asks the
// factory again when the registered descriptor changes.
type Dispatcher struct {
	registry  *SystemRegistry
	instances map[SystemID]dispatchEntry
	log       *slog.Logger
	metrics   *Metrics
}

type dispatchEntry struct {
	info     *SystemInfo
	runnable Runnable
}

func NewDispatcher(registry *SystemRegistry) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		instances: make(map[SystemID]dispatchEntry),
		log:       Config.loggerFor("dispatcher"),
		metrics:   Config.metrics,
	}
}

// Dispatch runs every system once. It stops at the first system that panics
// and returns a *SystemPanicError naming it. The registry ReadGuard is held
// for the whole run; systems must not touch the registry.
func (d *Dispatcher) Dispatch(w *World) error {
	visitor, guard, err := d.registry.Systems()
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	defer guard.Release()

	start := time.Now()
	defer func() { d.metrics.dispatched(time.Since(start)) }()

	for wave, info := range visitor.All() {
		if err := d.run(w, info, wave); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) run(w *World, info *SystemInfo, wave int) (err error) {
	runnable := d.instance(info)
	defer func() {
		if v := recover(); v != nil {
			err = &SystemPanicError{System: info.Name(), Value: v}
			d.metrics.systemRan(true)
			d.log.Error("system panicked",
				bark.KeyOperation, "dispatch",
				"system", info.Name(),
				"wavefront", wave,
				bark.KeyError, err,
				"trace", traceOf(err),
			)
		}
	}()
	runnable.Run(w)
	d.metrics.systemRan(false)
	return nil
}

func (d *Dispatcher) instance(info *SystemInfo) Runnable {
	entry, ok := d.instances[info.ID()]
	if ok && entry.info == info {
		return entry.runnable
	}
	entry = dispatchEntry{info: info, runnable: info.New()}
	d.instances[info.ID()] = entry
	return entry.runnable
}
