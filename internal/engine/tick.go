// Package engine provides the simulation model, its tick, and the population
// builder.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine drives a simulation forward on a wall clock.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval (default 1 second)
	MaxTicks uint64        // Stop after this many ticks; 0 runs until stopped

	// OnTick runs once per tick. A non-nil error stops the engine.
	OnTick func(tick uint64) error

	speed   atomic.Uint64 // float64 bits; 1.0 = real-time, 0 = paused
	running atomic.Bool
	err     error
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	e := &Engine{Interval: time.Second}
	e.SetSpeed(1.0)
	return e
}

// Speed returns the tick rate multiplier. Safe to call while Run is looping.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the tick rate multiplier; 0 pauses the engine.
func (e *Engine) SetSpeed(v float64) {
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop is called, ctx is done,
// MaxTicks is reached or a tick fails; returns the tick error if any.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	var started uint64
	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			if !sleep(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()

		if err := e.step(); err != nil {
			e.err = err
			slog.Error("tick failed, stopping engine", "tick", e.Tick, "error", err)
			break
		}
		started++
		if e.MaxTicks > 0 && started >= e.MaxTicks {
			break
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target && !sleep(ctx, target-elapsed) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
	return e.err
}

// Stop halts the simulation loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// step advances the engine by one tick.
func (e *Engine) step() error {
	next := e.Tick + 1
	if e.OnTick != nil {
		if err := e.OnTick(next); err != nil {
			return err
		}
	}
	e.Tick = next
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
