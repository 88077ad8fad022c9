// Package telemetry provides an optional New Relic APM agent with span and custom-event
// helpers, inert when telemetry is disabled or unconfigured. The node worker does not call it.
package telemetry

import (
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/weavecore/arnode/internal/config"
	"github.com/weavecore/arnode/internal/util"
)

// Agent wraps the New Relic application handle behind a nil-safe API so callers never need
// to check IsEnabled before using it.
type Agent struct {
	cfg *config.TelemetryConfig
	mu  sync.RWMutex
	app *newrelic.Application
}

// NewAgent constructs an Agent that does nothing until Start succeeds.
func NewAgent(cfg *config.TelemetryConfig) *Agent {
	return &Agent{cfg: cfg}
}

// Start connects to New Relic if enabled and configured; a missing license key or a disabled
// config is not an error, it just leaves the agent inert.
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("telemetry: disabled")
		return nil
	}
	if a.cfg.LicenseKey == "" {
		util.Warn("telemetry: no license key configured, staying disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("telemetry: connection timeout: %v (continuing in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("telemetry: enabled for app %s", a.cfg.AppName)
	return nil
}

// Stop flushes and shuts down the agent, a no-op if Start never connected.
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app != nil {
		app.Shutdown(10 * time.Second)
	}
}

// StartSegment begins a New Relic transaction for one event-loop dispatch and returns a
// function that ends it; safe to call unconditionally since it is a no-op when disabled.
func (a *Agent) StartSegment(name string) func() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app == nil {
		return func() {}
	}

	txn := app.StartTransaction(name)
	return func() { txn.End() }
}

// RecordBlockIntegrated records a custom event for one adopted head, gossiped or self-mined.
// The node worker does not call it; only a caller that invokes it produces the event.
func (a *Agent) RecordBlockIntegrated(height uint64, selfMined bool) {
	a.recordEvent("BlockIntegrated", map[string]interface{}{
		"height":     height,
		"self_mined": selfMined,
	})
}

// RecordForkRecovery records a fork recovery completion.
func (a *Agent) RecordForkRecovery(fromHeight, toHeight uint64, ok bool) {
	a.recordEvent("ForkRecovery", map[string]interface{}{
		"from_height": fromHeight,
		"to_height":   toHeight,
		"ok":          ok,
	})
}

func (a *Agent) recordEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}
