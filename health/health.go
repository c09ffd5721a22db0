// Package health provides a registry of named health checks consulted by
// the liveness endpoint. Checks either run inline on every status request
// or periodically in the background with the last result cached.
package health

import (
	"sync"
	"time"
)

// Checker is the interface for a health checker.
type Checker interface {
	// Check returns nil if the service is okay.
	Check() error
}

// CheckFunc is a convenience type to create functions that implement the
// Checker interface.
type CheckFunc func() error

// Check implements the Checker interface to allow for any func() error
// method to be passed as a Checker.
func (cf CheckFunc) Check() error {
	return cf()
}

// Updater implements a health check that is explicitly set.
type Updater interface {
	Checker

	// Update updates the current status of the health check.
	Update(status error)
}

// updater implements Checker and Updater, providing an asynchronous Update
// method. This allows a Checker that returns from Check() immediately
// instead of blocking on a potentially expensive probe.
type updater struct {
	mu     sync.Mutex
	status error
}

// Check implements the Checker interface.
func (u *updater) Check() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.status
}

// Update implements the Updater interface, allowing asynchronous access to
// the status of a Checker.
func (u *updater) Update(status error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.status = status
}

// NewStatusUpdater returns a new updater.
func NewStatusUpdater() Updater {
	return &updater{}
}

// thresholdUpdater only reports failure after threshold consecutive bad
// probes, so a transient blip in a dependency does not flip the endpoint.
type thresholdUpdater struct {
	mu        sync.Mutex
	status    error
	threshold int
	count     int
}

// Check implements the Checker interface.
func (tu *thresholdUpdater) Check() error {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if tu.count >= tu.threshold {
		return tu.status
	}

	return nil
}

// Update implements the Updater interface.
func (tu *thresholdUpdater) Update(status error) {
	tu.mu.Lock()
	defer tu.mu.Unlock()

	if status == nil {
		tu.count = 0
	} else if tu.count < tu.threshold {
		tu.count++
	}

	tu.status = status
}

// NewThresholdStatusUpdater returns a new thresholdUpdater.
func NewThresholdStatusUpdater(t int) Updater {
	return &thresholdUpdater{threshold: t}
}

// PeriodicChecker wraps an updater to provide a periodic checker.
func PeriodicChecker(check Checker, period time.Duration) Checker {
	u := NewStatusUpdater()
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for range t.C {
			u.Update(check.Check())
		}
	}()

	return u
}

// PeriodicThresholdChecker wraps an updater to provide a periodic checker
// that uses a threshold before it changes status.
func PeriodicThresholdChecker(check Checker, period time.Duration, threshold int) Checker {
	tu := NewThresholdStatusUpdater(threshold)
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for range t.C {
			tu.Update(check.Check())
		}
	}()

	return tu
}

// Registry holds a set of named checks. The zero value is not usable; use
// NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Checker
}

// NewRegistry returns an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: map[string]Checker{}}
}

// Register associates the checker with the provided name. Registering the
// same name twice panics; checks are wired once at boot.
func (reg *Registry) Register(name string, check Checker) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.checks[name]; ok {
		panic("health: check already exists: " + name)
	}
	reg.checks[name] = check
}

// RegisterFunc allows the convenience of registering a checker directly
// from an arbitrary func() error.
func (reg *Registry) RegisterFunc(name string, check func() error) {
	reg.Register(name, CheckFunc(check))
}

// RegisterPeriodicFunc registers a check that runs on its own timer; the
// status endpoint reads the last cached result.
func (reg *Registry) RegisterPeriodicFunc(name string, period time.Duration, check func() error) {
	reg.Register(name, PeriodicChecker(CheckFunc(check), period))
}

// RegisterPeriodicThresholdFunc registers a periodic check that only
// reports failure after threshold consecutive bad probes.
func (reg *Registry) RegisterPeriodicThresholdFunc(name string, period time.Duration, threshold int, check func() error) {
	reg.Register(name, PeriodicThresholdChecker(CheckFunc(check), period, threshold))
}

// CheckStatus returns a map carrying the error message of every currently
// failing check. An empty map means all checks pass.
func (reg *Registry) CheckStatus() map[string]string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	statusKeys := make(map[string]string)
	for k, v := range reg.checks {
		if err := v.Check(); err != nil {
			statusKeys[k] = err.Error()
		}
	}

	return statusKeys
}
