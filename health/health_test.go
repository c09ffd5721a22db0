package health

import (
	"errors"
	"testing"
)

func TestRegistryCheckStatus(t *testing.T) {
	reg := NewRegistry()

	if status := reg.CheckStatus(); len(status) != 0 {
		t.Errorf("empty registry should report no failures, got %v", status)
	}

	reg.RegisterFunc("passing", func() error { return nil })
	reg.RegisterFunc("failing", func() error { return errors.New("disk on fire") })

	status := reg.CheckStatus()
	if len(status) != 1 {
		t.Fatalf("expected 1 failing check, got %v", status)
	}
	if status["failing"] != "disk on fire" {
		t.Errorf("unexpected failure message %q", status["failing"])
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic registering a duplicate check")
		}
	}()

	reg := NewRegistry()
	reg.RegisterFunc("dup", func() error { return nil })
	reg.RegisterFunc("dup", func() error { return nil })
}

func TestStatusUpdater(t *testing.T) {
	u := NewStatusUpdater()

	if err := u.Check(); err != nil {
		t.Errorf("fresh updater should pass, got %v", err)
	}

	boom := errors.New("boom")
	u.Update(boom)
	if err := u.Check(); err != boom {
		t.Errorf("expected boom, got %v", err)
	}

	u.Update(nil)
	if err := u.Check(); err != nil {
		t.Errorf("expected recovery, got %v", err)
	}
}

func TestThresholdUpdater(t *testing.T) {
	u := NewThresholdStatusUpdater(3)
	boom := errors.New("boom")

	// Two consecutive failures stay below the threshold.
	u.Update(boom)
	u.Update(boom)
	if err := u.Check(); err != nil {
		t.Errorf("below threshold, expected pass, got %v", err)
	}

	u.Update(boom)
	if err := u.Check(); err != boom {
		t.Errorf("at threshold, expected boom, got %v", err)
	}

	// One success resets the streak.
	u.Update(nil)
	if err := u.Check(); err != nil {
		t.Errorf("after recovery, expected pass, got %v", err)
	}
	u.Update(boom)
	if err := u.Check(); err != nil {
		t.Errorf("single failure after reset should pass, got %v", err)
	}
}
