package storage

import (
	"context"
	"testing"
	"time"

	"car-edition/core/types"
	"car-edition/core/workflow"
	"car-edition/internal/errors"
)

func TestSessionStoreCopies(t *testing.T) {
	s := NewSessionStore(0)
	ctx := context.Background()

	sess := workflow.NewSession("abc", time.Now())
	if err := sess.SetVehicle(&types.VehicleDetails{RegistrationNumber: "AB12CDE", Make: "Audi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sess.Vehicle.Make = "mutated"
	got, err := s.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Vehicle.Make != "Audi" || got.State != workflow.StateVehicleSelected {
		t.Errorf("stored session = %+v", got)
	}

	if err := s.Delete(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "abc"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("deleted session: %v", err)
	}
	if err := s.Save(ctx, &workflow.Session{}); !errors.IsType(err, errors.TypeValidation) {
		t.Errorf("session without id: %v", err)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore(30 * time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Save(ctx, workflow.NewSession("old", now.Add(-time.Hour)))
	s.Save(ctx, workflow.NewSession("fresh", now.Add(-time.Minute)))

	if _, err := s.Get(ctx, "old"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expired session should be missing: %v", err)
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session: %v", err)
	}

	if n := s.PurgeExpired(); n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("remaining sessions = %d", s.Len())
	}
}

func TestSessionStoreJanitorStops(t *testing.T) {
	s := NewSessionStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
