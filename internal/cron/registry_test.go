package cron

import (
	"context"
	"slices"
	"testing"
)

type namedJob string

func (j namedJob) Name() string              { return string(j) }
func (j namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry(namedJob("reservation-risk-sweep"))
	if err := registry.Register(namedJob("occupancy-reconcile")); err != nil {
		t.Fatalf("register: %v", err)
	}

	want := []string{"reservation-risk-sweep", "occupancy-reconcile"}
	if got := registry.Names(); !slices.Equal(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}

	jobs := registry.Jobs()
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("Jobs must return a copy")
	}
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	registry := NewRegistry(namedJob("sweep"), nil, namedJob("sweep"), namedJob("reconcile"))
	if got := registry.Names(); !slices.Equal(got, []string{"sweep", "reconcile"}) {
		t.Fatalf("unexpected names %v", got)
	}
	if err := registry.Register(namedJob("reconcile")); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := registry.Register(nil); err != nil {
		t.Fatalf("nil job should be ignored, got %v", err)
	}
}
