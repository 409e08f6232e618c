package state

import "testing"

func TestIsFetchingPredicate(t *testing.T) {
	fetching := []State{InitialFetching, InitialAndFinalFetching, ReplayingAndFetching, FinalFetching}
	for _, s := range fetching {
		if !s.IsFetching() {
			t.Errorf("%s should be fetching", s)
		}
	}
	notFetching := []State{Idle, ReadyForFirst, AllFetched}
	for _, s := range notFetching {
		if s.IsFetching() {
			t.Errorf("%s should not be fetching", s)
		}
	}
}

func TestIsReplayingPredicate(t *testing.T) {
	replaying := []State{ReplayingAndFetching, FinalFetching, AllFetched}
	for _, s := range replaying {
		if !s.IsReplaying() {
			t.Errorf("%s should be replaying", s)
		}
	}
	notReplaying := []State{Idle, ReadyForFirst, InitialFetching, InitialAndFinalFetching}
	for _, s := range notReplaying {
		if s.IsReplaying() {
			t.Errorf("%s should not be replaying", s)
		}
	}
}

func TestAtomicStoreLoadAndCAS(t *testing.T) {
	var a Atomic
	a.Store(ReadyForFirst)
	if a.Load() != ReadyForFirst {
		t.Fatalf("expected ReadyForFirst, got %s", a.Load())
	}
	if !a.CAS(ReadyForFirst, InitialFetching) {
		t.Fatal("expected CAS to succeed")
	}
	if a.CAS(ReadyForFirst, AllFetched) {
		t.Fatal("expected CAS against stale value to fail")
	}
	if a.Load() != InitialFetching {
		t.Fatalf("expected InitialFetching, got %s", a.Load())
	}
}
