package guard

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard_MutualExclusion(t *testing.T) {
	g := New()

	const attempts = 32
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	g.End("s1", "A", "B")
	if !g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("slot should be free again after End")
	}
}

func TestGuard_FanOutToDifferentRecipients(t *testing.T) {
	g := New()

	if !g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("first delegation should succeed")
	}
	if !g.TryBegin("s1", "A", "C", PolicyPerRecipient) {
		t.Fatal("delegation to a different recipient must not conflict")
	}
	if g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("second delegation to same recipient must be rejected")
	}

	recipients := g.PendingRecipients("s1", "A")
	sort.Strings(recipients)
	if len(recipients) != 2 || recipients[0] != "B" || recipients[1] != "C" {
		t.Fatalf("unexpected pending recipients: %v", recipients)
	}
}

func TestGuard_SingleFlightPolicy(t *testing.T) {
	g := New()

	if !g.TryBegin("s1", "A", "B", PolicySingleFlight) {
		t.Fatal("first delegation should succeed")
	}
	if g.TryBegin("s1", "A", "C", PolicySingleFlight) {
		t.Fatal("single-flight must reject any second outbound delegation")
	}

	// Other senders are unaffected.
	if !g.TryBegin("s1", "X", "C", PolicySingleFlight) {
		t.Fatal("a different sender must not be blocked")
	}

	g.End("s1", "A", "B")
	if !g.TryBegin("s1", "A", "C", PolicySingleFlight) {
		t.Fatal("sender should be free after its pending entry ends")
	}
}

func TestGuard_SessionIsolation(t *testing.T) {
	g := New()

	if !g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("session 1 delegation should succeed")
	}
	if !g.TryBegin("s2", "A", "B", PolicyPerRecipient) {
		t.Fatal("independent sessions must never contend")
	}
}

func TestGuard_EndIdempotent(t *testing.T) {
	g := New()

	// Ending an entry that was never begun tolerates retries after failure.
	g.End("s1", "A", "B")
	g.End("s1", "A", "B")

	if !g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("TryBegin should succeed after spurious Ends")
	}
}

func TestGuard_Release(t *testing.T) {
	g := New()

	if !g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("setup failed")
	}
	g.Release("s1")

	if !g.TryBegin("s1", "A", "B", PolicyPerRecipient) {
		t.Fatal("released session should start empty")
	}
}
