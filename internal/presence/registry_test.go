package presence

import "testing"

func TestBindAndUnbind(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Bind("user-1", "conn-1"); ok {
		t.Error("first bind should not report a replaced connection")
	}
	if !r.IsOnline("user-1") {
		t.Error("expected user-1 online after bind")
	}
	if connID, ok := r.ConnID("user-1"); !ok || connID != "conn-1" {
		t.Errorf("expected conn-1, got %s (ok=%v)", connID, ok)
	}

	userID, ok := r.Unbind("conn-1")
	if !ok || userID != "user-1" {
		t.Fatalf("expected unbind to report user-1, got %s (ok=%v)", userID, ok)
	}
	if r.IsOnline("user-1") {
		t.Error("expected user-1 offline after unbind")
	}
}

func TestBindReplacesPriorConnection(t *testing.T) {
	r := NewRegistry()

	r.Bind("user-1", "conn-old")
	replaced, ok := r.Bind("user-1", "conn-new")
	if !ok || replaced != "conn-old" {
		t.Fatalf("expected conn-old replaced, got %s (ok=%v)", replaced, ok)
	}

	if connID, _ := r.ConnID("user-1"); connID != "conn-new" {
		t.Errorf("expected conn-new to be live, got %s", connID)
	}
	if r.Count() != 1 {
		t.Errorf("expected exactly one online user, got %d", r.Count())
	}
}

func TestStaleUnbindIsNoOp(t *testing.T) {
	r := NewRegistry()

	r.Bind("user-1", "conn-old")
	r.Bind("user-1", "conn-new")

	// The old connection closes after being replaced. Unbinding it must not
	// take the new connection offline.
	if _, ok := r.Unbind("conn-old"); ok {
		t.Error("stale unbind should report ok=false")
	}
	if !r.IsOnline("user-1") {
		t.Error("stale unbind evicted the live connection")
	}
}

func TestDoubleUnbind(t *testing.T) {
	r := NewRegistry()

	r.Bind("user-1", "conn-1")
	r.Unbind("conn-1")

	if _, ok := r.Unbind("conn-1"); ok {
		t.Error("second unbind should report ok=false")
	}
}

func TestCount(t *testing.T) {
	r := NewRegistry()

	r.Bind("user-1", "conn-1")
	r.Bind("user-2", "conn-2")
	r.Bind("user-1", "conn-3") // replacement, not a new user

	if r.Count() != 2 {
		t.Errorf("expected 2 online users, got %d", r.Count())
	}
}
