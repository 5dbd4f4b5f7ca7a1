package watcher

import "testing"

func TestSeenSetTransitions(t *testing.T) {
	s := NewSeenSet()

	if s.State("a") != StateUnseen {
		t.Errorf("expected unseen for a new hash")
	}

	s.MarkSeen("a")
	if s.State("a") != StateSeen {
		t.Errorf("expected seen after MarkSeen")
	}

	s.Forget("a")
	if s.State("a") != StateForgotten {
		t.Errorf("expected forgotten after Forget")
	}

	// A re-add goes back to seen.
	s.MarkSeen("a")
	if s.State("a") != StateSeen {
		t.Errorf("expected seen after re-add")
	}

	// Forgetting something never seen is a no-op.
	s.Forget("b")
	if s.State("b") != StateUnseen {
		t.Errorf("expected unseen to survive Forget")
	}
}

func TestSeenSetLenCountsOnlySeen(t *testing.T) {
	s := NewSeenSet()
	s.MarkSeen("a")
	s.MarkSeen("b")
	s.Forget("b")

	if s.Len() != 1 {
		t.Errorf("expected 1 seen hash, got %d", s.Len())
	}
}
