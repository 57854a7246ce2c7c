package lifecycle

import "testing"

func TestLifecycle_StartDrainingOnce(t *testing.T) {
	l := New()
	if l.IsDraining() {
		t.Fatal("new lifecycle is draining")
	}
	l.StartDraining()
	l.StartDraining()
	if !l.IsDraining() {
		t.Fatal("expected draining")
	}
	select {
	case <-l.Draining():
	default:
		t.Fatal("Draining() not closed")
	}
}

func TestLifecycle_NilIsServing(t *testing.T) {
	var l *Lifecycle
	l.StartDraining()
	if l.IsDraining() || l.Draining() != nil {
		t.Fatal("nil lifecycle should report serving")
	}
}
