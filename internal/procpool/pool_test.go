package procpool

import "testing"

func TestNewPoolRejectsZeroSize(t *testing.T) {
	if _, err := NewPool(Options{WorkerBinary: "/bin/true", Size: 0}); err == nil {
		t.Fatal("expected NewPool with Size 0 to fail")
	}
}
