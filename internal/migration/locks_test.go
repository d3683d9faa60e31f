package migration

import (
	"testing"
	"time"
)

func TestLocker_SerializesSameName(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock("nightly")

	acquired := make(chan struct{})
	go func() {
		release := l.Lock("nightly")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	other := make(chan struct{})
	go func() {
		release := l.Lock("weekly")
		close(other)
		release()
	}()
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("lock on a different name blocked")
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}
