package control

import (
	"context"
	"testing"
	"time"
)

func TestShouldStopAfterRequest(t *testing.T) {
	root := t.TempDir()

	sw, err := NewSignalWatcher(root)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if sw.ShouldStop() {
		t.Fatal("fresh watcher reports stop")
	}

	if err := RequestStop(root); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	if !sw.ShouldStop() {
		t.Error("stop signal not observed")
	}

	if err := sw.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if sw.ShouldStop() {
		t.Error("stop signal survived Clear")
	}
}

func TestBindCancelsOnStop(t *testing.T) {
	root := t.TempDir()

	sw, err := NewSignalWatcher(root)
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	ctx, cancel := sw.Bind(context.Background(), 5*time.Millisecond)
	defer cancel()

	if err := RequestStop(root); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after stop signal")
	}
}

func TestClearWithoutSignal(t *testing.T) {
	sw, err := NewSignalWatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewSignalWatcher: %v", err)
	}
	defer sw.Close()

	if err := sw.Clear(); err != nil {
		t.Errorf("Clear with no signal file: %v", err)
	}
}
