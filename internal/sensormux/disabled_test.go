package sensormux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDisabledMuxLifecycle(t *testing.T) {
	var mux SensorMuxInterface = NewDisabledSensorMux()

	if err := mux.SendCommand("FMT JSON"); err != nil {
		t.Errorf("SendCommand returned %v, want nil", err)
	}
	if err := mux.Initialize(); err != nil {
		t.Errorf("Initialize returned %v, want nil", err)
	}

	id, ch := mux.Subscribe()
	select {
	case <-ch:
		t.Error("disabled mux should never deliver lines")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- mux.Monitor(ctx)
	}()
	cancel()
	select {
	case err := <-monitorDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop on context cancel")
	}

	mux.Unsubscribe(id)
	if err := mux.Close(); err != nil {
		t.Errorf("Close returned %v, want nil", err)
	}
}

func TestDisabledMuxSubscribeAfterClose(t *testing.T) {
	mux := NewDisabledSensorMux()

	_, open := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case _, ok := <-open:
		if ok {
			t.Error("existing subscription should close on Close")
		}
	case <-time.After(time.Second):
		t.Error("existing subscription not closed")
	}

	_, late := mux.Subscribe()
	select {
	case _, ok := <-late:
		if ok {
			t.Error("post-Close subscription should start closed")
		}
	case <-time.After(time.Second):
		t.Error("post-Close subscription not closed")
	}
}
