package bus

import (
	"testing"
	"time"

	"github.com/arbprotocol/triarb/pkg/types"
)

func TestPushPopFIFO(t *testing.T) {
	t.Parallel()
	b := New(4)

	for i := 0; i < 3; i++ {
		evt := NewMonitoringEvent(types.MonitoringMessage{EntityID: i})
		if err := b.Push(evt); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		evt, ok := b.Pop()
		if !ok {
			t.Fatalf("pop %d: expected an event", i)
		}
		if evt.Monitoring.EntityID != i {
			t.Errorf("pop %d: entity id = %d, want %d", i, evt.Monitoring.EntityID, i)
		}
	}

	if _, ok := b.Pop(); ok {
		t.Error("pop on empty bus should report ok=false")
	}
}

func TestPushFullReturnsError(t *testing.T) {
	t.Parallel()
	b := New(2)

	if err := b.Push(NewTickerEvent(types.PriceTicker{})); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(NewTickerEvent(types.PriceTicker{})); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := b.Push(NewTickerEvent(types.PriceTicker{})); err != ErrBusFull {
		t.Errorf("push 3: err = %v, want ErrBusFull", err)
	}
}

func TestLenAndCap(t *testing.T) {
	t.Parallel()
	b := New(10)
	if b.Cap() != 10 {
		t.Errorf("cap = %d, want 10", b.Cap())
	}
	b.Push(NewTickerEvent(types.PriceTicker{IngestTime: time.Now()}))
	if b.Len() != 1 {
		t.Errorf("len = %d, want 1", b.Len())
	}
}
