package events

import "testing"

func TestEmitNoSubscribersDoesNotBlock(t *testing.T) {
	b := New("s1", 4)
	if err := b.Emit(TypeContent, "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := <-b.Primary()
	if ev.Value != "hi" || ev.Seq != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestSubscriberAttachedAfterEmissionSeesNoHistory(t *testing.T) {
	b := New("s1", 4)
	_ = b.Emit(TypeContent, "before")
	<-b.Primary()

	sub := b.Subscribe(4)
	_ = b.Emit(TypeContent, "after")
	<-b.Primary()

	select {
	case ev := <-sub:
		if ev.Value != "after" {
			t.Fatalf("expected only post-subscribe event, got %v", ev.Value)
		}
	default:
		t.Fatal("expected the post-subscribe event to be delivered")
	}
}

func TestEmitAfterCloseFails(t *testing.T) {
	b := New("s1", 1)
	b.Close()
	if err := b.Emit(TypeTurnComplete, nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSequenceMonotonic(t *testing.T) {
	b := New("s1", 4)
	_ = b.Emit(TypeContent, "a")
	_ = b.Emit(TypeContent, "b")
	first := <-b.Primary()
	second := <-b.Primary()
	if second.Seq <= first.Seq {
		t.Fatalf("sequence not monotonic: %d then %d", first.Seq, second.Seq)
	}
}
