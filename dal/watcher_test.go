package dal

import "testing"

func TestWatcher_PublishWakesMatchingSubscriber(t *testing.T) {
	w := NewWatcher()

	t.Run("test_1", func(t *testing.T) {
		signal, cancel := w.Subscribe(KindUserProfile, "u-1")
		defer cancel()

		w.Publish(KindUserProfile, "u-1")

		select {
		case <-signal:
		default:
			t.Error("subscriber was not woken")
		}
	})

	t.Run("other_user_not_woken", func(t *testing.T) {
		signal, cancel := w.Subscribe(KindUserProfile, "u-1")
		defer cancel()

		w.Publish(KindUserProfile, "u-2")
		w.Publish(KindMiningSession, "u-1")

		select {
		case <-signal:
			t.Error("subscriber woken for unrelated publish")
		default:
		}
	})
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	w := NewWatcher()

	signal, cancel := w.Subscribe(KindSocialTask, "")
	defer cancel()

	for i := 0; i < 10; i++ {
		w.Publish(KindSocialTask, "")
	}

	// A burst leaves exactly one pending signal.
	select {
	case <-signal:
	default:
		t.Fatal("no signal pending after burst")
	}
	select {
	case <-signal:
		t.Error("more than one signal pending after burst")
	default:
	}
}

func TestWatcher_Cancel(t *testing.T) {
	w := NewWatcher()

	signal, cancel := w.Subscribe(KindTaskCompletion, "u-1")
	if w.NumSubscribers() != 1 {
		t.Fatalf("NumSubscribers = %v, want 1", w.NumSubscribers())
	}

	cancel()
	if w.NumSubscribers() != 0 {
		t.Fatalf("NumSubscribers = %v, want 0", w.NumSubscribers())
	}

	w.Publish(KindTaskCompletion, "u-1")
	select {
	case <-signal:
		t.Error("cancelled subscriber was woken")
	default:
	}
}

func TestEntityKind_String(t *testing.T) {
	if KindUserProfile.String() != "KindUserProfile" {
		t.Errorf("String() = %v", KindUserProfile.String())
	}
	if EntityKind(99).String() != "Unknown EntityKind" {
		t.Errorf("String() = %v", EntityKind(99).String())
	}
}
