package auth_test

import (
	"testing"
	"time"

	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/domain/models"
)

func TestNotifier_RoutesByDevice(t *testing.T) {
	n := auth.NewNotifier()
	defer n.Close()

	phone := n.Subscribe("phone")
	tablet := n.Subscribe("tablet")
	if got := n.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount: got %d, want 2", got)
	}

	n.Publish(auth.Change{DeviceID: "phone", Identity: &models.Identity{ID: "u1"}})

	select {
	case c := <-phone:
		if c.Identity == nil || c.Identity.ID != "u1" {
			t.Errorf("unexpected change: %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("phone did not receive change")
	}
	select {
	case c := <-tablet:
		t.Errorf("tablet received %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_LatestWins(t *testing.T) {
	n := auth.NewNotifier()
	defer n.Close()

	ch := n.Subscribe("phone")
	n.Publish(auth.Change{DeviceID: "phone", Identity: &models.Identity{ID: "u1"}})
	n.Publish(auth.Change{DeviceID: "phone"})
	// Round-trip through the loop so both publishes are processed.
	n.SubscriberCount()

	select {
	case c := <-ch:
		if c.SignedIn() {
			t.Errorf("expected the newer signed-out change, got %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
}

func TestNotifier_UnsubscribeAndClose(t *testing.T) {
	n := auth.NewNotifier()

	ch := n.Subscribe("phone")
	n.Unsubscribe("phone", ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Unsubscribe")
	}
	if got := n.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount: got %d, want 0", got)
	}

	other := n.Subscribe("tablet")
	n.Close()
	if _, ok := <-other; ok {
		t.Error("expected channel closed after Close")
	}

	// Calls after Close are no-ops.
	n.Publish(auth.Change{DeviceID: "tablet"})
	n.Close()
	if _, ok := <-n.Subscribe("x"); ok {
		t.Error("expected closed channel from Subscribe after Close")
	}
}
