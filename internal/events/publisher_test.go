package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"medibook-server/internal/models"
	"medibook-server/internal/scheduling"
)

func TestRoutingKey(t *testing.T) {
	tests := map[scheduling.EventType]string{
		scheduling.EventBooked:    "appointment.booked",
		scheduling.EventAccepted:  "appointment.accepted",
		scheduling.EventCancelled: "appointment.cancelled",
		scheduling.EventCompleted: "appointment.completed",
	}
	for typ, want := range tests {
		if got := RoutingKey(typ); got != want {
			t.Errorf("%s: expected %q, got %q", typ, want, got)
		}
	}
}

func TestBuildPublishing(t *testing.T) {
	at := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)
	ev := scheduling.Event{
		Type:          scheduling.EventCancelled,
		AppointmentID: "a-1",
		DoctorID:      "d-1",
		PatientID:     "p-1",
		Status:        models.StatusCancelled,
		ScheduledAt:   at,
		OccurredAt:    at.Add(-48 * time.Hour),
	}

	msg, err := buildPublishing(ev)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Errorf("unexpected message properties %+v", msg)
	}
	if msg.MessageId == "" {
		t.Error("expected a message id")
	}
	if msg.Type != "cancelled" || !msg.Timestamp.Equal(ev.OccurredAt) {
		t.Errorf("unexpected type/timestamp %q %v", msg.Type, msg.Timestamp)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["appointmentId"] != "a-1" || decoded["status"] != "cancelled" || decoded["type"] != "cancelled" {
		t.Errorf("unexpected body %s", msg.Body)
	}

	other, _ := buildPublishing(ev)
	if other.MessageId == msg.MessageId {
		t.Error("expected distinct message ids")
	}
}

func TestNop(t *testing.T) {
	var p scheduling.Publisher = Nop{}
	if err := p.Publish(context.Background(), scheduling.Event{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
