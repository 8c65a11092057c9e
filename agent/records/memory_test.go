package records

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testStart = time.Date(2025, 9, 30, 13, 0, 0, 0, time.UTC)

func TestMemoryStoreUserLookup(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(UserInfo{Nickname: "ana", Name: "Ana"})

	got, err := store.GetUserInfo(context.Background(), " ana ")
	if err != nil {
		t.Fatalf("GetUserInfo() error = %v", err)
	}
	if got.Name != "Ana" || got.ID == "" {
		t.Fatalf("GetUserInfo() = %+v", got)
	}

	if _, err := store.GetUserInfo(context.Background(), "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUserInfo(missing) error = %v", err)
	}
}

func TestMemoryStoreSupportCall(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	call, err := store.InsertSupportCall(context.Background(), SupportCall{UserID: "u1", IssueDescription: "cannot transfer"})
	if err != nil {
		t.Fatalf("InsertSupportCall() error = %v", err)
	}
	if call.ID == "" || call.CreatedAt.IsZero() {
		t.Fatalf("InsertSupportCall() = %+v", call)
	}
	if n := len(store.SupportCalls()); n != 1 {
		t.Fatalf("SupportCalls() = %d, want 1", n)
	}
}

func TestMemoryStoreRejectsOverlap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	first := Appointment{UserID: "u1", StartTime: testStart, EndTime: testStart.Add(time.Hour)}
	if _, err := store.InsertAppointment(ctx, first); err != nil {
		t.Fatalf("InsertAppointment() error = %v", err)
	}

	overlap := Appointment{UserID: "u2", StartTime: testStart.Add(30 * time.Minute), EndTime: testStart.Add(90 * time.Minute)}
	if _, err := store.InsertAppointment(ctx, overlap); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("InsertAppointment(overlap) error = %v", err)
	}

	adjacent := Appointment{UserID: "u2", StartTime: testStart.Add(time.Hour), EndTime: testStart.Add(2 * time.Hour)}
	if _, err := store.InsertAppointment(ctx, adjacent); err != nil {
		t.Fatalf("InsertAppointment(adjacent) error = %v", err)
	}

	got, _ := store.ListAppointments(ctx, testStart, testStart.Add(24*time.Hour))
	if len(got) != 2 || !got[0].StartTime.Equal(testStart) {
		t.Fatalf("ListAppointments() = %+v", got)
	}
}

func TestMemoryStoreConcurrentBookingOnlyOneWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	appt := Appointment{UserID: "u1", StartTime: testStart, EndTime: testStart.Add(time.Hour)}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.InsertAppointment(ctx, appt); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}
