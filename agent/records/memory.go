package records

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. Used for local runs and tests.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]UserInfo
	calls        []SupportCall
	appointments []Appointment
	now          func() time.Time
}

func NewMemoryStore(users ...UserInfo) *MemoryStore {
	s := &MemoryStore{
		users: make(map[string]UserInfo, len(users)),
		now:   time.Now,
	}
	for _, u := range users {
		s.PutUser(u)
	}
	return s
}

func (s *MemoryStore) PutUser(u UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[strings.TrimSpace(u.Nickname)] = u
}

func (s *MemoryStore) GetUserInfo(_ context.Context, nickname string) (UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.TrimSpace(nickname)]
	if !ok {
		return UserInfo{}, fmt.Errorf("%w: user %q", ErrNotFound, nickname)
	}
	return u, nil
}

func (s *MemoryStore) InsertSupportCall(_ context.Context, call SupportCall) (SupportCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	call.CreatedAt = s.now().UTC()
	s.calls = append(s.calls, call)
	return call, nil
}

func (s *MemoryStore) SupportCalls() []SupportCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SupportCall(nil), s.calls...)
}

func (s *MemoryStore) ListAppointments(_ context.Context, from, to time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *MemoryStore) InsertAppointment(_ context.Context, appt Appointment) (Appointment, error) {
	if !appt.StartTime.Before(appt.EndTime) {
		return Appointment{}, fmt.Errorf("appointment end must be after start")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appointments {
		if appt.StartTime.Before(a.EndTime) && a.StartTime.Before(appt.EndTime) {
			return Appointment{}, fmt.Errorf("%w: %s", ErrSlotTaken, a.StartTime.Format(time.RFC3339))
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	appt.CreatedAt = s.now().UTC()
	s.appointments = append(s.appointments, appt)
	return appt, nil
}
