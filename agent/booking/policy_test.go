package booking

import (
	"errors"
	"testing"
	"time"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()

	p, err := NewPolicy(Config{
		TimeZone:          "America/Sao_Paulo",
		StartTime:         "09:00",
		EndTime:           "12:00",
		DurationMinutes:   60,
		StepMinutes:       60,
		AvailableWeekdays: []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		MaxBookAheadDays:  15,
	})
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	return p
}

// Monday 09/29/2025 10:00 in São Paulo.
func testNow(p *Policy) time.Time {
	return time.Date(2025, 9, 29, 10, 0, 0, 0, p.Location())
}

func TestNewPolicyRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]Config{
		"zone":     {TimeZone: "Nowhere/City", StartTime: "09:00", EndTime: "18:00", DurationMinutes: 60, AvailableWeekdays: []string{"monday"}, MaxBookAheadDays: 1},
		"order":    {TimeZone: "UTC", StartTime: "18:00", EndTime: "09:00", DurationMinutes: 60, AvailableWeekdays: []string{"monday"}, MaxBookAheadDays: 1},
		"weekday":  {TimeZone: "UTC", StartTime: "09:00", EndTime: "18:00", DurationMinutes: 60, AvailableWeekdays: []string{"funday"}, MaxBookAheadDays: 1},
		"duration": {TimeZone: "UTC", StartTime: "09:00", EndTime: "18:00", AvailableWeekdays: []string{"monday"}, MaxBookAheadDays: 1},
		"ahead":    {TimeZone: "UTC", StartTime: "09:00", EndTime: "18:00", DurationMinutes: 60, AvailableWeekdays: []string{"monday"}},
	}
	for name, cfg := range cases {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewPolicy(cfg); err == nil {
				t.Fatal("NewPolicy() error = nil")
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	now := testNow(p)

	day, err := p.ParseDate("09/30/2025", now)
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if day.Day() != 30 || day.Hour() != 0 || day.Location() != p.Location() {
		t.Fatalf("ParseDate() = %v", day)
	}

	today, _ := p.ParseDate("", now)
	if today.Day() != 29 {
		t.Fatalf("empty date = %v, want today", today)
	}

	if _, err := p.ParseDate("2025-09-30", now); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("ParseDate(iso) error = %v", err)
	}
}

func TestValidateSlot(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	now := testNow(p)

	slotOn := func(date, clock string) Slot {
		day, err := p.ParseDate(date, now)
		if err != nil {
			t.Fatalf("ParseDate(%q) error = %v", date, err)
		}
		slot, err := p.SlotAt(day, clock)
		if err != nil {
			t.Fatalf("SlotAt(%q) error = %v", clock, err)
		}
		return slot
	}

	tests := []struct {
		name string
		slot Slot
		want error
	}{
		{name: "ok", slot: slotOn("09/30/2025", "10:00")},
		{name: "today", slot: slotOn("09/29/2025", "11:00"), want: ErrTooSoon},
		{name: "past", slot: slotOn("09/26/2025", "10:00"), want: ErrDateInPast},
		{name: "too far", slot: slotOn("10/20/2025", "10:00"), want: ErrDateOutOfRange},
		{name: "saturday", slot: slotOn("10/04/2025", "10:00"), want: ErrClosedWeekday},
		{name: "before open", slot: slotOn("09/30/2025", "08:00"), want: ErrOutsideHours},
		{name: "past close", slot: slotOn("09/30/2025", "11:30"), want: ErrOutsideHours},
		{name: "misaligned", slot: slotOn("09/30/2025", "09:30"), want: ErrMisaligned},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.ValidateSlot(tt.slot, now)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ValidateSlot() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateSlot() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAvailabilitySplitsFreeAndBusy(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	now := testNow(p)
	day, _ := p.ParseDate("09/30/2025", now)
	busy, _ := p.SlotAt(day, "10:00")

	got := p.Availability(day, []Slot{busy}, now)
	if !got.Open {
		t.Fatal("tuesday should be open")
	}
	if len(got.FreeTimes) != 2 || got.FreeTimes[0] != "09:00" || got.FreeTimes[1] != "11:00" {
		t.Fatalf("FreeTimes = %v", got.FreeTimes)
	}
	if len(got.BusyTimes) != 1 || got.BusyTimes[0] != "10:00" {
		t.Fatalf("BusyTimes = %v", got.BusyTimes)
	}
	if got.Date != "09/30/2025" || got.WorkdayEnd != "12:00" {
		t.Fatalf("context = %+v", got)
	}
}

func TestAvailabilityTodayOffersNothing(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	now := testNow(p)
	got := p.Availability(now, nil, now)
	if len(got.FreeTimes) != 0 {
		t.Fatalf("FreeTimes today = %v, want none", got.FreeTimes)
	}
}

func TestAvailabilityClosedDay(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	now := testNow(p)
	sunday, _ := p.ParseDate("10/05/2025", now)
	got := p.Availability(sunday, nil, now)
	if got.Open || len(got.FreeTimes) != 0 {
		t.Fatalf("sunday availability = %+v", got)
	}
}

func TestTerms(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	got := p.Terms(testNow(p))
	if got.StartTime != "09:00" || got.EndTime != "12:00" || got.TimeZone != "America/Sao_Paulo" {
		t.Fatalf("Terms() hours = %+v", got)
	}
	if len(got.Weekdays) != 5 || got.DurationMinutes != 60 || got.MaxBookAheadDays != 15 {
		t.Fatalf("Terms() = %+v", got)
	}
	if got.Today != "09/29/2025 (Monday)" {
		t.Fatalf("Today = %q", got.Today)
	}
}
