package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
)

const DateLayout = "01/02/2006"

var (
	ErrInvalidDate    = errors.New("invalid date, use MM/DD/YYYY")
	ErrInvalidTime    = errors.New("invalid time, use HH:MM")
	ErrDateInPast     = errors.New("date is in the past")
	ErrDateOutOfRange = errors.New("date is beyond the booking window")
	ErrTooSoon        = errors.New("appointments can be booked from the next day on")
	ErrClosedWeekday  = errors.New("weekday is not available for appointments")
	ErrOutsideHours   = errors.New("slot is outside business hours")
	ErrMisaligned     = errors.New("slot does not start on a booking step")
)

type Config struct {
	TimeZone          string   `split_words:"true" default:"America/Sao_Paulo"`
	StartTime         string   `split_words:"true" default:"09:00"`
	EndTime           string   `split_words:"true" default:"18:00"`
	DurationMinutes   int      `split_words:"true" default:"60"`
	StepMinutes       int      `split_words:"true" default:"60"`
	AvailableWeekdays []string `split_words:"true" default:"monday,tuesday,wednesday,thursday,friday"`
	MaxBookAheadDays  int      `split_words:"true" default:"15"`
}

func (c *Config) Validate() error {
	_, err := NewPolicy(*c)
	return err
}

// Slot is a half-open interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Policy holds the business rules for appointments. All day boundaries
// are computed in the policy time zone.
type Policy struct {
	loc       *time.Location
	openMin   int
	closeMin  int
	duration  time.Duration
	step      time.Duration
	weekdays  map[time.Weekday]bool
	aheadDays int

	startLabel string
	endLabel   string
	zoneName   string
	dayNames   []string
}

func NewPolicy(cfg Config) (*Policy, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(cfg.TimeZone))
	if err != nil {
		return nil, fmt.Errorf("booking time zone: %w", err)
	}
	openMin, err := parseClock(cfg.StartTime)
	if err != nil {
		return nil, fmt.Errorf("booking start time: %w", err)
	}
	closeMin, err := parseClock(cfg.EndTime)
	if err != nil {
		return nil, fmt.Errorf("booking end time: %w", err)
	}
	if closeMin <= openMin {
		return nil, errors.New("booking end time must be after start time")
	}
	if cfg.DurationMinutes <= 0 {
		return nil, errors.New("booking duration must be positive")
	}
	step := cfg.StepMinutes
	if step <= 0 {
		step = cfg.DurationMinutes
	}
	if cfg.MaxBookAheadDays < 1 {
		return nil, errors.New("max book ahead days must be >= 1")
	}

	weekdays := make(map[time.Weekday]bool, len(cfg.AvailableWeekdays))
	names := make([]string, 0, len(cfg.AvailableWeekdays))
	for _, raw := range cfg.AvailableWeekdays {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", raw)
		}
		if !weekdays[day] {
			names = append(names, name)
		}
		weekdays[day] = true
	}
	if len(weekdays) == 0 {
		return nil, errors.New("at least one available weekday is required")
	}

	return &Policy{
		loc:        loc,
		openMin:    openMin,
		closeMin:   closeMin,
		duration:   time.Duration(cfg.DurationMinutes) * time.Minute,
		step:       time.Duration(step) * time.Minute,
		weekdays:   weekdays,
		aheadDays:  cfg.MaxBookAheadDays,
		startLabel: formatClock(openMin),
		endLabel:   formatClock(closeMin),
		zoneName:   loc.String(),
		dayNames:   names,
	}, nil
}

func (p *Policy) Location() *time.Location { return p.loc }
func (p *Policy) Duration() time.Duration  { return p.duration }

// ParseDate reads MM/DD/YYYY as midnight in the policy zone. An empty
// string means today.
func (p *Policy) ParseDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p.midnight(now), nil
	}
	day, err := time.ParseInLocation(DateLayout, raw, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return day, nil
}

// SlotAt builds the slot that starts at clock (HH:MM) on day.
func (p *Policy) SlotAt(day time.Time, clock string) (Slot, error) {
	minutes, err := parseClock(clock)
	if err != nil {
		return Slot{}, err
	}
	start := p.midnight(day).Add(time.Duration(minutes) * time.Minute)
	return Slot{Start: start, End: start.Add(p.duration)}, nil
}

// ValidateQueryDate accepts any day from today up to the booking window.
func (p *Policy) ValidateQueryDate(day, now time.Time) error {
	today := p.midnight(now)
	day = p.midnight(day)
	if day.Before(today) {
		return fmt.Errorf("%w: %s", ErrDateInPast, day.Format(DateLayout))
	}
	if limit := today.AddDate(0, 0, p.aheadDays); day.After(limit) {
		return fmt.Errorf("%w: allowed until %s", ErrDateOutOfRange, limit.Format(DateLayout))
	}
	return nil
}

// ValidateSlot checks a proposed booking against every rule except
// occupancy.
func (p *Policy) ValidateSlot(slot Slot, now time.Time) error {
	start := slot.Start.In(p.loc)
	day := p.midnight(start)
	if err := p.ValidateQueryDate(day, now); err != nil {
		return err
	}
	if !day.After(p.midnight(now)) {
		return ErrTooSoon
	}
	if !p.weekdays[start.Weekday()] {
		return fmt.Errorf("%w: %s", ErrClosedWeekday, strings.ToLower(start.Weekday().String()))
	}
	if slot.End.Sub(slot.Start) != p.duration {
		return fmt.Errorf("%w: slot must last %d minutes", ErrOutsideHours, int(p.duration.Minutes()))
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + int(p.duration.Minutes())
	if startMin < p.openMin || endMin > p.closeMin {
		return fmt.Errorf("%w: %s - %s", ErrOutsideHours, p.startLabel, p.endLabel)
	}
	if (startMin-p.openMin)%int(p.step.Minutes()) != 0 || start.Second() != 0 {
		return ErrMisaligned
	}
	return nil
}

// Window is the business-hours interval of day.
func (p *Policy) Window(day time.Time) Slot {
	base := p.midnight(day)
	return Slot{
		Start: base.Add(time.Duration(p.openMin) * time.Minute),
		End:   base.Add(time.Duration(p.closeMin) * time.Minute),
	}
}

type Availability struct {
	Date               string   `json:"date_requested"`
	Weekday            string   `json:"weekday"`
	Open               bool     `json:"open"`
	FreeTimes          []string `json:"free_times"`
	BusyTimes          []string `json:"busy_times"`
	WorkdayStart       string   `json:"workday_start"`
	WorkdayEnd         string   `json:"workday_end"`
	TimeZone           string   `json:"time_zone"`
	DurationMinutes    int      `json:"duration_minutes"`
	StepMinutes        int      `json:"step_minutes"`
	BookAheadLimitDays int      `json:"book_ahead_limit_days"`
	Rules              []string `json:"rules"`
}

// Availability lists the candidate start times of day, split into free
// and busy. Starts before the earliest bookable moment are omitted.
func (p *Policy) Availability(day time.Time, busy []Slot, now time.Time) Availability {
	day = p.midnight(day)
	out := Availability{
		Date:               day.Format(DateLayout),
		Weekday:            strings.ToLower(day.Weekday().String()),
		Open:               p.weekdays[day.Weekday()],
		FreeTimes:          []string{},
		BusyTimes:          []string{},
		WorkdayStart:       p.startLabel,
		WorkdayEnd:         p.endLabel,
		TimeZone:           p.zoneName,
		DurationMinutes:    int(p.duration.Minutes()),
		StepMinutes:        int(p.step.Minutes()),
		BookAheadLimitDays: p.aheadDays,
		Rules:              p.rules(),
	}
	if !out.Open {
		return out
	}

	sorted := append([]Slot(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	bookable := day.After(p.midnight(now))
	window := p.Window(day)
	for start := window.Start; !start.Add(p.duration).After(window.End); start = start.Add(p.step) {
		candidate := Slot{Start: start, End: start.Add(p.duration)}
		label := start.Format("15:04")
		taken := false
		for _, b := range sorted {
			if candidate.Overlaps(b) {
				taken = true
				break
			}
		}
		switch {
		case taken:
			out.BusyTimes = append(out.BusyTimes, label)
		case bookable:
			out.FreeTimes = append(out.FreeTimes, label)
		}
	}
	return out
}

func (p *Policy) rules() []string {
	step := int(p.step.Minutes())
	return []string{
		fmt.Sprintf("Business hours: %s - %s (%s time).", p.startLabel, p.endLabel, p.zoneName),
		fmt.Sprintf("Available weekdays: %s.", strings.Join(p.dayNames, ", ")),
		fmt.Sprintf("Appointments only up to %d days in advance, starting tomorrow.", p.aheadDays),
		fmt.Sprintf("Interval between options: %d minutes.", step),
		"Respect already busy times.",
		"It is FORBIDDEN to suggest any option in the past, even if it is not listed as busy.",
	}
}

func (p *Policy) midnight(t time.Time) time.Time {
	local := t.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Terms is the human-readable form of the policy for prompts.
type Terms struct {
	StartTime        string
	EndTime          string
	TimeZone         string
	Weekdays         []string
	DurationMinutes  int
	StepMinutes      int
	MaxBookAheadDays int
	Today            string
}

func (p *Policy) Terms(now time.Time) Terms {
	return Terms{
		StartTime:        p.startLabel,
		EndTime:          p.endLabel,
		TimeZone:         p.zoneName,
		Weekdays:         append([]string(nil), p.dayNames...),
		DurationMinutes:  int(p.duration.Minutes()),
		StepMinutes:      int(p.step.Minutes()),
		MaxBookAheadDays: p.aheadDays,
		Today:            now.In(p.loc).Format(DateLayout + " (Monday)"),
	}
}
