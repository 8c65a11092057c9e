package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tanpawarit/chative-support-team/agent/booking"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/records"
)

const appointmentAddedMessage = "Appointment added successfully!"

type AppointmentOutput struct {
	Message       string `json:"message"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

func (g *Gateway) now() time.Time {
	return g.deps.Now()
}

func (g *Gateway) getAppointments(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	if g.deps.Policy == nil || g.deps.Records == nil {
		return errorResult("scheduling is not configured")
	}
	policy := g.deps.Policy
	now := g.now()

	day, err := policy.ParseDate(stringArg(req.Args, "date"), now)
	if err != nil {
		return errorResult(err.Error())
	}
	if err := policy.ValidateQueryDate(day, now); err != nil {
		return errorResult(err.Error())
	}

	busy, err := g.busySlots(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return errorResult("could not load appointments: " + err.Error())
	}
	return contractx.ToolResult{Result: policy.Availability(day, busy, now)}
}

// precheckAppointment validates the slot and checks it is free without
// writing anything. A free slot comes back as RequiresApproval.
func (g *Gateway) precheckAppointment(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	slot, errResult := g.requestedSlot(req)
	if errResult != nil {
		return *errResult
	}
	taken, err := g.busySlots(ctx, slot.Start, slot.End)
	if err != nil {
		return errorResult("could not load appointments: " + err.Error())
	}
	if len(taken) > 0 {
		return errorResult(unavailableMessage(g.deps.Policy, slot))
	}

	out := g.appointmentOutput(slot, "")
	return contractx.ToolResult{
		Result:           out,
		RequiresApproval: true,
		ApprovalDescription: fmt.Sprintf(
			"Trying to call `add_appointment` for user %s on %s from %s to %s (%s).",
			req.UserID, out.Date, out.StartTime, out.EndTime, g.deps.Policy.Location(),
		),
	}
}

func (g *Gateway) commitAppointment(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	slot, errResult := g.requestedSlot(req)
	if errResult != nil {
		return *errResult, nil
	}
	appt, err := g.deps.Records.InsertAppointment(ctx, records.Appointment{
		UserID:    req.UserID,
		StartTime: slot.Start,
		EndTime:   slot.End,
	})
	if err != nil {
		if errors.Is(err, records.ErrSlotTaken) {
			return errorResult(unavailableMessage(g.deps.Policy, slot)), nil
		}
		return contractx.ToolResult{}, fmt.Errorf("%w: insert appointment: %v", contractx.ErrCollaboratorUnavailable, err)
	}
	return contractx.ToolResult{Result: g.appointmentOutput(slot, appt.ID)}, nil
}

func (g *Gateway) requestedSlot(req contractx.ToolRequest) (booking.Slot, *contractx.ToolResult) {
	if g.deps.Policy == nil || g.deps.Records == nil {
		r := errorResult("scheduling is not configured")
		return booking.Slot{}, &r
	}
	policy := g.deps.Policy
	now := g.now()

	date := stringArg(req.Args, "date")
	clock := stringArg(req.Args, "time")
	if date == "" || clock == "" {
		r := errorResult("date (MM/DD/YYYY) and time (HH:MM) are required")
		return booking.Slot{}, &r
	}
	day, err := policy.ParseDate(date, now)
	if err != nil {
		r := errorResult(err.Error())
		return booking.Slot{}, &r
	}
	slot, err := policy.SlotAt(day, clock)
	if err != nil {
		r := errorResult(err.Error())
		return booking.Slot{}, &r
	}
	if err := policy.ValidateSlot(slot, now); err != nil {
		r := errorResult(err.Error())
		return booking.Slot{}, &r
	}
	return slot, nil
}

func (g *Gateway) busySlots(ctx context.Context, from, to time.Time) ([]booking.Slot, error) {
	appts, err := g.deps.Records.ListAppointments(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]booking.Slot, 0, len(appts))
	for _, a := range appts {
		out = append(out, booking.Slot{Start: a.StartTime, End: a.EndTime})
	}
	return out, nil
}

func (g *Gateway) appointmentOutput(slot booking.Slot, id string) AppointmentOutput {
	loc := g.deps.Policy.Location()
	out := AppointmentOutput{
		AppointmentID: id,
		Date:          slot.Start.In(loc).Format(booking.DateLayout),
		StartTime:     slot.Start.In(loc).Format("15:04"),
		EndTime:       slot.End.In(loc).Format("15:04"),
	}
	if id != "" {
		out.Message = appointmentAddedMessage
	}
	return out
}

func unavailableMessage(policy *booking.Policy, slot booking.Slot) string {
	start := slot.Start.In(policy.Location())
	return fmt.Sprintf("The slot %s at %s is unavailable. Check get_appointments and offer another time.",
		start.Format(booking.DateLayout), start.Format("15:04"))
}
