package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type userInfoRow struct {
	bun.BaseModel `bun:"table:user_info"`

	ID        string    `bun:"id,pk"`
	Nickname  string    `bun:"nickname,unique,notnull"`
	Name      string    `bun:"name"`
	Email     string    `bun:"email"`
	Phone     string    `bun:"phone"`
	Plan      string    `bun:"plan"`
	Notes     string    `bun:"notes"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type supportCallRow struct {
	bun.BaseModel `bun:"table:support_calls"`

	ID               string    `bun:"id,pk"`
	UserID           string    `bun:"user_id,notnull"`
	Nickname         string    `bun:"nickname"`
	IssueDescription string    `bun:"issue_description,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type appointmentRow struct {
	bun.BaseModel `bun:"table:appointments"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	StartTime time.Time `bun:"start_time,notnull"`
	EndTime   time.Time `bun:"end_time,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// PostgresStore keeps records in the user_info, support_calls and
// appointments tables.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InitSchema(ctx context.Context) error {
	models := []any{
		(*userInfoRow)(nil),
		(*supportCallRow)(nil),
		(*appointmentRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create records schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetUserInfo(ctx context.Context, nickname string) (UserInfo, error) {
	var row userInfoRow
	err := s.db.NewSelect().
		Model(&row).
		Where("nickname = ?", strings.TrimSpace(nickname)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserInfo{}, fmt.Errorf("%w: user %q", ErrNotFound, nickname)
		}
		return UserInfo{}, fmt.Errorf("select user_info: %w", err)
	}
	return UserInfo{
		ID:        row.ID,
		Nickname:  row.Nickname,
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Plan:      row.Plan,
		Notes:     row.Notes,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *PostgresStore) InsertSupportCall(ctx context.Context, call SupportCall) (SupportCall, error) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	call.CreatedAt = time.Now().UTC()
	row := supportCallRow{
		ID:               call.ID,
		UserID:           call.UserID,
		Nickname:         call.Nickname,
		IssueDescription: call.IssueDescription,
		CreatedAt:        call.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return SupportCall{}, fmt.Errorf("insert support call: %w", err)
	}
	return call, nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return listAppointments(ctx, s.db, from, to)
}

// InsertAppointment checks for overlap and inserts inside one
// serializable transaction, so two concurrent bookings of the same slot
// cannot both commit.
func (s *PostgresStore) InsertAppointment(ctx context.Context, appt Appointment) (Appointment, error) {
	if !appt.StartTime.Before(appt.EndTime) {
		return Appointment{}, errors.New("appointment end must be after start")
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	appt.CreatedAt = time.Now().UTC()

	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		taken, err := listAppointments(ctx, tx, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return fmt.Errorf("%w: %s", ErrSlotTaken, taken[0].StartTime.Format(time.RFC3339))
		}
		row := appointmentRow{
			ID:        appt.ID,
			UserID:    appt.UserID,
			StartTime: appt.StartTime,
			EndTime:   appt.EndTime,
			CreatedAt: appt.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

func listAppointments(ctx context.Context, db bun.IDB, from, to time.Time) ([]Appointment, error) {
	var rows []appointmentRow
	err := db.NewSelect().
		Model(&rows).
		Where("start_time < ?", to.UTC()).
		Where("end_time > ?", from.UTC()).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	out := make([]Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, Appointment{
			ID:        r.ID,
			UserID:    r.UserID,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
