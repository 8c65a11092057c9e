package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/agents/finalizer"
	"github.com/tanpawarit/chative-support-team/agent/approval"
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/memory"
	"github.com/tanpawarit/chative-support-team/agent/moderation"
	nodex "github.com/tanpawarit/chative-support-team/agent/nodes"
	promptx "github.com/tanpawarit/chative-support-team/agent/prompt"
	statex "github.com/tanpawarit/chative-support-team/agent/state"
	logx "github.com/tanpawarit/chative-support-team/pkg/logger"
	"github.com/tanpawarit/chative-support-team/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidUser    = nodex.ErrInvalidUser
)

type Config struct {
	// MaxDispatches caps specialist dispatches per request. Zero means
	// twice the number of registered specialists.
	MaxDispatches int           `split_words:"true" default:"0"`
	LockTimeout   time.Duration `split_words:"true" default:"30s"`
}

type Deps struct {
	Store     statex.Store
	Locker    statex.Locker
	Gate      *moderation.Gate
	Compactor *memory.Compactor
	Registry  contractx.Registry
	Router    contractx.Router
	Approvals *approval.Manager
	Notifier  contractx.Notifier
	Finalizer *finalizer.Finalizer
	Prompts   *promptx.PromptSet
	Metrics   *metrics.Metrics
	Now       func() time.Time
	NewID     func() string
}

type Request struct {
	UserID        string
	Message       string
	HumanResponse bool
	ResumeToken   string
}

type PendingInfo struct {
	ResumeToken string
	Description string
	ExpiresAt   time.Time
}

// Reply carries the final text, or the approval prompt when Pending is set.
type Reply struct {
	Text    string
	Pending *PendingInfo
}

// Orchestrator is the turn controller. Every turn of a conversation runs
// under that conversation's lock.
type Orchestrator struct {
	deps          Deps
	maxDispatches int
	lockTimeout   time.Duration
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("state store is required")
	case deps.Gate == nil:
		return nil, errors.New("safety gate is required")
	case deps.Compactor == nil:
		return nil, errors.New("history compactor is required")
	case deps.Registry == nil:
		return nil, errors.New("specialist registry is required")
	case deps.Router == nil:
		return nil, errors.New("router is required")
	case deps.Finalizer == nil:
		return nil, errors.New("finalizer is required")
	case deps.Prompts == nil:
		return nil, errors.New("prompt set is required")
	}
	if deps.Locker == nil {
		deps.Locker = statex.NewKeyedMutex()
	}
	if deps.Approvals == nil {
		deps.Approvals = approval.NewManager(approval.Config{TTL: 24 * time.Hour, AffirmativeToken: "YES"})
	}
	if deps.Notifier == nil {
		deps.Notifier = approval.NopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	maxDispatches := cfg.MaxDispatches
	if maxDispatches <= 0 {
		maxDispatches = 2 * len(deps.Registry.Entries())
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 30 * time.Second
	}
	return &Orchestrator{deps: deps, maxDispatches: maxDispatches, lockTimeout: lockTimeout}, nil
}

func (o *Orchestrator) Invoke(ctx context.Context, req Request) (Reply, error) {
	started := o.deps.Now()
	in, err := nodex.ValidateRequest(nodex.TurnInput{
		UserID:        req.UserID,
		Message:       req.Message,
		HumanResponse: req.HumanResponse,
		ResumeToken:   req.ResumeToken,
	}, o.deps.Now, o.deps.NewID)
	if err != nil {
		o.deps.Metrics.ObserveTurn(contractx.Category(err), 0)
		return Reply{}, err
	}
	ctx = logx.WithConversation(ctx, in.ConversationID, in.TurnID)

	lockCtx, cancel := context.WithTimeout(ctx, o.lockTimeout)
	unlock, err := o.deps.Locker.Lock(lockCtx, in.ConversationID)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: acquire conversation lock: %v", contractx.ErrCollaboratorUnavailable, err)
		o.deps.Metrics.ObserveTurn(contractx.Category(err), o.deps.Now().Sub(started))
		return Reply{}, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("release conversation lock")
		}
	}()

	reply, err := o.runTurn(ctx, in)

	outcome := "completed"
	switch {
	case err != nil:
		outcome = contractx.Category(err)
		log.Ctx(ctx).Error().Err(err).Str("category", outcome).Msg("turn failed")
	case reply.Pending != nil:
		outcome = "suspended"
	}
	o.deps.Metrics.ObserveTurn(outcome, o.deps.Now().Sub(started))
	return reply, err
}

func (o *Orchestrator) runTurn(ctx context.Context, in *nodex.TurnState) (Reply, error) {
	if !in.Human {
		// The gate runs before state is touched.
		if err := nodex.ScreenInbound(ctx, in, o.deps.Gate); err != nil {
			if errors.Is(err, contractx.ErrInputRejected) {
				o.deps.Metrics.ModerationRejected(string(moderation.Inbound))
			}
			return Reply{}, err
		}
	}

	if _, err := nodex.LoadOrCreateState(ctx, in, o.deps.Store); err != nil {
		return Reply{}, err
	}
	if in.Human {
		return o.resumeTurn(ctx, in)
	}
	return o.startTurn(ctx, in)
}

func (o *Orchestrator) startTurn(ctx context.Context, in *nodex.TurnState) (Reply, error) {
	st := in.Session
	dropped, err := o.deps.Approvals.GuardRegular(st, in.Now)
	if err != nil {
		return Reply{}, err
	}
	if dropped != nil {
		o.deps.Metrics.Approval("expired")
		log.Ctx(ctx).Info().Str("tool", dropped.Tool).Msg("expired approval auto-rejected")
	}
	nodex.RecoverStaleTurn(ctx, in)

	st.BeginTurn(in.TurnID, in.Now)
	st.Append(statex.Message{Role: statex.RoleUser, Text: in.Text, At: in.Now})

	if err := nodex.CompactHistory(ctx, in, o.deps.Compactor); err != nil {
		return o.fail(ctx, in, err)
	}
	if err := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); err != nil {
		return Reply{}, err
	}
	return o.routeLoop(ctx, in)
}

func (o *Orchestrator) resumeTurn(ctx context.Context, in *nodex.TurnState) (Reply, error) {
	st := in.Session
	pending, err := o.deps.Approvals.Resume(st, in.ResumeToken, in.Now)
	if err != nil {
		if errors.Is(err, contractx.ErrApprovalExpired) {
			o.deps.Metrics.Approval("expired")
			if saveErr := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); saveErr != nil {
				log.Ctx(ctx).Warn().Err(saveErr).Msg("save expired approval")
			}
		}
		return Reply{}, err
	}

	// The resumed turn keeps its original id.
	if st.LastTurn != nil && st.LastTurn.ID != "" {
		in.TurnID = st.LastTurn.ID
		st.LastTurn.Status = statex.TurnRunning
		ctx = logx.WithConversation(ctx, in.ConversationID, in.TurnID)
	}

	approved := o.deps.Approvals.Approved(in.Text)
	log.Ctx(ctx).Info().Bool("approved", approved).Str("tool", pending.Tool).Msg("human decision")

	// Until the reply is applied nothing is saved, so the stored state stays
	// at the suspension and the same decision can be sent again.
	name, out, err := nodex.ResumeSpecialist(ctx, in, o.deps.Registry, contractx.ResumeRequest{
		Pending:  *pending,
		Approved: approved,
	})
	if err != nil {
		return Reply{}, err
	}

	st.TakePendingApproval()
	if approved {
		o.deps.Metrics.Approval("approved")
	} else {
		o.deps.Metrics.Approval("rejected")
	}
	nodex.ApplyDecision(in, pending, approved)
	if err := st.BeginDispatch(string(name)); err != nil {
		return o.fail(ctx, in, fmt.Errorf("%w: resume %s: %v", contractx.ErrValidation, name, err))
	}
	in.Dispatched = append(in.Dispatched, name)
	if err := nodex.ApplyResponded(in, name, out); err != nil {
		return o.fail(ctx, in, err)
	}
	if err := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); err != nil {
		return Reply{}, err
	}
	return o.routeLoop(ctx, in)
}

func (o *Orchestrator) routeLoop(ctx context.Context, in *nodex.TurnState) (Reply, error) {
	for {
		decision, err := o.deps.Router.Route(ctx, in.RouteInput())
		if err != nil {
			return o.fail(ctx, in, err)
		}
		name, ok := decision.Specialist()
		if !ok {
			break
		}
		if len(in.Dispatched) >= o.maxDispatches {
			return o.fail(ctx, in, fmt.Errorf("%w: %d dispatches in one turn", contractx.ErrRoutingExhausted, len(in.Dispatched)))
		}

		o.deps.Metrics.Dispatched(string(name))
		result, err := nodex.DispatchSpecialist(ctx, in, o.deps.Registry, name)
		if err != nil {
			return o.fail(ctx, in, err)
		}
		if req, ok := result.AsApproval(); ok {
			return o.suspend(ctx, in, req)
		}
		out, _ := result.AsResponded()
		if err := nodex.ApplyResponded(in, name, out); err != nil {
			return o.fail(ctx, in, err)
		}
		if err := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); err != nil {
			return Reply{}, err
		}
	}

	err := nodex.FinalizeReply(ctx, in, o.deps.Finalizer, o.deps.Gate)
	if err != nil && !errors.Is(err, contractx.ErrOutputRejected) {
		return o.fail(ctx, in, err)
	}
	if errors.Is(err, contractx.ErrOutputRejected) {
		o.deps.Metrics.ModerationRejected(string(moderation.Outbound))
	}
	if saveErr := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); saveErr != nil {
		return Reply{}, saveErr
	}
	if nodex.CompactAfterTurn(ctx, in, o.deps.Compactor) {
		if saveErr := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); saveErr != nil {
			log.Ctx(ctx).Warn().Err(saveErr).Msg("save compacted history")
		}
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: in.Reply}, nil
}

func (o *Orchestrator) suspend(ctx context.Context, in *nodex.TurnState, req contractx.ApprovalRequest) (Reply, error) {
	p, err := o.deps.Approvals.Suspend(in.Session, req, in.Now)
	if err != nil {
		return o.fail(ctx, in, err)
	}
	if err := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); err != nil {
		return Reply{}, err
	}
	in.Pending = &p
	o.deps.Metrics.Approval("requested")

	notice := contractx.ApprovalNotice{
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
		Specialist:     p.Specialist,
		Tool:           p.Tool,
		Description:    p.Description,
		ResumeToken:    p.ResumeToken,
		ExpiresAt:      p.ExpiresAt,
	}
	if err := o.deps.Notifier.NotifyApproval(ctx, notice); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("approval notification failed")
	}

	text, err := o.deps.Prompts.Render(promptx.ApprovalRequest, promptx.ApprovalData{Description: p.Description})
	if err != nil {
		return Reply{}, err
	}
	log.Ctx(ctx).Info().Str("specialist", p.Specialist).Str("tool", p.Tool).Msg("turn suspended for approval")
	return Reply{
		Text:    text,
		Pending: &PendingInfo{ResumeToken: p.ResumeToken, Description: p.Description, ExpiresAt: p.ExpiresAt},
	}, nil
}

// fail closes the turn as failed and saves it best effort. Messages
// already appended this turn are kept.
func (o *Orchestrator) fail(ctx context.Context, in *nodex.TurnState, cause error) (Reply, error) {
	if in.Session != nil {
		in.Session.EndTurn(statex.TurnFailed, cause.Error(), in.Now)
		if err := nodex.ValidateAndSaveState(ctx, in, o.deps.Store); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("save failed turn")
		}
	}
	return Reply{}, cause
}
