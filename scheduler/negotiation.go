package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chorepoints/models"
	"chorepoints/notify"
)

// DefaultNegotiationTTL bounds how long an offer stays open. Expiry is
// checked at read time; there is no background sweep.
const DefaultNegotiationTTL = 24 * time.Hour

// CreateSplitOffer opens a point-split offer: the current assignee proposes
// that another kid take the task over in exchange for splitPoints of its
// reward on approval.
func (s *Scheduler) CreateSplitOffer(ctx context.Context, taskID, fromID, toID uint, splitPoints int, now time.Time) (*models.Negotiation, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Finished() || task.IsTemplate() {
		return nil, ErrNotEditable
	}
	if task.AssigneeID == nil || *task.AssigneeID != fromID {
		return nil, fmt.Errorf("task %d is not assigned to user %d", taskID, fromID)
	}
	if splitPoints < 0 || splitPoints > task.Points {
		return nil, ErrInsufficientPoints
	}

	n := models.Negotiation{
		Code:        uuid.NewString(),
		TaskID:      taskID,
		FromUserID:  fromID,
		ToUserID:    toID,
		Kind:        models.NegotiationSiblingSplit,
		SplitPoints: splitPoints,
		Status:      models.NegotiationPending,
		ExpiresAt:   now.Add(DefaultNegotiationTTL),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("create negotiation: %w", err)
	}
	s.notify(notify.EventNegotiation, toID,
		fmt.Sprintf("Offer: take over %q for %d of its %d points", task.Title, task.Points-splitPoints, task.Points))
	return &n, nil
}

// CreateRenegotiation opens a renegotiation with a parent: the assignee asks
// for the task to be worth offerPoints instead of its current value.
func (s *Scheduler) CreateRenegotiation(ctx context.Context, taskID, fromID, toID uint, offerPoints int, now time.Time) (*models.Negotiation, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Finished() || task.IsTemplate() {
		return nil, ErrNotEditable
	}
	if task.AssigneeID == nil || *task.AssigneeID != fromID {
		return nil, fmt.Errorf("task %d is not assigned to user %d", taskID, fromID)
	}
	if offerPoints <= 0 {
		return nil, fmt.Errorf("offer must be positive")
	}

	n := models.Negotiation{
		Code:        uuid.NewString(),
		TaskID:      taskID,
		FromUserID:  fromID,
		ToUserID:    toID,
		Kind:        models.NegotiationParentRenegotiate,
		OfferPoints: offerPoints,
		Status:      models.NegotiationPending,
		ExpiresAt:   now.Add(DefaultNegotiationTTL),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("create negotiation: %w", err)
	}
	s.notify(notify.EventNegotiation, toID,
		fmt.Sprintf("Request: %q for %d points instead of %d", task.Title, offerPoints, task.Points))
	return &n, nil
}

// AcceptNegotiation applies the offer: a sibling split hands the task to the
// acceptor, a renegotiation updates the task's point value. The transition is
// a conditional UPDATE on (status=pending, not expired), so two concurrent
// accepts, or an accept racing a withdraw, resolve to exactly one winner.
func (s *Scheduler) AcceptNegotiation(ctx context.Context, code string, userID uint, now time.Time) (*models.Negotiation, error) {
	n, err := s.loadNegotiation(ctx, code)
	if err != nil {
		return nil, err
	}
	if n.ToUserID != userID {
		return nil, ErrNegotiationClosed
	}
	if expired := s.lazyExpire(ctx, n, now); expired {
		return nil, ErrNegotiationClosed
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Negotiation{}).
			Where("id = ? AND status = ? AND expires_at > ?", n.ID, models.NegotiationPending, now).
			Update("status", models.NegotiationAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNegotiationClosed
		}

		open := []string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusRejected}
		switch n.Kind {
		case models.NegotiationSiblingSplit:
			// Hand the task over; the accepted negotiation's split is honored
			// later, when a parent approves the finished work.
			res = tx.Model(&models.Task{}).
				Where("id = ? AND assignee_id = ? AND status IN ?", n.TaskID, n.FromUserID, open).
				Update("assignee_id", n.ToUserID)
		case models.NegotiationParentRenegotiate:
			res = tx.Model(&models.Task{}).
				Where("id = ? AND assignee_id = ? AND status IN ?", n.TaskID, n.FromUserID, open).
				Update("points", n.OfferPoints)
		default:
			return fmt.Errorf("unknown negotiation kind %q", n.Kind)
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Task finished or reassigned while the offer sat open.
			return ErrNegotiationClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	n.Status = models.NegotiationAccepted
	s.notify(notify.EventNegotiation, n.FromUserID, "Your task offer was accepted")
	return n, nil
}

// ResolveNegotiation handles reject (by the recipient) and withdraw (by the
// sender). Both are conditional on the offer still being open.
func (s *Scheduler) ResolveNegotiation(ctx context.Context, code string, userID uint, toStatus string, now time.Time) error {
	n, err := s.loadNegotiation(ctx, code)
	if err != nil {
		return err
	}
	switch toStatus {
	case models.NegotiationRejected:
		if n.ToUserID != userID {
			return ErrNegotiationClosed
		}
	case models.NegotiationWithdrawn:
		if n.FromUserID != userID {
			return ErrNegotiationClosed
		}
	default:
		return fmt.Errorf("unsupported negotiation transition %q", toStatus)
	}
	if expired := s.lazyExpire(ctx, n, now); expired {
		return ErrNegotiationClosed
	}

	res := s.db.WithContext(ctx).Model(&models.Negotiation{}).
		Where("id = ? AND status = ? AND expires_at > ?", n.ID, models.NegotiationPending, now).
		Update("status", toStatus)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNegotiationClosed
	}
	other := n.FromUserID
	if userID == n.FromUserID {
		other = n.ToUserID
	}
	s.notify(notify.EventNegotiation, other, "The task offer was "+toStatus)
	return nil
}

// AcceptedSplit returns the accepted split negotiation for a task, if any.
// The approval flow uses it to divide the reward between the original
// assignee and the kid who took the task over.
func (s *Scheduler) AcceptedSplit(ctx context.Context, taskID uint) (*models.Negotiation, error) {
	var n models.Negotiation
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND kind = ? AND status = ?",
			taskID, models.NegotiationSiblingSplit, models.NegotiationAccepted).
		Order("id DESC").First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Scheduler) loadNegotiation(ctx context.Context, code string) (*models.Negotiation, error) {
	var n models.Negotiation
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNegotiationClosed
		}
		return nil, err
	}
	return &n, nil
}

// lazyExpire flips a pending-but-past-expiry offer to expired on access.
// Purely cosmetic for listings; correctness comes from the expires_at
// condition on every transition.
func (s *Scheduler) lazyExpire(ctx context.Context, n *models.Negotiation, now time.Time) bool {
	if n.Status != models.NegotiationPending || now.Before(n.ExpiresAt) {
		return n.Status != models.NegotiationPending
	}
	_ = s.db.WithContext(ctx).Model(&models.Negotiation{}).
		Where("id = ? AND status = ?", n.ID, models.NegotiationPending).
		Update("status", models.NegotiationExpired).Error
	n.Status = models.NegotiationExpired
	return true
}
