package reflection

import (
	"context"
	"errors"
	"fmt"

	"github.com/bowerhall/reverie/internal/logger"
	"github.com/bowerhall/reverie/internal/store"
)

var (
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrNotPending is returned when a status transition starts from the
	// wrong state, e.g. approving an already rejected proposal.
	ErrNotPending = errors.New("proposal is not pending")
)

// Approve applies a pending proposal and marks it approved. The mutation
// happens first; a proposal whose application fails stays pending so the
// reviewer can retry or reject it.
func (e *Engine) Approve(ctx context.Context, reflectionID, proposalID string) error {
	return e.transition(reflectionID, proposalID, func(p *store.Proposal) error {
		if p.Status != store.ProposalPending {
			return ErrNotPending
		}
		if err := e.apply(ctx, p); err != nil {
			return fmt.Errorf("apply proposal: %w", err)
		}
		p.Status = store.ProposalApproved
		logger.Info("proposal approved", "reflection", reflectionID, "type", p.Type, "action", p.Action)
		return nil
	})
}

// Reject marks a pending proposal rejected with an optional reason. The
// reason feeds future reflections so the model stops re-proposing it.
func (e *Engine) Reject(reflectionID, proposalID, reason string) error {
	return e.transition(reflectionID, proposalID, func(p *store.Proposal) error {
		if p.Status != store.ProposalPending {
			return ErrNotPending
		}
		p.Status = store.ProposalRejected
		p.RejectionReason = reason
		return nil
	})
}

// Unreject returns a rejected proposal to pending, clearing its reason.
// Approval is not reversible; rejection is.
func (e *Engine) Unreject(reflectionID, proposalID string) error {
	return e.transition(reflectionID, proposalID, func(p *store.Proposal) error {
		if p.Status != store.ProposalRejected {
			return fmt.Errorf("%w: only rejected proposals can be unrejected", ErrNotPending)
		}
		p.Status = store.ProposalPending
		p.RejectionReason = ""
		return nil
	})
}

// ApproveAll applies every pending proposal of a reflection in order. The
// first failure stops the batch; earlier applications stand and their
// statuses record exactly what happened.
func (e *Engine) ApproveAll(ctx context.Context, reflectionID string) error {
	r, err := e.kb.GetReflection(reflectionID)
	if err != nil {
		return err
	}
	for _, p := range r.Proposals {
		if p.Status != store.ProposalPending {
			continue
		}
		if err := e.Approve(ctx, reflectionID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) transition(reflectionID, proposalID string, fn func(*store.Proposal) error) error {
	r, err := e.kb.GetReflection(reflectionID)
	if err != nil {
		return err
	}

	for i := range r.Proposals {
		if r.Proposals[i].ID != proposalID {
			continue
		}
		if err := fn(&r.Proposals[i]); err != nil {
			return err
		}
		return e.kb.UpdateReflectionProposals(reflectionID, r.Proposals)
	}
	return ErrProposalNotFound
}
