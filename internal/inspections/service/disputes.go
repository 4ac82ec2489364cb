package service

import (
	"context"
	"time"

	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/internal/inspections/repository"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

const aggregateDispute = "dispute"

// DisputeListInput filters the admin dispute listing.
type DisputeListInput struct {
	Status *domain.DisputeStatus
	Type   *domain.DisputeType
	From   *time.Time
	To     *time.Time
	Page   Page
}

// newDispute is the single entry point that builds disputes, used both by
// explicit raising and by a disputing owner post-review.
func (s *Service) newDispute(insp *domain.Inspection, actor authz.Actor, in domain.RaiseInput, evidenceURLs []string, now time.Time) (*domain.Dispute, error) {
	return domain.NewDispute(insp.ID, actor.ID, in, evidenceURLs, now)
}

// RaiseDispute opens a dispute against an inspection that is completed or
// whose negotiation has settled.
func (s *Service) RaiseDispute(ctx context.Context, actor authz.Actor, inspectionID uuid.UUID, in domain.RaiseInput, files []evidence.File) (*domain.Dispute, error) {
	insp, err := s.load(ctx, actor, inspectionID, authz.RaiseDispute)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateRaise(in); err != nil {
		return nil, err
	}
	if !insp.DisputeEligible() {
		return nil, apperr.InvalidTransition("a dispute can be raised only on a completed inspection or a settled negotiation")
	}
	in.ReviewStep = insp.DisputeReviewStep()

	uploaded, err := s.upload(ctx, files, insp.ID, folderDispute)
	if err != nil {
		return nil, err
	}
	d, err := s.newDispute(insp, actor, in, uploaded, s.now())
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	if err := s.repo.CreateDispute(ctx, d); err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}

	s.disputeRaised(ctx, insp, d, actor)
	return d, nil
}

func (s *Service) disputeRaised(ctx context.Context, insp *domain.Inspection, d *domain.Dispute, actor authz.Actor) {
	s.logTransition(aggregateDispute, d.ID, authz.RaiseDispute, "", string(d.Status), actor)
	s.publish(ctx, events.DisputeRaised{
		BaseEvent:     events.NewBaseEventAt(s.now()),
		InspectionRef: ref(insp),
		DisputeID:     d.ID,
		RaisedBy:      d.RaisedBy,
		DisputeType:   string(d.Type),
		Reason:        d.Reason,
	})
}

// AssignDispute hands a dispute to an inspector or admin.
func (s *Service) AssignDispute(ctx context.Context, actor authz.Actor, disputeID, assigneeID uuid.UUID) (*domain.Dispute, error) {
	if err := s.guard.Require(actor, nil, authz.AssignDispute); err != nil {
		return nil, err
	}
	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	from, expected := d.Status, d.Version
	if err := d.Assign(assigneeID, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDispute(ctx, d, expected); err != nil {
		return nil, err
	}

	s.logTransition(aggregateDispute, d.ID, authz.AssignDispute, string(from), string(d.Status), actor)
	if insp := s.disputeInspection(ctx, d); insp != nil {
		s.publish(ctx, events.DisputeAssigned{
			BaseEvent:     events.NewBaseEventAt(s.now()),
			InspectionRef: ref(insp),
			DisputeID:     d.ID,
			AssignedTo:    assigneeID,
			AssignedBy:    actor.ID,
		})
	}
	return d, nil
}

// ResolveDispute closes a dispute. inspectionID, when set, must match the
// dispute's inspection.
func (s *Service) ResolveDispute(ctx context.Context, actor authz.Actor, inspectionID *uuid.UUID, disputeID uuid.UUID, notes string) (*domain.Dispute, error) {
	d, err := s.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if inspectionID != nil && *inspectionID != d.InspectionID {
		return nil, apperr.NotFound("dispute not found")
	}
	if !s.guard.CanResolveDispute(actor, d) {
		return nil, apperr.Forbidden("not permitted to resolve dispute")
	}

	from, expected := d.Status, d.Version
	if err := d.Resolve(actor.ID, notes, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDispute(ctx, d, expected); err != nil {
		return nil, err
	}

	s.logTransition(aggregateDispute, d.ID, authz.ResolveDispute, string(from), string(d.Status), actor)
	if insp := s.disputeInspection(ctx, d); insp != nil {
		s.publish(ctx, events.DisputeResolved{
			BaseEvent:       events.NewBaseEventAt(s.now()),
			InspectionRef:   ref(insp),
			DisputeID:       d.ID,
			RaisedBy:        d.RaisedBy,
			ResolvedBy:      actor.ID,
			ResolutionNotes: *d.ResolutionNotes,
		})
	}
	return d, nil
}

// disputeInspection loads the inspection of d for event payloads. A failed
// lookup only skips the event.
func (s *Service) disputeInspection(ctx context.Context, d *domain.Dispute) *domain.Inspection {
	insp, err := s.repo.GetInspection(ctx, d.InspectionID)
	if err != nil {
		s.log.Warn("dispute event skipped", "dispute_id", d.ID.String(), "error", err)
		return nil
	}
	return insp
}

// ListInspectionDisputes returns the disputes of an inspection.
func (s *Service) ListInspectionDisputes(ctx context.Context, actor authz.Actor, inspectionID uuid.UUID, page Page) (*DisputeList, error) {
	if _, err := s.load(ctx, actor, inspectionID, authz.ViewDisputes); err != nil {
		return nil, err
	}
	return s.listDisputes(ctx, repository.DisputeFilter{InspectionID: &inspectionID}, page)
}

// MyDisputes returns the disputes the actor raised. Inspectors and admins
// see every dispute.
func (s *Service) MyDisputes(ctx context.Context, actor authz.Actor, page Page) (*DisputeList, error) {
	filter := repository.DisputeFilter{}
	if !s.guard.CanActGlobally(actor, authz.ListAllDisputes) {
		id := actor.ID
		filter.RaisedBy = &id
	}
	return s.listDisputes(ctx, filter, page)
}

// ListDisputes is the filtered listing over all disputes.
func (s *Service) ListDisputes(ctx context.Context, actor authz.Actor, in DisputeListInput) (*DisputeList, error) {
	if err := s.guard.Require(actor, nil, authz.ListAllDisputes); err != nil {
		return nil, err
	}

	details := map[string]string{}
	if in.Status != nil && !in.Status.Valid() {
		details["status"] = "oneof=open assigned resolved"
	}
	if in.Type != nil && !in.Type.Valid() {
		details["type"] = "oneof=damage_assessment condition_disagreement cost_dispute other"
	}
	if in.From != nil && in.To != nil && !in.From.Before(*in.To) {
		details["to"] = "gtfield=from"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid dispute filter").WithDetails(details)
	}

	return s.listDisputes(ctx, repository.DisputeFilter{
		Status: in.Status,
		Type:   in.Type,
		From:   in.From,
		To:     in.To,
	}, in.Page)
}

func (s *Service) listDisputes(ctx context.Context, filter repository.DisputeFilter, page Page) (*DisputeList, error) {
	page = page.normalize()
	filter.Offset = page.offset()
	filter.Limit = page.PageSize

	items, total, err := s.repo.ListDisputes(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Dispute{}
	}
	return &DisputeList{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}
