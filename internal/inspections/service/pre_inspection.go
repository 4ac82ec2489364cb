package service

import (
	"context"
	"fmt"

	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/internal/inspections/repository"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

// SubmitOwnerPreInspection records the owner's handover evidence. A
// resubmission overwrites the previous one until it is confirmed.
func (s *Service) SubmitOwnerPreInspection(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.OwnerPreInput, photos []evidence.File) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.SubmitOwnerPreInspection)
	if err != nil {
		return nil, err
	}
	if err := insp.CheckOwnerPreSubmission(); err != nil {
		return nil, err
	}
	in.Location = locationFromPhotos(in.Location, photos)

	from, expected := insp.PreStatus, insp.Version
	uploaded, err := s.upload(ctx, photos, insp.ID, folderOwnerPre)
	if err != nil {
		return nil, err
	}
	if err := insp.SubmitOwnerPre(in, uploaded, s.now()); err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, uploaded); err != nil {
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.SubmitOwnerPreInspection, string(from), string(insp.PreStatus), actor)
	s.publishStep(ctx, insp, authz.SubmitOwnerPreInspection, actor, insp.RenterID)
	return insp, nil
}

// ConfirmOwnerPreInspection locks the owner's evidence. Repeating it only
// refreshes the confirmation time.
func (s *Service) ConfirmOwnerPreInspection(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.ConfirmOwnerPreInspection)
	if err != nil {
		return nil, err
	}
	from, expected := insp.PreStatus, insp.Version
	if err := insp.ConfirmOwnerPre(s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}

	if from != insp.PreStatus {
		s.logTransition(aggregateInspection, insp.ID, authz.ConfirmOwnerPreInspection, string(from), string(insp.PreStatus), actor)
		s.publishStep(ctx, insp, authz.ConfirmOwnerPreInspection, actor, insp.RenterID)
	}
	return insp, nil
}

// SubmitRenterPreReview records the renter's verdict on confirmed evidence.
func (s *Service) SubmitRenterPreReview(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.RenterPreReviewInput) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.SubmitRenterPreReview)
	if err != nil {
		return nil, err
	}
	from, expected := insp.PreStatus, insp.Version
	if err := insp.SubmitRenterPreReview(in, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.SubmitRenterPreReview, string(from), string(insp.PreStatus), actor)
	s.publishStep(ctx, insp, authz.SubmitRenterPreReview, actor, insp.OwnerID)
	return insp, nil
}

// ReportRenterDiscrepancy flags the owner's evidence as contested. It does
// not open a dispute.
func (s *Service) ReportRenterDiscrepancy(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.DiscrepancyInput, photos []evidence.File) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.ReportRenterDiscrepancy)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateDiscrepancy(in); err != nil {
		return nil, err
	}
	if err := insp.CheckDiscrepancy(); err != nil {
		return nil, err
	}

	from, expected := insp.PreStatus, insp.Version
	uploaded, err := s.upload(ctx, photos, insp.ID, folderDiscrepancy)
	if err != nil {
		return nil, err
	}
	if err := insp.ReportRenterDiscrepancy(in, uploaded, s.now()); err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, uploaded); err != nil {
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.ReportRenterDiscrepancy, string(from), string(insp.PreStatus), actor)
	s.publishStep(ctx, insp, authz.ReportRenterDiscrepancy, actor, insp.OwnerID)
	return insp, nil
}

// SettlePreDiscrepancy closes a reported discrepancy once any dispute
// raised on it has been resolved.
func (s *Service) SettlePreDiscrepancy(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.SettlementInput) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.SettlePreDiscrepancy)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateSettlement(in); err != nil {
		return nil, err
	}
	if err := insp.CheckSettleDiscrepancy(); err != nil {
		return nil, err
	}
	pending, err := s.unresolvedDisputes(ctx, insp.ID, domain.ReviewStepRenterPreDiscrepancy)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, apperr.InvalidTransition(fmt.Sprintf("%d dispute(s) on the discrepancy are still unresolved", pending))
	}

	from, expected := insp.PreStatus, insp.Version
	if err := insp.SettleDiscrepancy(in, actor.ID, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.SettlePreDiscrepancy, string(from), string(insp.PreStatus), actor)
	s.publishStep(ctx, insp, authz.SettlePreDiscrepancy, actor, insp.RenterID)
	return insp, nil
}

// unresolvedDisputes counts the open or assigned disputes of an inspection
// raised on one review step.
func (s *Service) unresolvedDisputes(ctx context.Context, inspectionID uuid.UUID, step domain.ReviewStep) (int, error) {
	count := 0
	for _, status := range []domain.DisputeStatus{domain.DisputeOpen, domain.DisputeAssigned} {
		_, total, err := s.repo.ListDisputes(ctx, repository.DisputeFilter{
			InspectionID: &inspectionID,
			ReviewStep:   &step,
			Status:       &status,
			Limit:        1,
		})
		if err != nil {
			return 0, err
		}
		count += total
	}
	return count, nil
}
