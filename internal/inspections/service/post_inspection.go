package service

import (
	"context"

	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"

	"github.com/google/uuid"
)

// SubmitRenterPostInspection records the renter's return evidence. At least
// two photos are required.
func (s *Service) SubmitRenterPostInspection(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.RenterPostInput, photos []evidence.File) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.SubmitRenterPostInspection)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateRenterPost(in, len(photos)); err != nil {
		return nil, err
	}
	if err := insp.CheckRenterPostSubmission(); err != nil {
		return nil, err
	}

	from, expected := insp.PostStatus, insp.Version
	uploaded, err := s.upload(ctx, photos, insp.ID, folderRenterPost)
	if err != nil {
		return nil, err
	}
	if err := insp.SubmitRenterPost(in, uploaded, s.now()); err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, uploaded); err != nil {
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.SubmitRenterPostInspection, string(from), string(insp.PostStatus), actor)
	s.publishStep(ctx, insp, authz.SubmitRenterPostInspection, actor, insp.OwnerID)
	return insp, nil
}

// ConfirmRenterPostInspection locks the return evidence. Repeating it only
// refreshes the confirmation time.
func (s *Service) ConfirmRenterPostInspection(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.ConfirmRenterPostInspection)
	if err != nil {
		return nil, err
	}
	from, expected := insp.PostStatus, insp.Version
	if err := insp.ConfirmRenterPost(s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}

	if from != insp.PostStatus {
		s.logTransition(aggregateInspection, insp.ID, authz.ConfirmRenterPostInspection, string(from), string(insp.PostStatus), actor)
		s.publishStep(ctx, insp, authz.ConfirmRenterPostInspection, actor, insp.OwnerID)
	}
	return insp, nil
}

// SubmitOwnerPostReview records the owner's verdict on the return. A
// disputing review opens a dispute in the same write.
func (s *Service) SubmitOwnerPostReview(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.OwnerPostReviewInput, evidenceFiles []evidence.File) (*domain.Inspection, *domain.Dispute, error) {
	insp, err := s.load(ctx, actor, id, authz.SubmitOwnerPostReview)
	if err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateOwnerPostReview(in); err != nil {
		return nil, nil, err
	}
	if err := insp.CheckOwnerPostReview(); err != nil {
		return nil, nil, err
	}
	if !in.DisputeRaised {
		evidenceFiles = nil
	}

	from, expected := insp.PostStatus, insp.Version
	uploaded, err := s.upload(ctx, evidenceFiles, insp.ID, folderOwnerReview)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	var dispute *domain.Dispute
	if in.DisputeRaised {
		dispute, err = s.newDispute(insp, actor, domain.RaiseInput{
			Type:          in.DisputeType,
			Reason:        in.DisputeReason,
			EvidenceNotes: in.DisputeEvidenceNotes,
			ReviewStep:    domain.ReviewStepOwnerPostReview,
		}, uploaded, now)
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, nil, err
		}
	}
	if err := insp.SubmitOwnerPostReview(in, uploaded, dispute, now); err != nil {
		s.discard(ctx, uploaded)
		return nil, nil, err
	}

	var created []*domain.Dispute
	if dispute != nil {
		created = append(created, dispute)
	}
	if err := s.commit(ctx, insp, expected, uploaded, created...); err != nil {
		return nil, nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.SubmitOwnerPostReview, string(from), string(insp.PostStatus), actor)
	s.publishStep(ctx, insp, authz.SubmitOwnerPostReview, actor, insp.RenterID)
	if dispute != nil {
		s.disputeRaised(ctx, insp, dispute, actor)
	}
	return insp, dispute, nil
}
