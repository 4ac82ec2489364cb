// Package service runs the inspection and dispute workflow: it loads the
// aggregate, checks the actor, uploads evidence, applies the transition and
// persists it with a version check.
package service

import (
	"context"
	"fmt"
	"time"

	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/internal/inspections/ports"
	"rental_inspections_backend/internal/inspections/repository"
	"rental_inspections_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Evidence folders, one per kind of submission.
const (
	folderOwnerPre    = "owner-pre"
	folderDiscrepancy = "renter-discrepancy"
	folderRenterPost  = "renter-post"
	folderOwnerReview = "owner-post-review"
	folderDispute     = "disputes"
)

// Service provides business logic for inspections and disputes.
type Service struct {
	repo     repository.Repository
	bookings ports.BookingReader
	evidence ports.EvidenceGateway
	guard    *authz.Guard
	eventBus events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new inspections service
func New(repo repository.Repository, bookings ports.BookingReader, evidence ports.EvidenceGateway, guard *authz.Guard, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		bookings: bookings,
		evidence: evidence,
		guard:    guard,
		eventBus: eventBus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Page selects one page of a listing. Zero values mean the first page of
// the default size.
type Page struct {
	Page     int
	PageSize int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Page - 1) * p.PageSize
}

// InspectionList is one page of inspections.
type InspectionList struct {
	Items    []domain.Inspection
	Total    int
	Page     int
	PageSize int
}

// DisputeList is one page of disputes.
type DisputeList struct {
	Items    []domain.Dispute
	Total    int
	Page     int
	PageSize int
}

// load fetches an inspection and checks that actor may perform t on it.
func (s *Service) load(ctx context.Context, actor authz.Actor, id uuid.UUID, t authz.Transition) (*domain.Inspection, error) {
	insp, err := s.repo.GetInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Require(actor, insp, t); err != nil {
		return nil, err
	}
	return insp, nil
}

func (s *Service) upload(ctx context.Context, files []evidence.File, inspectionID uuid.UUID, folder string) ([]string, error) {
	if len(files) == 0 {
		return []string{}, nil
	}
	return s.evidence.UploadAll(ctx, files, fmt.Sprintf("inspections/%s/%s", inspectionID, folder))
}

// discard removes evidence uploaded for a write that did not happen.
func (s *Service) discard(ctx context.Context, urls []string) {
	if len(urls) > 0 {
		s.evidence.DeleteAll(context.WithoutCancel(ctx), urls)
	}
}

// commit persists insp at expectedVersion. On failure the evidence uploaded
// for this write is removed.
func (s *Service) commit(ctx context.Context, insp *domain.Inspection, expectedVersion int, uploaded []string, disputes ...*domain.Dispute) error {
	if err := s.repo.SaveInspection(ctx, insp, expectedVersion, disputes...); err != nil {
		s.discard(ctx, uploaded)
		return err
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, event)
	}
}

func (s *Service) logTransition(aggregate string, id uuid.UUID, transition authz.Transition, from, to string, actor authz.Actor) {
	s.log.Transition(aggregate, id.String(), string(transition), from, to, actor.ID.String())
}

func ref(insp *domain.Inspection) events.InspectionRef {
	return events.InspectionRef{
		InspectionID: insp.ID,
		BookingID:    insp.BookingID,
		OwnerID:      insp.OwnerID,
		RenterID:     insp.RenterID,
		InspectorID:  insp.InspectorID,
	}
}

func (s *Service) publishStep(ctx context.Context, insp *domain.Inspection, step authz.Transition, actor authz.Actor, counterparty uuid.UUID) {
	s.publish(ctx, events.NegotiationStepRecorded{
		BaseEvent:     events.NewBaseEventAt(s.now()),
		InspectionRef: ref(insp),
		Step:          string(step),
		ActorID:       actor.ID,
		Counterparty:  counterparty,
		PreStatus:     string(insp.PreStatus),
		PostStatus:    string(insp.PostStatus),
	})
}
