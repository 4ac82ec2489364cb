package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/internal/inspections/repository"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

const aggregateInspection = "inspection"

// CreateInput carries a new inspection. OwnerPre seeds the owner
// pre-inspection when set.
type CreateInput struct {
	BookingID      uuid.UUID
	Type           domain.InspectionType
	ScheduledAt    time.Time
	Location       string
	GeneralNotes   string
	InspectorID    *uuid.UUID
	OwnerPre       *domain.OwnerPreInput
	OwnerPrePhotos []evidence.File
}

// ListInput filters an inspection listing.
type ListInput struct {
	BookingID *uuid.UUID
	Status    *domain.Status
	Type      *domain.InspectionType
	Page      Page
}

// Create schedules an inspection for a booking.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (*domain.Inspection, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if in.OwnerPre == nil && len(in.OwnerPrePhotos) > 0 {
		in.OwnerPre = &domain.OwnerPreInput{}
	}

	booking, err := s.bookings.GetBooking(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if !domain.BookingAllowsInspection(booking.Status) {
		return nil, apperr.InvalidTransition(fmt.Sprintf("booking in status %s cannot be inspected", booking.Status))
	}

	now := s.now()
	insp := domain.NewInspection(booking.ID, booking.ProductID, booking.OwnerID, booking.RenterID, in.Type, in.ScheduledAt, in.Location, now)
	insp.GeneralNotes = strings.TrimSpace(in.GeneralNotes)

	if err := s.guard.Require(actor, insp, authz.Create); err != nil {
		return nil, err
	}
	if in.InspectorID != nil {
		if err := s.guard.Require(actor, insp, authz.AssignInspector); err != nil {
			return nil, err
		}
		if err := insp.AssignInspector(*in.InspectorID, now); err != nil {
			return nil, err
		}
	}

	var uploaded []string
	if in.OwnerPre != nil {
		if err := s.guard.Require(actor, insp, authz.SeedOwnerPreInspection); err != nil {
			return nil, err
		}
		pre := *in.OwnerPre
		pre.Location = locationFromPhotos(pre.Location, in.OwnerPrePhotos)
		uploaded, err = s.upload(ctx, in.OwnerPrePhotos, insp.ID, folderOwnerPre)
		if err != nil {
			return nil, err
		}
		if err := insp.SubmitOwnerPre(pre, uploaded, now); err != nil {
			s.discard(ctx, uploaded)
			return nil, err
		}
	}

	if err := s.repo.CreateInspection(ctx, insp); err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.Create, "", string(insp.Status), actor)
	s.publish(ctx, events.InspectionCreated{
		BaseEvent:      events.NewBaseEventAt(s.now()),
		InspectionRef:  ref(insp),
		InspectionType: string(insp.Type),
		ScheduledAt:    insp.ScheduledAt,
		CreatedBy:      actor.ID,
	})
	if in.OwnerPre != nil {
		s.publishStep(ctx, insp, authz.SubmitOwnerPreInspection, actor, insp.RenterID)
	}
	return insp, nil
}

func validateCreate(in CreateInput) error {
	details := map[string]string{}
	if in.BookingID == uuid.Nil {
		details["bookingId"] = "required"
	}
	if !in.Type.Valid() {
		details["inspectionType"] = "oneof=pre_rental post_return damage_assessment post_rental_maintenance_check quality_verification"
	}
	if in.ScheduledAt.IsZero() {
		details["scheduledAt"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid inspection").WithDetails(details)
	}
	return nil
}

// locationFromPhotos keeps an explicit location, falling back to the GPS
// position embedded in the photos.
func locationFromPhotos(loc *domain.GeoPoint, photos []evidence.File) *domain.GeoPoint {
	if loc != nil {
		return loc
	}
	if c, ok := evidence.FirstGPS(photos); ok {
		return &domain.GeoPoint{Lat: c.Lat, Lng: c.Lng}
	}
	return nil
}

// Get returns an inspection the actor may view.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Inspection, error) {
	return s.load(ctx, actor, id, authz.View)
}

// List returns inspections. Actors without global view see only the
// inspections they take part in.
func (s *Service) List(ctx context.Context, actor authz.Actor, in ListInput) (*InspectionList, error) {
	page := in.Page.normalize()
	filter := repository.InspectionFilter{
		BookingID: in.BookingID,
		Status:    in.Status,
		Type:      in.Type,
		Offset:    page.offset(),
		Limit:     page.PageSize,
	}
	if !actor.IsAdmin() {
		id := actor.ID
		filter.ParticipantID = &id
	}

	items, total, err := s.repo.ListInspections(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Inspection{}
	}
	return &InspectionList{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// Start moves a scheduled inspection to in progress.
func (s *Service) Start(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.Start)
	if err != nil {
		return nil, err
	}
	from, expected := insp.Status, insp.Version
	if err := insp.Start(s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}
	s.statusChanged(ctx, insp, authz.Start, from, actor, "")
	return insp, nil
}

// AddItem records an item on an in-progress inspection. photos are uploaded
// and appended to in.Photos.
func (s *Service) AddItem(ctx context.Context, actor authz.Actor, id uuid.UUID, in domain.ItemInput, photos []evidence.File) (*domain.InspectionItem, error) {
	insp, err := s.load(ctx, actor, id, authz.AddItem)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateItem(in); err != nil {
		return nil, err
	}
	if err := insp.CheckItemRecording(); err != nil {
		return nil, err
	}

	expected := insp.Version
	uploaded, err := s.upload(ctx, photos, insp.ID, "items")
	if err != nil {
		return nil, err
	}
	in.Photos = append(append([]string{}, in.Photos...), uploaded...)

	item, err := insp.AddItem(in, s.now())
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, uploaded); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem changes an item on an in-progress inspection. When in.Photos
// is nil the current photos are kept; uploaded photos are appended.
func (s *Service) UpdateItem(ctx context.Context, actor authz.Actor, id, itemID uuid.UUID, in domain.ItemInput, photos []evidence.File) (*domain.InspectionItem, error) {
	insp, err := s.load(ctx, actor, id, authz.UpdateItem)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateItem(in); err != nil {
		return nil, err
	}
	if err := insp.CheckItemRecording(); err != nil {
		return nil, err
	}
	current := findItem(insp, itemID)
	if current == nil {
		return nil, apperr.NotFound("inspection item not found")
	}

	expected := insp.Version
	uploaded, err := s.upload(ctx, photos, insp.ID, "items")
	if err != nil {
		return nil, err
	}
	if len(uploaded) > 0 {
		base := in.Photos
		if base == nil {
			base = current.Photos
		}
		in.Photos = append(append([]string{}, base...), uploaded...)
	}

	item, err := insp.UpdateItem(itemID, in, s.now())
	if err != nil {
		s.discard(ctx, uploaded)
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, uploaded); err != nil {
		return nil, err
	}
	return item, nil
}

func findItem(insp *domain.Inspection, itemID uuid.UUID) *domain.InspectionItem {
	for i := range insp.Items {
		if insp.Items[i].ID == itemID {
			return &insp.Items[i]
		}
	}
	return nil
}

// Complete records the final items and closes the inspection.
func (s *Service) Complete(ctx context.Context, actor authz.Actor, id uuid.UUID, items []domain.ItemInput, inspectorNotes string) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.Complete)
	if err != nil {
		return nil, err
	}
	from, expected := insp.Status, insp.Version
	if err := insp.Complete(items, inspectorNotes, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}
	s.statusChanged(ctx, insp, authz.Complete, from, actor, "")
	return insp, nil
}

// Cancel closes an inspection that has not completed.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.Cancel)
	if err != nil {
		return nil, err
	}
	from, expected := insp.Status, insp.Version
	if err := insp.Cancel(reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}
	s.statusChanged(ctx, insp, authz.Cancel, from, actor, insp.CancelReason)
	return insp, nil
}

// AssignInspector sets the inspector of an open inspection.
func (s *Service) AssignInspector(ctx context.Context, actor authz.Actor, id, inspectorID uuid.UUID) (*domain.Inspection, error) {
	insp, err := s.load(ctx, actor, id, authz.AssignInspector)
	if err != nil {
		return nil, err
	}
	expected := insp.Version
	if err := insp.AssignInspector(inspectorID, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, insp, expected, nil); err != nil {
		return nil, err
	}

	s.logTransition(aggregateInspection, insp.ID, authz.AssignInspector, "", inspectorID.String(), actor)
	s.publish(ctx, events.InspectorAssigned{
		BaseEvent:     events.NewBaseEventAt(s.now()),
		InspectionRef: ref(insp),
		AssignedBy:    actor.ID,
	})
	return insp, nil
}

func (s *Service) statusChanged(ctx context.Context, insp *domain.Inspection, t authz.Transition, from domain.Status, actor authz.Actor, reason string) {
	s.logTransition(aggregateInspection, insp.ID, t, string(from), string(insp.Status), actor)
	s.publish(ctx, events.InspectionStatusChanged{
		BaseEvent:     events.NewBaseEventAt(s.now()),
		InspectionRef: ref(insp),
		OldStatus:     string(from),
		NewStatus:     string(insp.Status),
		ActorID:       actor.ID,
		Reason:        reason,
	})
}
