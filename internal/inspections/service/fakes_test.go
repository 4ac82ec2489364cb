package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/internal/inspections/ports"
	"rental_inspections_backend/internal/inspections/repository"
	"rental_inspections_backend/platform/apperr"
	"rental_inspections_backend/platform/logger"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// memRepo is an in-memory Repository with the same version semantics as
// the PostgreSQL one. Records are deep-copied in and out.
type memRepo struct {
	mu          sync.Mutex
	inspections map[uuid.UUID]domain.Inspection
	disputes    map[uuid.UUID]domain.Dispute
	order       []uuid.UUID
	failSave    error
}

func newMemRepo() *memRepo {
	return &memRepo{inspections: map[uuid.UUID]domain.Inspection{}, disputes: map[uuid.UUID]domain.Dispute{}}
}

func cloneInspection(in domain.Inspection) domain.Inspection {
	out := in
	out.Items = append([]domain.InspectionItem(nil), in.Items...)
	for i := range out.Items {
		out.Items[i].Photos = append([]string(nil), in.Items[i].Photos...)
	}
	if in.OwnerPre != nil {
		v := *in.OwnerPre
		out.OwnerPre = &v
	}
	if in.RenterPreReview != nil {
		v := *in.RenterPreReview
		out.RenterPreReview = &v
	}
	if in.RenterDiscrepancy != nil {
		v := *in.RenterDiscrepancy
		out.RenterDiscrepancy = &v
	}
	if in.RenterPost != nil {
		v := *in.RenterPost
		out.RenterPost = &v
	}
	if in.OwnerPostReview != nil {
		v := *in.OwnerPostReview
		out.OwnerPostReview = &v
	}
	return out
}

func (r *memRepo) GetInspection(_ context.Context, id uuid.UUID) (*domain.Inspection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	insp, ok := r.inspections[id]
	if !ok {
		return nil, apperr.NotFound("inspection not found")
	}
	out := cloneInspection(insp)
	return &out, nil
}

func (r *memRepo) CreateInspection(_ context.Context, insp *domain.Inspection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.inspections {
		if existing.BookingID == insp.BookingID && existing.Type == insp.Type && existing.Status != domain.StatusCancelled {
			return apperr.Conflict("an active inspection of this type already exists for the booking")
		}
	}
	r.inspections[insp.ID] = cloneInspection(*insp)
	r.order = append(r.order, insp.ID)
	return nil
}

func (r *memRepo) SaveInspection(_ context.Context, insp *domain.Inspection, expectedVersion int, newDisputes ...*domain.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave != nil {
		return r.failSave
	}
	stored, ok := r.inspections[insp.ID]
	if !ok {
		return apperr.NotFound("inspection not found")
	}
	if stored.Version != expectedVersion {
		return apperr.Conflict("record was modified by another request; reload and retry")
	}
	saved := cloneInspection(*insp)
	saved.Version = expectedVersion + 1
	r.inspections[insp.ID] = saved
	for _, d := range newDisputes {
		r.disputes[d.ID] = *d
	}
	insp.Version = expectedVersion + 1
	return nil
}

func (r *memRepo) ListInspections(_ context.Context, f repository.InspectionFilter) ([]domain.Inspection, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Inspection
	for _, id := range r.order {
		insp := r.inspections[id]
		if f.ParticipantID != nil && !insp.IsParticipant(*f.ParticipantID) {
			continue
		}
		if f.BookingID != nil && insp.BookingID != *f.BookingID {
			continue
		}
		if f.Status != nil && insp.Status != *f.Status {
			continue
		}
		if f.Type != nil && insp.Type != *f.Type {
			continue
		}
		matched = append(matched, cloneInspection(insp))
	}
	return paginate(matched, f.Offset, f.Limit), len(matched), nil
}

func (r *memRepo) GetDispute(_ context.Context, id uuid.UUID) (*domain.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, apperr.NotFound("dispute not found")
	}
	return &d, nil
}

func (r *memRepo) CreateDispute(_ context.Context, d *domain.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disputes[d.ID] = *d
	return nil
}

func (r *memRepo) SaveDispute(_ context.Context, d *domain.Dispute, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.disputes[d.ID]
	if !ok {
		return apperr.NotFound("dispute not found")
	}
	if stored.Version != expectedVersion {
		return apperr.Conflict("record was modified by another request; reload and retry")
	}
	saved := *d
	saved.Version = expectedVersion + 1
	r.disputes[d.ID] = saved
	d.Version = expectedVersion + 1
	return nil
}

func (r *memRepo) ListDisputes(_ context.Context, f repository.DisputeFilter) ([]domain.Dispute, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Dispute
	for _, d := range r.disputes {
		if f.InspectionID != nil && d.InspectionID != *f.InspectionID {
			continue
		}
		if f.ReviewStep != nil && d.ReviewStep != *f.ReviewStep {
			continue
		}
		if f.RaisedBy != nil && d.RaisedBy != *f.RaisedBy {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.Type != nil && d.Type != *f.Type {
			continue
		}
		matched = append(matched, d)
	}
	return paginate(matched, f.Offset, f.Limit), len(matched), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (r *memRepo) openDisputes(inspectionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.disputes {
		if d.InspectionID == inspectionID && d.Status != domain.DisputeResolved {
			n++
		}
	}
	return n
}

type fakeBookings struct {
	bookings map[uuid.UUID]*ports.Booking
}

func (f *fakeBookings) GetBooking(_ context.Context, id uuid.UUID) (*ports.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking not found")
	}
	return b, nil
}

// fakeGateway records uploads and deletions. failUploads makes every
// UploadAll fail the way the real gateway does after its own rollback.
type fakeGateway struct {
	mu          sync.Mutex
	stored      map[string]bool
	deleted     []string
	uploads     int
	failUploads bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{stored: map[string]bool{}}
}

func (g *fakeGateway) UploadAll(_ context.Context, files []evidence.File, folder string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploads++
	if g.failUploads {
		return nil, apperr.Upload("failed to upload evidence", errors.New("storage unavailable"))
	}
	urls := make([]string, len(files))
	for i, f := range files {
		urls[i] = fmt.Sprintf("https://cdn.test/%s/%d-%s", folder, len(g.stored), f.Name)
		g.stored[urls[i]] = true
	}
	return urls, nil
}

func (g *fakeGateway) DeleteAll(_ context.Context, urls []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range urls {
		delete(g.stored, u)
		g.deleted = append(g.deleted, u)
	}
}

func (g *fakeGateway) storedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stored)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.EventName()
	}
	return out
}

// fixture wires a Service with fakes around one confirmed booking.
type fixture struct {
	svc       *Service
	repo      *memRepo
	gateway   *fakeGateway
	bus       *recordingBus
	booking   *ports.Booking
	owner     authz.Actor
	renter    authz.Actor
	inspector authz.Actor
	admin     authz.Actor
	stranger  authz.Actor
}

func newFixture() *fixture {
	booking := &ports.Booking{
		ID:        uuid.New(),
		ProductID: uuid.New(),
		OwnerID:   uuid.New(),
		RenterID:  uuid.New(),
		Status:    "confirmed",
	}
	repo := newMemRepo()
	gateway := newFakeGateway()
	bus := &recordingBus{}
	svc := New(repo, &fakeBookings{bookings: map[uuid.UUID]*ports.Booking{booking.ID: booking}}, gateway, authz.MustNew(), bus, logger.New("test"))
	svc.now = func() time.Time { return testNow }

	return &fixture{
		svc:       svc,
		repo:      repo,
		gateway:   gateway,
		bus:       bus,
		booking:   booking,
		owner:     authz.Actor{ID: booking.OwnerID, Role: authz.RoleUser},
		renter:    authz.Actor{ID: booking.RenterID, Role: authz.RoleUser},
		inspector: authz.Actor{ID: uuid.New(), Role: authz.RoleInspector},
		admin:     authz.Actor{ID: uuid.New(), Role: authz.RoleAdmin},
		stranger:  authz.Actor{ID: uuid.New(), Role: authz.RoleUser},
	}
}

func photos(n int) []evidence.File {
	files := make([]evidence.File, n)
	for i := range files {
		body := fmt.Sprintf("photo-%d", i)
		files[i] = evidence.File{
			Name:        fmt.Sprintf("p%d.jpg", i),
			ContentType: "image/jpeg",
			Size:        int64(len(body)),
			Content:     io.ReadSeeker(strings.NewReader(body)),
		}
	}
	return files
}
