package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"rental_inspections_backend/internal/events"
	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if got := apperr.GetKind(err); got != want {
		t.Fatalf("expected %s error, got %v (%v)", want, got, err)
	}
}

func (f *fixture) create(t *testing.T, typ domain.InspectionType) *domain.Inspection {
	t.Helper()
	insp, err := f.svc.Create(context.Background(), f.owner, CreateInput{
		BookingID:   f.booking.ID,
		Type:        typ,
		ScheduledAt: testNow.Add(24 * time.Hour),
		Location:    "Main street 1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return insp
}

// acceptPre runs owner submit, confirm and renter accept.
func (f *fixture) acceptPre(t *testing.T, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, id, domain.OwnerPreInput{Condition: domain.Condition{"overall": "good"}}, photos(3)); err != nil {
		t.Fatalf("owner pre submit: %v", err)
	}
	if _, err := f.svc.ConfirmOwnerPreInspection(ctx, f.owner, id); err != nil {
		t.Fatalf("owner pre confirm: %v", err)
	}
	if _, err := f.svc.SubmitRenterPreReview(ctx, f.renter, id, domain.RenterPreReviewInput{Accepted: true}); err != nil {
		t.Fatalf("renter pre review: %v", err)
	}
}

// confirmPost runs renter submit and confirm.
func (f *fixture) confirmPost(t *testing.T, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	in := domain.RenterPostInput{
		Condition:      domain.Condition{"overall": "fair"},
		ReturnLocation: &domain.GeoPoint{Lat: 0, Lng: 0},
	}
	if _, err := f.svc.SubmitRenterPostInspection(ctx, f.renter, id, in, photos(2)); err != nil {
		t.Fatalf("renter post submit: %v", err)
	}
	if _, err := f.svc.ConfirmRenterPostInspection(ctx, f.renter, id); err != nil {
		t.Fatalf("renter post confirm: %v", err)
	}
}

func TestCreateChecksBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner, CreateInput{BookingID: uuid.New(), Type: domain.TypePreRental, ScheduledAt: testNow})
	assertKind(t, err, apperr.KindNotFound)

	f.booking.Status = "pending"
	_, err = f.svc.Create(ctx, f.owner, CreateInput{BookingID: f.booking.ID, Type: domain.TypePreRental, ScheduledAt: testNow})
	assertKind(t, err, apperr.KindInvalidTransition)

	_, err = f.svc.Create(ctx, f.owner, CreateInput{BookingID: f.booking.ID, Type: "weekly", ScheduledAt: testNow})
	assertKind(t, err, apperr.KindValidation)
}

func TestCreateRejectsStrangersAndDuplicates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.stranger, CreateInput{BookingID: f.booking.ID, Type: domain.TypePreRental, ScheduledAt: testNow})
	assertKind(t, err, apperr.KindForbidden)

	f.create(t, domain.TypePreRental)
	_, err = f.svc.Create(ctx, f.renter, CreateInput{BookingID: f.booking.ID, Type: domain.TypePreRental, ScheduledAt: testNow})
	assertKind(t, err, apperr.KindConflict)
}

func TestCreateSeedsOwnerPreInspection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	insp, err := f.svc.Create(ctx, f.owner, CreateInput{
		BookingID:      f.booking.ID,
		Type:           domain.TypePreRental,
		ScheduledAt:    testNow,
		OwnerPre:       &domain.OwnerPreInput{Condition: domain.Condition{"overall": "good"}},
		OwnerPrePhotos: photos(2),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if insp.PreStatus != domain.PreOwnerSubmitted {
		t.Fatalf("expected owner_pre_submitted, got %s", insp.PreStatus)
	}
	if len(insp.OwnerPre.Photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(insp.OwnerPre.Photos))
	}

	other := newFixture()
	_, err = other.svc.Create(ctx, other.renter, CreateInput{
		BookingID:   other.booking.ID,
		Type:        domain.TypePreRental,
		ScheduledAt: testNow,
		OwnerPre:    &domain.OwnerPreInput{},
	})
	assertKind(t, err, apperr.KindForbidden)
	if other.gateway.uploads != 0 {
		t.Fatal("expected no upload for a forbidden seed")
	}
}

func TestRenterCannotSubmitOwnerPreInspection(t *testing.T) {
	f := newFixture()
	insp := f.create(t, domain.TypePreRental)

	_, err := f.svc.SubmitOwnerPreInspection(context.Background(), f.renter, insp.ID, domain.OwnerPreInput{}, photos(1))
	assertKind(t, err, apperr.KindForbidden)
	if f.gateway.uploads != 0 {
		t.Fatal("expected no upload before authorization")
	}
}

func TestViewForbiddenIsNotNotFound(t *testing.T) {
	f := newFixture()
	insp := f.create(t, domain.TypePreRental)

	_, err := f.svc.Get(context.Background(), f.stranger, insp.ID)
	assertKind(t, err, apperr.KindForbidden)

	_, err = f.svc.Get(context.Background(), f.stranger, uuid.New())
	assertKind(t, err, apperr.KindNotFound)
}

func TestPreReviewRejectionKeepsConcerns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)

	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{Condition: domain.Condition{"overall": "good"}}, photos(3)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.ConfirmOwnerPreInspection(ctx, f.owner, insp.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err := f.svc.SubmitRenterPreReview(ctx, f.renter, insp.ID, domain.RenterPreReviewInput{
		Accepted: false,
		Concerns: []string{"scratch not disclosed"},
	})
	if err != nil {
		t.Fatalf("review: %v", err)
	}

	stored, _ := f.repo.GetInspection(ctx, insp.ID)
	for _, view := range []*domain.Inspection{got, stored} {
		if view.PreStatus != domain.PreRenterRejected {
			t.Fatalf("expected renter_pre_rejected, got %s", view.PreStatus)
		}
		if view.RenterPreReview.Accepted {
			t.Fatal("expected accepted=false")
		}
		if len(view.RenterPreReview.Concerns) != 1 || view.RenterPreReview.Concerns[0] != "scratch not disclosed" {
			t.Fatalf("unexpected concerns %v", view.RenterPreReview.Concerns)
		}
		if len(view.OwnerPre.Photos) != 3 {
			t.Fatalf("expected 3 owner photos, got %d", len(view.OwnerPre.Photos))
		}
	}

	_, err = f.svc.Start(ctx, f.admin, insp.ID)
	if err != nil {
		t.Fatalf("start after settled rejection: %v", err)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)

	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	first, err := f.svc.ConfirmOwnerPreInspection(ctx, f.owner, insp.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.svc.now = func() time.Time { return testNow.Add(time.Minute) }
	second, err := f.svc.ConfirmOwnerPreInspection(ctx, f.owner, insp.ID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if second.PreStatus != domain.PreOwnerConfirmed || !second.OwnerPre.ConfirmedAt.After(*first.OwnerPre.ConfirmedAt) {
		t.Fatalf("expected refreshed confirmation, got %s at %v", second.PreStatus, second.OwnerPre.ConfirmedAt)
	}

	_, err = f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(1))
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestDiscrepancyFlagsWithoutDispute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)
	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.ConfirmOwnerPreInspection(ctx, f.owner, insp.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err := f.svc.ReportRenterDiscrepancy(ctx, f.renter, insp.ID, domain.DiscrepancyInput{}, photos(1))
	assertKind(t, err, apperr.KindValidation)

	got, err := f.svc.ReportRenterDiscrepancy(ctx, f.renter, insp.ID, domain.DiscrepancyInput{Issues: []string{"dent on lid"}}, photos(1))
	if err != nil {
		t.Fatalf("discrepancy: %v", err)
	}
	if got.PreStatus != domain.PreRenterDiscrepancy {
		t.Fatalf("expected renter_pre_discrepancy, got %s", got.PreStatus)
	}
	if f.repo.openDisputes(insp.ID) != 0 {
		t.Fatal("discrepancy must not open a dispute")
	}

	d, err := f.svc.RaiseDispute(ctx, f.renter, insp.ID, domain.RaiseInput{Type: domain.DisputeConditionDisagreement, Reason: "owner ignores dent"}, nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if d.ReviewStep != domain.ReviewStepRenterPreDiscrepancy {
		t.Fatalf("expected renter_pre_discrepancy step, got %s", d.ReviewStep)
	}
}

func TestSettledDiscrepancyUnblocksLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)
	if _, err := f.svc.AssignInspector(ctx, f.admin, insp.ID, f.inspector.ID); err != nil {
		t.Fatalf("assign inspector: %v", err)
	}
	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{Condition: domain.Condition{"overall": "good"}}, photos(2)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.ConfirmOwnerPreInspection(ctx, f.owner, insp.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.ReportRenterDiscrepancy(ctx, f.renter, insp.ID, domain.DiscrepancyInput{Issues: []string{"cracked screen"}}, photos(1)); err != nil {
		t.Fatalf("discrepancy: %v", err)
	}
	d, err := f.svc.RaiseDispute(ctx, f.renter, insp.ID, domain.RaiseInput{Type: domain.DisputeConditionDisagreement, Reason: "crack predates rental"}, nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	_, err = f.svc.Start(ctx, f.inspector, insp.ID)
	assertKind(t, err, apperr.KindInvalidTransition)

	settle := domain.SettlementInput{Outcome: domain.SettlementAccepted, Notes: "crack logged as pre-existing"}
	for _, actor := range []authz.Actor{f.owner, f.renter, f.stranger} {
		_, err = f.svc.SettlePreDiscrepancy(ctx, actor, insp.ID, settle)
		if kind := apperr.GetKind(err); kind != apperr.KindForbidden && kind != apperr.KindNotFound {
			t.Fatalf("expected refusal for %s, got %v", actor.ID, err)
		}
	}
	_, err = f.svc.SettlePreDiscrepancy(ctx, f.inspector, insp.ID, settle)
	assertKind(t, err, apperr.KindInvalidTransition)

	if _, err := f.svc.ResolveDispute(ctx, f.admin, &insp.ID, d.ID, "crack was in the listing photos"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	settled, err := f.svc.SettlePreDiscrepancy(ctx, f.inspector, insp.ID, settle)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.PreStatus != domain.PreRenterAccepted || settled.RenterDiscrepancy.Settlement.SettledBy != f.inspector.ID {
		t.Fatalf("unexpected settlement %s %+v", settled.PreStatus, settled.RenterDiscrepancy.Settlement)
	}
	_, err = f.svc.SettlePreDiscrepancy(ctx, f.admin, insp.ID, settle)
	assertKind(t, err, apperr.KindInvalidTransition)

	if _, err := f.svc.Start(ctx, f.inspector, insp.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := f.svc.Complete(ctx, f.inspector, insp.ID, []domain.ItemInput{{ItemName: "screen", Condition: domain.ConditionFair, Description: "pre-existing crack"}}, "handover settled")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
}

func TestRenterPostNeedsTwoPhotos(t *testing.T) {
	inputs := []struct {
		name string
		in   domain.RenterPostInput
	}{
		{"complete payload", domain.RenterPostInput{Condition: domain.Condition{"overall": "good"}, ReturnLocation: &domain.GeoPoint{}}},
		{"missing condition", domain.RenterPostInput{ReturnLocation: &domain.GeoPoint{}}},
		{"empty payload", domain.RenterPostInput{}},
	}
	for _, n := range []int{0, 1} {
		for _, tc := range inputs {
			t.Run(tc.name, func(t *testing.T) {
				f := newFixture()
				insp := f.create(t, domain.TypePostReturn)
				_, err := f.svc.SubmitRenterPostInspection(context.Background(), f.renter, insp.ID, tc.in, photos(n))
				assertKind(t, err, apperr.KindValidation)
				if f.gateway.uploads != 0 {
					t.Fatal("expected no upload for an invalid submission")
				}
			})
		}
	}
}

func TestOwnerPostReviewExactlyOne(t *testing.T) {
	cases := []struct {
		name string
		in   domain.OwnerPostReviewInput
	}{
		{"both true", domain.OwnerPostReviewInput{Accepted: true, DisputeRaised: true, DisputeType: domain.DisputeOther, DisputeReason: "x"}},
		{"both false", domain.OwnerPostReviewInput{}},
		{"dispute without reason", domain.OwnerPostReviewInput{DisputeRaised: true, DisputeType: domain.DisputeOther}},
		{"dispute with unknown type", domain.OwnerPostReviewInput{DisputeRaised: true, DisputeType: "scratch", DisputeReason: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			insp := f.create(t, domain.TypePostReturn)
			f.confirmPost(t, insp.ID)

			_, _, err := f.svc.SubmitOwnerPostReview(context.Background(), f.owner, insp.ID, tc.in, nil)
			assertKind(t, err, apperr.KindValidation)
			stored, _ := f.repo.GetInspection(context.Background(), insp.ID)
			if stored.PostStatus != domain.PostRenterConfirmed {
				t.Fatalf("expected state unchanged, got %s", stored.PostStatus)
			}
		})
	}
}

func TestOwnerPostReviewDisputeCreatesLinkedDispute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePostReturn)
	f.confirmPost(t, insp.ID)

	got, d, err := f.svc.SubmitOwnerPostReview(ctx, f.owner, insp.ID, domain.OwnerPostReviewInput{
		DisputeRaised: true,
		DisputeType:   domain.DisputeDamageAssessment,
		DisputeReason: "new dent",
	}, photos(1))
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if d == nil || d.Status != domain.DisputeOpen || d.Type != domain.DisputeDamageAssessment || d.Reason != "new dent" {
		t.Fatalf("unexpected dispute %+v", d)
	}
	if d.InspectionID != insp.ID || d.ReviewStep != domain.ReviewStepOwnerPostReview || d.RaisedBy != f.owner.ID {
		t.Fatalf("dispute not linked: %+v", d)
	}
	if got.PostStatus != domain.PostOwnerDisputed || got.OwnerPostReview.DisputeID == nil || *got.OwnerPostReview.DisputeID != d.ID {
		t.Fatalf("review not linked to dispute: %+v", got.OwnerPostReview)
	}
	if len(d.Evidence) != 1 {
		t.Fatalf("expected 1 evidence url, got %d", len(d.Evidence))
	}

	stored, err := f.repo.GetDispute(ctx, d.ID)
	if err != nil {
		t.Fatalf("dispute not stored: %v", err)
	}
	if stored.Status != domain.DisputeOpen {
		t.Fatalf("expected open, got %s", stored.Status)
	}
}

func TestFullRoundTripLeavesNoOpenDisputes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)

	f.acceptPre(t, insp.ID)
	f.confirmPost(t, insp.ID)
	got, d, err := f.svc.SubmitOwnerPostReview(ctx, f.owner, insp.ID, domain.OwnerPostReviewInput{Accepted: true}, nil)
	if err != nil {
		t.Fatalf("owner review: %v", err)
	}
	if d != nil {
		t.Fatal("accepting review must not open a dispute")
	}
	if got.PreStatus != domain.PreRenterAccepted || got.PostStatus != domain.PostOwnerAccepted {
		t.Fatalf("expected terminal accepted states, got %s/%s", got.PreStatus, got.PostStatus)
	}
	if !got.PreSettled() || !got.PostSettled() {
		t.Fatal("expected both exchanges settled")
	}
	if n := f.repo.openDisputes(insp.ID); n != 0 {
		t.Fatalf("expected zero open disputes, got %d", n)
	}
}

func TestPostLegWaitsForAcceptedPre(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)
	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	in := domain.RenterPostInput{Condition: domain.Condition{"overall": "good"}, ReturnLocation: &domain.GeoPoint{}}
	_, err := f.svc.SubmitRenterPostInspection(ctx, f.renter, insp.ID, in, photos(2))
	assertKind(t, err, apperr.KindInvalidTransition)
	if f.gateway.uploads != 1 {
		t.Fatalf("expected only the owner upload, got %d", f.gateway.uploads)
	}
}

func TestLifecycleCompleteInvariant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypeQualityVerification)

	_, err := f.svc.Start(ctx, f.inspector, insp.ID)
	assertKind(t, err, apperr.KindForbidden)

	if _, err := f.svc.AssignInspector(ctx, f.admin, insp.ID, f.inspector.ID); err != nil {
		t.Fatalf("assign inspector: %v", err)
	}
	if _, err := f.svc.Start(ctx, f.inspector, insp.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = f.svc.Complete(ctx, f.inspector, insp.ID, nil, "")
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.Complete(ctx, f.inspector, insp.ID, []domain.ItemInput{{ItemName: "frame", Condition: domain.ConditionGood}}, "")
	assertKind(t, err, apperr.KindValidation)

	item, err := f.svc.AddItem(ctx, f.inspector, insp.ID, domain.ItemInput{ItemName: "wheel", Condition: domain.ConditionFair, Description: "worn tread"}, photos(2))
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(item.Photos) != 2 {
		t.Fatalf("expected 2 item photos, got %d", len(item.Photos))
	}
	updated, err := f.svc.UpdateItem(ctx, f.inspector, insp.ID, item.ID, domain.ItemInput{ItemName: "wheel", Condition: domain.ConditionPoor, Description: "bald tread"}, photos(1))
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.Condition != domain.ConditionPoor || len(updated.Photos) != 3 {
		t.Fatalf("unexpected update %+v", updated)
	}

	done, err := f.svc.Complete(ctx, f.inspector, insp.ID, []domain.ItemInput{{ItemName: "frame", Condition: domain.ConditionGood, Description: "no cracks"}}, "all checked")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || len(done.Items) != 2 || done.CompletedAt == nil {
		t.Fatalf("unexpected completed inspection %+v", done)
	}
	for _, it := range done.Items {
		if it.Description == "" {
			t.Fatalf("item %s has empty description", it.ItemName)
		}
	}

	_, err = f.svc.AddItem(ctx, f.inspector, insp.ID, domain.ItemInput{ItemName: "bell", Condition: domain.ConditionGood, Description: "rings"}, nil)
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestCancelClosesNegotiation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)

	got, err := f.svc.Cancel(ctx, f.admin, insp.ID, "booking withdrawn")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled || got.CancelReason != "booking withdrawn" {
		t.Fatalf("unexpected cancelled inspection %+v", got)
	}
	_, err = f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, nil)
	assertKind(t, err, apperr.KindInvalidTransition)

	// A cancelled inspection frees the booking for a new one of the same type.
	f.create(t, domain.TypePreRental)
}

func TestUploadFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)
	f.gateway.failUploads = true

	_, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(2))
	assertKind(t, err, apperr.KindUpload)

	stored, _ := f.repo.GetInspection(ctx, insp.ID)
	if stored.PreStatus != domain.PreNone || stored.OwnerPre != nil || stored.Version != insp.Version {
		t.Fatalf("expected untouched inspection, got %s v%d", stored.PreStatus, stored.Version)
	}
}

func TestFailedWriteDeletesUploadedEvidence(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)
	f.repo.failSave = errors.New("connection reset")

	_, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(3))
	if err == nil {
		t.Fatal("expected write error")
	}
	if len(f.gateway.deleted) != 3 || f.gateway.storedCount() != 0 {
		t.Fatalf("expected 3 compensating deletes, got %v", f.gateway.deleted)
	}
}

func TestStaleWriterGetsConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)

	stale, _ := f.repo.GetInspection(ctx, insp.ID)
	if _, err := f.svc.SubmitOwnerPreInspection(ctx, f.owner, insp.ID, domain.OwnerPreInput{}, photos(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := stale.SubmitOwnerPre(domain.OwnerPreInput{Notes: "late"}, nil, testNow); err != nil {
		t.Fatalf("apply: %v", err)
	}
	err := f.repo.SaveInspection(ctx, stale, stale.Version)
	assertKind(t, err, apperr.KindConflict)
}

func TestResolveTwiceFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePostReturn)
	f.confirmPost(t, insp.ID)
	_, d, err := f.svc.SubmitOwnerPostReview(ctx, f.owner, insp.ID, domain.OwnerPostReviewInput{
		DisputeRaised: true, DisputeType: domain.DisputeCostDispute, DisputeReason: "repair quote",
	}, nil)
	if err != nil {
		t.Fatalf("review: %v", err)
	}

	_, err = f.svc.AssignDispute(ctx, f.owner, d.ID, f.inspector.ID)
	assertKind(t, err, apperr.KindForbidden)
	if _, err := f.svc.AssignDispute(ctx, f.admin, d.ID, f.inspector.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err = f.svc.ResolveDispute(ctx, f.renter, nil, d.ID, "not mine to resolve")
	assertKind(t, err, apperr.KindForbidden)
	_, err = f.svc.ResolveDispute(ctx, f.inspector, nil, d.ID, "  ")
	assertKind(t, err, apperr.KindValidation)
	other := uuid.New()
	_, err = f.svc.ResolveDispute(ctx, f.inspector, &other, d.ID, "split the cost")
	assertKind(t, err, apperr.KindNotFound)

	resolved, err := f.svc.ResolveDispute(ctx, f.inspector, &insp.ID, d.ID, "split the cost")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.DisputeResolved || *resolved.ResolutionNotes != "split the cost" || *resolved.ResolvedBy != f.inspector.ID {
		t.Fatalf("unexpected resolution %+v", resolved)
	}

	_, err = f.svc.ResolveDispute(ctx, f.admin, nil, d.ID, "override")
	assertKind(t, err, apperr.KindInvalidTransition)
	stored, _ := f.repo.GetDispute(ctx, d.ID)
	if *stored.ResolutionNotes != "split the cost" {
		t.Fatalf("resolution notes overwritten: %s", *stored.ResolutionNotes)
	}
}

func TestRaiseDisputeRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)

	_, err := f.svc.RaiseDispute(ctx, f.renter, insp.ID, domain.RaiseInput{Type: domain.DisputeOther, Reason: "too early"}, nil)
	assertKind(t, err, apperr.KindInvalidTransition)

	f.acceptPre(t, insp.ID)

	_, err = f.svc.RaiseDispute(ctx, f.renter, insp.ID, domain.RaiseInput{Type: "fraud", Reason: "x"}, nil)
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.RaiseDispute(ctx, f.stranger, insp.ID, domain.RaiseInput{Type: domain.DisputeOther, Reason: "x"}, nil)
	assertKind(t, err, apperr.KindForbidden)

	d, err := f.svc.RaiseDispute(ctx, f.owner, insp.ID, domain.RaiseInput{Type: domain.DisputeOther, Reason: "late handover"}, photos(2))
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if d.Status != domain.DisputeOpen || len(d.Evidence) != 2 {
		t.Fatalf("unexpected dispute %+v", d)
	}
}

func TestDisputeQueries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	insp := f.create(t, domain.TypePreRental)
	f.acceptPre(t, insp.ID)

	for _, actor := range []struct {
		reason string
		by     func() (*domain.Dispute, error)
	}{
		{"owner", func() (*domain.Dispute, error) {
			return f.svc.RaiseDispute(ctx, f.owner, insp.ID, domain.RaiseInput{Type: domain.DisputeOther, Reason: "owner"}, nil)
		}},
		{"renter", func() (*domain.Dispute, error) {
			return f.svc.RaiseDispute(ctx, f.renter, insp.ID, domain.RaiseInput{Type: domain.DisputeOther, Reason: "renter"}, nil)
		}},
	} {
		if _, err := actor.by(); err != nil {
			t.Fatalf("raise by %s: %v", actor.reason, err)
		}
	}

	mine, err := f.svc.MyDisputes(ctx, f.renter, Page{})
	if err != nil || mine.Total != 1 || mine.Items[0].RaisedBy != f.renter.ID {
		t.Fatalf("renter should see own dispute only, got %+v, %v", mine, err)
	}
	all, err := f.svc.MyDisputes(ctx, f.inspector, Page{})
	if err != nil || all.Total != 2 {
		t.Fatalf("inspector should see all disputes, got %+v, %v", all, err)
	}

	byInspection, err := f.svc.ListInspectionDisputes(ctx, f.owner, insp.ID, Page{PageSize: 1})
	if err != nil || byInspection.Total != 2 || len(byInspection.Items) != 1 {
		t.Fatalf("unexpected inspection listing %+v, %v", byInspection, err)
	}
	_, err = f.svc.ListInspectionDisputes(ctx, f.stranger, insp.ID, Page{})
	assertKind(t, err, apperr.KindForbidden)

	_, err = f.svc.ListDisputes(ctx, f.owner, DisputeListInput{})
	assertKind(t, err, apperr.KindForbidden)
	open := domain.DisputeOpen
	listed, err := f.svc.ListDisputes(ctx, f.admin, DisputeListInput{Status: &open, Page: Page{PageSize: 500}})
	if err != nil || listed.Total != 2 || listed.PageSize != maxPageSize {
		t.Fatalf("unexpected admin listing %+v, %v", listed, err)
	}
	bad := domain.DisputeStatus("closed")
	_, err = f.svc.ListDisputes(ctx, f.admin, DisputeListInput{Status: &bad})
	assertKind(t, err, apperr.KindValidation)
}

func TestListScopesNonAdmins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.create(t, domain.TypePreRental)
	f.create(t, domain.TypePostReturn)

	mine, err := f.svc.List(ctx, f.renter, ListInput{})
	if err != nil || mine.Total != 2 {
		t.Fatalf("renter should see both, got %+v, %v", mine, err)
	}
	none, err := f.svc.List(ctx, f.stranger, ListInput{})
	if err != nil || none.Total != 0 || none.Items == nil {
		t.Fatalf("stranger should see an empty list, got %+v, %v", none, err)
	}
	typ := domain.TypePostReturn
	filtered, err := f.svc.List(ctx, f.admin, ListInput{Type: &typ})
	if err != nil || filtered.Total != 1 {
		t.Fatalf("admin type filter, got %+v, %v", filtered, err)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture()
	insp := f.create(t, domain.TypePostReturn)
	f.confirmPost(t, insp.ID)
	if _, _, err := f.svc.SubmitOwnerPostReview(context.Background(), f.owner, insp.ID, domain.OwnerPostReviewInput{
		DisputeRaised: true, DisputeType: domain.DisputeOther, DisputeReason: "missing strap",
	}, nil); err != nil {
		t.Fatalf("review: %v", err)
	}

	want := []string{
		events.InspectionCreated{}.EventName(),
		events.NegotiationStepRecorded{}.EventName(),
		events.NegotiationStepRecorded{}.EventName(),
		events.NegotiationStepRecorded{}.EventName(),
		events.DisputeRaised{}.EventName(),
	}
	got := f.bus.names()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
