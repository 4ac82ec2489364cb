package domain

import (
	"fmt"
	"strings"
	"time"

	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

// MinReturnPhotos is the fewest photos a renter may submit on return.
const MinReturnPhotos = 2

// OwnerPreInput is an owner pre-inspection submission before upload.
type OwnerPreInput struct {
	Condition Condition
	Notes     string
	Location  *GeoPoint
}

// RenterPreReviewInput is the renter's verdict on the owner's evidence.
type RenterPreReviewInput struct {
	Accepted           bool
	Concerns           []string
	AdditionalRequests []string
}

// DiscrepancyInput is a renter discrepancy report before upload.
type DiscrepancyInput struct {
	Issues []string
	Notes  string
}

// SettlementInput is an inspector's or admin's ruling on a discrepancy.
type SettlementInput struct {
	Outcome SettlementOutcome
	Notes   string
}

// RenterPostInput is a renter return submission before upload.
type RenterPostInput struct {
	Condition      Condition
	Notes          string
	ReturnLocation *GeoPoint
}

// OwnerPostReviewInput is the owner's verdict on the return.
type OwnerPostReviewInput struct {
	Accepted             bool
	DisputeRaised        bool
	DisputeType          DisputeType
	DisputeReason        string
	DisputeEvidenceNotes string
	Notes                string
}

// ---- pre-handover exchange ----

// CheckOwnerPreSubmission reports whether the owner may (re)submit.
func (i *Inspection) CheckOwnerPreSubmission() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.PreStatus != PreNone && i.PreStatus != PreOwnerSubmitted {
		return apperr.InvalidTransition(fmt.Sprintf("owner pre-inspection cannot be submitted in state %s", i.PreStatus))
	}
	return nil
}

// SubmitOwnerPre records (or overwrites) the owner's unconfirmed evidence.
func (i *Inspection) SubmitOwnerPre(in OwnerPreInput, photos []string, now time.Time) error {
	if err := i.CheckOwnerPreSubmission(); err != nil {
		return err
	}
	i.OwnerPre = &OwnerPreInspection{
		Photos:    nonNil(photos),
		Condition: in.Condition,
		Notes:     strings.TrimSpace(in.Notes),
		Location:  in.Location,
		Timestamp: now,
	}
	if i.OwnerPre.Notes != "" {
		i.OwnerNotes = i.OwnerPre.Notes
	}
	i.PreStatus = PreOwnerSubmitted
	i.touch(now)
	return nil
}

// ConfirmOwnerPre locks the owner's submission. Confirming again refreshes
// the confirmation time and changes nothing else.
func (i *Inspection) ConfirmOwnerPre(now time.Time) error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.OwnerPre == nil || i.PreStatus == PreNone {
		return apperr.InvalidTransition("no owner pre-inspection to confirm")
	}
	if i.PreStatus == PreOwnerSubmitted {
		i.PreStatus = PreOwnerConfirmed
		i.OwnerPre.Confirmed = true
	}
	i.OwnerPre.ConfirmedAt = &now
	i.touch(now)
	return nil
}

// ValidateRenterPreReview checks the review payload on its own.
func ValidateRenterPreReview(in RenterPreReviewInput) error {
	if in.Accepted {
		return nil
	}
	if len(cleanList(in.Concerns)) == 0 && len(cleanList(in.AdditionalRequests)) == 0 {
		return apperr.Validation("concerns or additionalRequests are required when rejecting").
			WithDetails(map[string]string{"concerns": "required_without=additionalRequests"})
	}
	return nil
}

// SubmitRenterPreReview records the renter's accept or reject verdict.
func (i *Inspection) SubmitRenterPreReview(in RenterPreReviewInput, now time.Time) error {
	if err := ValidateRenterPreReview(in); err != nil {
		return err
	}
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.PreStatus != PreOwnerConfirmed {
		return apperr.InvalidTransition(fmt.Sprintf("renter pre-review is not allowed in state %s", i.PreStatus))
	}
	i.RenterPreReview = &RenterPreReview{
		Accepted:           in.Accepted,
		Concerns:           cleanList(in.Concerns),
		AdditionalRequests: cleanList(in.AdditionalRequests),
		Timestamp:          now,
	}
	if in.Accepted {
		i.PreStatus = PreRenterAccepted
	} else {
		i.PreStatus = PreRenterRejected
	}
	i.touch(now)
	return nil
}

// ValidateDiscrepancy checks the discrepancy payload on its own.
func ValidateDiscrepancy(in DiscrepancyInput) error {
	if len(cleanList(in.Issues)) == 0 {
		return apperr.Validation("issues are required").WithDetails(map[string]string{"issues": "min=1"})
	}
	return nil
}

// CheckDiscrepancy reports whether the renter may report a discrepancy now.
// Reporting closes once the return exchange has begun.
func (i *Inspection) CheckDiscrepancy() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	switch i.PreStatus {
	case PreOwnerConfirmed, PreRenterAccepted, PreRenterRejected:
	default:
		return apperr.InvalidTransition(fmt.Sprintf("discrepancy cannot be reported in state %s", i.PreStatus))
	}
	if i.RenterDiscrepancy != nil && i.RenterDiscrepancy.Settlement != nil {
		return apperr.InvalidTransition("discrepancy has already been settled")
	}
	if i.PostStatus != PostNone {
		return apperr.InvalidTransition("discrepancy cannot be reported after the return inspection has begun")
	}
	return nil
}

// ReportRenterDiscrepancy flags the pre-handover evidence as contested.
func (i *Inspection) ReportRenterDiscrepancy(in DiscrepancyInput, photos []string, now time.Time) error {
	if err := ValidateDiscrepancy(in); err != nil {
		return err
	}
	if err := i.CheckDiscrepancy(); err != nil {
		return err
	}
	i.RenterDiscrepancy = &RenterDiscrepancy{
		Issues:    cleanList(in.Issues),
		Notes:     strings.TrimSpace(in.Notes),
		Photos:    nonNil(photos),
		Timestamp: now,
	}
	if i.RenterDiscrepancy.Notes != "" {
		i.RenterNotes = i.RenterDiscrepancy.Notes
	}
	i.PreStatus = PreRenterDiscrepancy
	i.touch(now)
	return nil
}

// ValidateSettlement checks a settlement before the state is consulted.
func ValidateSettlement(in SettlementInput) error {
	details := map[string]string{}
	switch in.Outcome {
	case SettlementAccepted, SettlementRejected:
	default:
		details["outcome"] = "oneof=accepted rejected"
	}
	if strings.TrimSpace(in.Notes) == "" {
		details["notes"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid settlement").WithDetails(details)
	}
	return nil
}

// CheckSettleDiscrepancy reports whether a reported discrepancy may be
// settled now.
func (i *Inspection) CheckSettleDiscrepancy() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.PreStatus != PreRenterDiscrepancy {
		return apperr.InvalidTransition(fmt.Sprintf("no discrepancy to settle in state %s", i.PreStatus))
	}
	return nil
}

// SettleDiscrepancy closes a contested handover. An accepted outcome lets
// the rental proceed as if the renter had accepted; a rejected one closes
// the handover as refused.
func (i *Inspection) SettleDiscrepancy(in SettlementInput, by uuid.UUID, now time.Time) error {
	if err := ValidateSettlement(in); err != nil {
		return err
	}
	if err := i.CheckSettleDiscrepancy(); err != nil {
		return err
	}
	var settled RenterDiscrepancy
	if i.RenterDiscrepancy != nil {
		settled = *i.RenterDiscrepancy
	}
	settled.Settlement = &DiscrepancySettlement{
		Outcome:   in.Outcome,
		Notes:     strings.TrimSpace(in.Notes),
		SettledBy: by,
		Timestamp: now,
	}
	i.RenterDiscrepancy = &settled
	if in.Outcome == SettlementAccepted {
		i.PreStatus = PreRenterAccepted
	} else {
		i.PreStatus = PreRenterRejected
	}
	i.touch(now)
	return nil
}

// ---- return exchange ----

// ValidateRenterPost checks a return submission. The photo count is
// checked first so a short submission always fails the same way.
func ValidateRenterPost(in RenterPostInput, photoCount int) error {
	if photoCount < MinReturnPhotos {
		return apperr.Validation(fmt.Sprintf("at least %d return photos are required", MinReturnPhotos)).
			WithDetails(map[string]string{"photos": fmt.Sprintf("min=%d", MinReturnPhotos)})
	}
	details := map[string]string{}
	if len(in.Condition) == 0 {
		details["condition"] = "required"
	}
	if in.ReturnLocation == nil {
		details["returnLocation"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid post-inspection").WithDetails(details)
	}
	return nil
}

// CheckRenterPostSubmission reports whether the renter may (re)submit.
// The return leg opens once handover was accepted, or immediately when no
// pre-handover exchange took place.
func (i *Inspection) CheckRenterPostSubmission() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.PreStatus != PreNone && i.PreStatus != PreRenterAccepted {
		return apperr.InvalidTransition(fmt.Sprintf("post-inspection cannot begin while pre-inspection is %s", i.PreStatus))
	}
	if i.PostStatus != PostNone && i.PostStatus != PostRenterSubmitted {
		return apperr.InvalidTransition(fmt.Sprintf("renter post-inspection cannot be submitted in state %s", i.PostStatus))
	}
	return nil
}

// SubmitRenterPost records (or overwrites) the renter's unconfirmed return evidence.
func (i *Inspection) SubmitRenterPost(in RenterPostInput, photos []string, now time.Time) error {
	if err := ValidateRenterPost(in, len(photos)); err != nil {
		return err
	}
	if err := i.CheckRenterPostSubmission(); err != nil {
		return err
	}
	i.RenterPost = &RenterPostInspection{
		ReturnPhotos:   photos,
		Condition:      in.Condition,
		Notes:          strings.TrimSpace(in.Notes),
		ReturnLocation: in.ReturnLocation,
		Timestamp:      now,
	}
	if i.RenterPost.Notes != "" {
		i.RenterNotes = i.RenterPost.Notes
	}
	i.PostStatus = PostRenterSubmitted
	i.touch(now)
	return nil
}

// ConfirmRenterPost locks the renter's return submission. Confirming again
// refreshes the confirmation time and changes nothing else.
func (i *Inspection) ConfirmRenterPost(now time.Time) error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.RenterPost == nil || i.PostStatus == PostNone {
		return apperr.InvalidTransition("no renter post-inspection to confirm")
	}
	if i.PostStatus == PostRenterSubmitted {
		i.PostStatus = PostRenterConfirmed
		i.RenterPost.Confirmed = true
	}
	i.RenterPost.ConfirmedAt = &now
	i.touch(now)
	return nil
}

// ValidateOwnerPostReview enforces that exactly one of accepted or
// disputeRaised is set, and the dispute fields when disputing.
func ValidateOwnerPostReview(in OwnerPostReviewInput) error {
	if in.Accepted == in.DisputeRaised {
		return apperr.Validation("exactly one of accepted or disputeRaised must be true").
			WithDetails(map[string]string{"accepted": "xor=disputeRaised"})
	}
	if !in.DisputeRaised {
		return nil
	}
	details := map[string]string{}
	if !in.DisputeType.Valid() {
		details["disputeType"] = "oneof=damage_assessment condition_disagreement cost_dispute other"
	}
	if strings.TrimSpace(in.DisputeReason) == "" {
		details["disputeReason"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid dispute in owner post-review").WithDetails(details)
	}
	return nil
}

// CheckOwnerPostReview reports whether the owner may review the return now.
func (i *Inspection) CheckOwnerPostReview() error {
	if err := i.checkOpen(); err != nil {
		return err
	}
	if i.PostStatus != PostRenterConfirmed {
		return apperr.InvalidTransition(fmt.Sprintf("owner post-review is not allowed in state %s", i.PostStatus))
	}
	return nil
}

// SubmitOwnerPostReview records the owner's verdict. When the owner disputes,
// the caller creates the linked dispute and passes its id.
func (i *Inspection) SubmitOwnerPostReview(in OwnerPostReviewInput, evidence []string, dispute *Dispute, now time.Time) error {
	if err := ValidateOwnerPostReview(in); err != nil {
		return err
	}
	if err := i.CheckOwnerPostReview(); err != nil {
		return err
	}
	if in.DisputeRaised && dispute == nil {
		return apperr.Internal("owner post-review dispute was not created")
	}

	review := &OwnerPostReview{
		Accepted:      in.Accepted,
		DisputeRaised: in.DisputeRaised,
		Notes:         strings.TrimSpace(in.Notes),
		Timestamp:     now,
	}
	if in.DisputeRaised {
		review.DisputeType = in.DisputeType
		review.DisputeReason = strings.TrimSpace(in.DisputeReason)
		review.DisputeEvidence = nonNil(evidence)
		review.DisputeEvidenceNotes = strings.TrimSpace(in.DisputeEvidenceNotes)
		id := dispute.ID
		review.DisputeID = &id
		i.PostStatus = PostOwnerDisputed
	} else {
		i.PostStatus = PostOwnerAccepted
	}
	if review.Notes != "" {
		i.OwnerNotes = review.Notes
	}
	i.OwnerPostReview = review
	i.touch(now)
	return nil
}

func (i *Inspection) checkOpen() error {
	if i.IsClosed() {
		return apperr.InvalidTransition(fmt.Sprintf("inspection is %s", i.Status))
	}
	return nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
