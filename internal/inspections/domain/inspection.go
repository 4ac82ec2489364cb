package domain

import (
	"fmt"
	"strings"
	"time"

	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

// bookingStatusesForInspection are booking states in which an inspection may be created.
var bookingStatusesForInspection = map[string]bool{
	"confirmed":   true,
	"active":      true,
	"in_progress": true,
	"completed":   true,
	"returned":    true,
}

// BookingAllowsInspection reports whether a booking in status can receive inspections.
func BookingAllowsInspection(status string) bool {
	return bookingStatusesForInspection[strings.ToLower(strings.TrimSpace(status))]
}

// Inspection is the aggregate root recording condition evidence for one
// phase of a booking. Negotiation records are owned by it.
type Inspection struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	ProductID      uuid.UUID
	OwnerID        uuid.UUID
	RenterID       uuid.UUID
	InspectorID    *uuid.UUID
	Type           InspectionType
	Status         Status
	PreStatus      PreStatus
	PostStatus     PostStatus
	ScheduledAt    time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	CancelReason   string
	GeneralNotes   string
	InspectorNotes string
	OwnerNotes     string
	RenterNotes    string
	Location       string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Items             []InspectionItem
	OwnerPre          *OwnerPreInspection
	RenterPreReview   *RenterPreReview
	RenterDiscrepancy *RenterDiscrepancy
	RenterPost        *RenterPostInspection
	OwnerPostReview   *OwnerPostReview
}

// NewInspection builds a scheduled inspection with no negotiation started.
func NewInspection(bookingID, productID, ownerID, renterID uuid.UUID, t InspectionType, scheduledAt time.Time, location string, now time.Time) *Inspection {
	return &Inspection{
		ID:          uuid.New(),
		BookingID:   bookingID,
		ProductID:   productID,
		OwnerID:     ownerID,
		RenterID:    renterID,
		Type:        t,
		Status:      StatusScheduled,
		PreStatus:   PreNone,
		PostStatus:  PostNone,
		ScheduledAt: scheduledAt.UTC(),
		Location:    strings.TrimSpace(location),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsClosed reports whether the inspection accepts no further changes.
func (i *Inspection) IsClosed() bool {
	return i.Status == StatusCompleted || i.Status == StatusCancelled
}

// PreSettled reports whether the pre-handover exchange is untouched or finished.
func (i *Inspection) PreSettled() bool {
	switch i.PreStatus {
	case PreNone, PreRenterAccepted, PreRenterRejected:
		return true
	}
	return false
}

// PostSettled reports whether the return exchange is untouched or finished.
func (i *Inspection) PostSettled() bool {
	switch i.PostStatus {
	case PostNone, PostOwnerAccepted, PostOwnerDisputed:
		return true
	}
	return false
}

// DisputeEligible reports whether a formal dispute may be raised.
func (i *Inspection) DisputeEligible() bool {
	if i.Status == StatusCancelled {
		return false
	}
	if i.Status == StatusCompleted {
		return true
	}
	switch i.PreStatus {
	case PreRenterAccepted, PreRenterRejected, PreRenterDiscrepancy:
		return true
	}
	switch i.PostStatus {
	case PostOwnerAccepted, PostOwnerDisputed:
		return true
	}
	return false
}

// DisputeReviewStep names the review step a newly raised dispute attaches
// to, or "" when it concerns the inspection as a whole.
func (i *Inspection) DisputeReviewStep() ReviewStep {
	switch {
	case i.PostStatus == PostOwnerDisputed || i.PostStatus == PostOwnerAccepted:
		return ReviewStepOwnerPostReview
	case i.PreStatus == PreRenterDiscrepancy:
		return ReviewStepRenterPreDiscrepancy
	case i.PreStatus == PreRenterRejected:
		return ReviewStepRenterPreReview
	}
	return ""
}

// IsParticipant reports whether id is the owner, renter or assigned inspector.
func (i *Inspection) IsParticipant(id uuid.UUID) bool {
	return id == i.OwnerID || id == i.RenterID || (i.InspectorID != nil && *i.InspectorID == id)
}

// Start moves a scheduled inspection to in_progress once every negotiation
// that has begun is settled.
func (i *Inspection) Start(now time.Time) error {
	if i.Status != StatusScheduled {
		return invalidTransition("start", string(i.Status))
	}
	if !i.PreSettled() {
		return apperr.InvalidTransition(fmt.Sprintf("cannot start inspection while pre-inspection is %s", i.PreStatus))
	}
	if !i.PostSettled() {
		return apperr.InvalidTransition(fmt.Sprintf("cannot start inspection while post-inspection is %s", i.PostStatus))
	}
	i.Status = StatusInProgress
	i.StartedAt = &now
	i.touch(now)
	return nil
}

// ItemInput carries the writable fields of an item.
type ItemInput struct {
	ItemName    string
	Condition   ItemCondition
	Description string
	Photos      []string
}

// ValidateItem checks the fields every recorded item needs.
func ValidateItem(in ItemInput) error {
	details := map[string]string{}
	if strings.TrimSpace(in.ItemName) == "" {
		details["itemName"] = "required"
	}
	if !in.Condition.Valid() {
		details["condition"] = "oneof=excellent good fair poor damaged"
	}
	if strings.TrimSpace(in.Description) == "" {
		details["description"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid inspection item").WithDetails(details)
	}
	return nil
}

// CheckItemRecording reports whether items may be added or changed now.
func (i *Inspection) CheckItemRecording() error {
	if i.Status != StatusInProgress {
		return invalidTransition("record items of", string(i.Status))
	}
	return nil
}

// AddItem records a new item while the inspection is in progress.
func (i *Inspection) AddItem(in ItemInput, now time.Time) (*InspectionItem, error) {
	if err := ValidateItem(in); err != nil {
		return nil, err
	}
	if err := i.CheckItemRecording(); err != nil {
		return nil, err
	}
	item := i.newItem(in, now)
	i.Items = append(i.Items, item)
	i.touch(now)
	return &i.Items[len(i.Items)-1], nil
}

// UpdateItem replaces the fields of an existing item while in progress.
func (i *Inspection) UpdateItem(itemID uuid.UUID, in ItemInput, now time.Time) (*InspectionItem, error) {
	if err := ValidateItem(in); err != nil {
		return nil, err
	}
	if err := i.CheckItemRecording(); err != nil {
		return nil, err
	}
	for idx := range i.Items {
		if i.Items[idx].ID != itemID {
			continue
		}
		item := &i.Items[idx]
		item.ItemName = strings.TrimSpace(in.ItemName)
		item.Condition = in.Condition
		item.Description = strings.TrimSpace(in.Description)
		if in.Photos != nil {
			item.Photos = in.Photos
		}
		item.UpdatedAt = now
		i.touch(now)
		return item, nil
	}
	return nil, apperr.NotFound("inspection item not found")
}

// Complete appends the final items and closes the inspection. Every item,
// old and new, must carry a description.
func (i *Inspection) Complete(items []ItemInput, inspectorNotes string, now time.Time) error {
	if len(items) == 0 {
		return apperr.Validation("at least one inspection item is required").
			WithDetails(map[string]string{"items": "min=1"})
	}
	for idx, in := range items {
		if err := ValidateItem(in); err != nil {
			return apperr.Validation(fmt.Sprintf("item %d is invalid", idx)).WithDetails(detailsOf(err))
		}
	}
	if i.Status != StatusInProgress {
		return invalidTransition("complete", string(i.Status))
	}
	for _, existing := range i.Items {
		if strings.TrimSpace(existing.Description) == "" {
			return apperr.Validation(fmt.Sprintf("item %q has no description", existing.ItemName))
		}
	}

	for _, in := range items {
		i.Items = append(i.Items, i.newItem(in, now))
	}
	if notes := strings.TrimSpace(inspectorNotes); notes != "" {
		i.InspectorNotes = notes
	}
	i.Status = StatusCompleted
	i.CompletedAt = &now
	i.touch(now)
	return nil
}

// Cancel closes an inspection that has not completed.
func (i *Inspection) Cancel(reason string, now time.Time) error {
	if i.IsClosed() {
		return invalidTransition("cancel", string(i.Status))
	}
	i.Status = StatusCancelled
	i.CancelledAt = &now
	i.CancelReason = strings.TrimSpace(reason)
	i.touch(now)
	return nil
}

// AssignInspector sets or replaces the assigned inspector.
func (i *Inspection) AssignInspector(inspectorID uuid.UUID, now time.Time) error {
	if inspectorID == uuid.Nil {
		return apperr.Validation("inspectorId is required")
	}
	if i.IsClosed() {
		return invalidTransition("assign inspector", string(i.Status))
	}
	i.InspectorID = &inspectorID
	i.touch(now)
	return nil
}

func (i *Inspection) newItem(in ItemInput, now time.Time) InspectionItem {
	photos := in.Photos
	if photos == nil {
		photos = []string{}
	}
	return InspectionItem{
		ID:           uuid.New(),
		InspectionID: i.ID,
		ItemName:     strings.TrimSpace(in.ItemName),
		Condition:    in.Condition,
		Description:  strings.TrimSpace(in.Description),
		Photos:       photos,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (i *Inspection) touch(now time.Time) {
	i.UpdatedAt = now
}

func invalidTransition(action, state string) error {
	return apperr.InvalidTransition(fmt.Sprintf("cannot %s inspection in state %s", action, state))
}

func detailsOf(err error) interface{} {
	if e, ok := err.(*apperr.Error); ok {
		return e.Details
	}
	return nil
}
