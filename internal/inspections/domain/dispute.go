package domain

import (
	"strings"
	"time"

	"rental_inspections_backend/platform/apperr"

	"github.com/google/uuid"
)

// DisputeType classifies a dispute.
type DisputeType string

const (
	DisputeDamageAssessment      DisputeType = "damage_assessment"
	DisputeConditionDisagreement DisputeType = "condition_disagreement"
	DisputeCostDispute           DisputeType = "cost_dispute"
	DisputeOther                 DisputeType = "other"
)

// Valid reports whether t is one of the canonical dispute types.
func (t DisputeType) Valid() bool {
	switch t {
	case DisputeDamageAssessment, DisputeConditionDisagreement, DisputeCostDispute, DisputeOther:
		return true
	}
	return false
}

// DisputeStatus is the dispute workflow state.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeAssigned DisputeStatus = "assigned"
	DisputeResolved DisputeStatus = "resolved"
)

// Valid reports whether s is a known dispute status.
func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputeOpen, DisputeAssigned, DisputeResolved:
		return true
	}
	return false
}

// ReviewStep links a dispute to the negotiation step it arose from.
type ReviewStep string

const (
	ReviewStepOwnerPostReview      ReviewStep = "owner_post_review"
	ReviewStepRenterPreDiscrepancy ReviewStep = "renter_pre_discrepancy"
	ReviewStepRenterPreReview      ReviewStep = "renter_pre_review"
)

// Dispute is a formally tracked disagreement about an inspection.
// ResolutionNotes is set exactly when Status is resolved.
type Dispute struct {
	ID              uuid.UUID
	InspectionID    uuid.UUID
	ReviewStep      ReviewStep
	RaisedBy        uuid.UUID
	Type            DisputeType
	Reason          string
	Evidence        []string
	EvidenceNotes   string
	Status          DisputeStatus
	AssignedTo      *uuid.UUID
	ResolutionNotes *string
	ResolvedBy      *uuid.UUID
	ResolvedAt      *time.Time
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RaiseInput carries the fields of a new dispute.
type RaiseInput struct {
	Type          DisputeType
	Reason        string
	EvidenceNotes string
	ReviewStep    ReviewStep
}

// ValidateRaise checks the dispute payload on its own.
func ValidateRaise(in RaiseInput) error {
	details := map[string]string{}
	if !in.Type.Valid() {
		details["disputeType"] = "oneof=damage_assessment condition_disagreement cost_dispute other"
	}
	if strings.TrimSpace(in.Reason) == "" {
		details["reason"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid dispute").WithDetails(details)
	}
	return nil
}

// NewDispute builds an open dispute against inspectionID.
func NewDispute(inspectionID, raisedBy uuid.UUID, in RaiseInput, evidence []string, now time.Time) (*Dispute, error) {
	if err := ValidateRaise(in); err != nil {
		return nil, err
	}
	return &Dispute{
		ID:            uuid.New(),
		InspectionID:  inspectionID,
		ReviewStep:    in.ReviewStep,
		RaisedBy:      raisedBy,
		Type:          in.Type,
		Reason:        strings.TrimSpace(in.Reason),
		Evidence:      nonNil(evidence),
		EvidenceNotes: strings.TrimSpace(in.EvidenceNotes),
		Status:        DisputeOpen,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Assign hands the dispute to assignee. Reassigning an assigned dispute is allowed.
func (d *Dispute) Assign(assignee uuid.UUID, now time.Time) error {
	if assignee == uuid.Nil {
		return apperr.Validation("assigneeId is required")
	}
	if d.Status == DisputeResolved {
		return apperr.InvalidTransition("dispute is already resolved")
	}
	d.AssignedTo = &assignee
	d.Status = DisputeAssigned
	d.UpdatedAt = now
	return nil
}

// Resolve closes the dispute. Resolving a resolved dispute fails and keeps
// the original notes.
func (d *Dispute) Resolve(resolver uuid.UUID, notes string, now time.Time) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return apperr.Validation("resolutionNotes is required").
			WithDetails(map[string]string{"resolutionNotes": "required"})
	}
	if d.Status == DisputeResolved {
		return apperr.InvalidTransition("dispute is already resolved")
	}
	d.Status = DisputeResolved
	d.ResolutionNotes = &notes
	d.ResolvedBy = &resolver
	d.ResolvedAt = &now
	d.UpdatedAt = now
	return nil
}
