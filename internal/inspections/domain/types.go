// Package domain provides core business rules for the inspections bounded context.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InspectionType identifies which phase of a booking an inspection covers.
type InspectionType string

const (
	TypePreRental             InspectionType = "pre_rental"
	TypePostReturn            InspectionType = "post_return"
	TypeDamageAssessment      InspectionType = "damage_assessment"
	TypePostRentalMaintenance InspectionType = "post_rental_maintenance_check"
	TypeQualityVerification   InspectionType = "quality_verification"
)

// Valid reports whether t is a known inspection type.
func (t InspectionType) Valid() bool {
	switch t {
	case TypePreRental, TypePostReturn, TypeDamageAssessment, TypePostRentalMaintenance, TypeQualityVerification:
		return true
	}
	return false
}

// Status is the inspection lifecycle state.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// PreStatus tracks the owner-submits / renter-reviews exchange before handover.
type PreStatus string

const (
	PreNone              PreStatus = "none"
	PreOwnerSubmitted    PreStatus = "owner_pre_submitted"
	PreOwnerConfirmed    PreStatus = "owner_pre_confirmed"
	PreRenterAccepted    PreStatus = "renter_pre_accepted"
	PreRenterRejected    PreStatus = "renter_pre_rejected"
	PreRenterDiscrepancy PreStatus = "renter_pre_discrepancy"
)

// PostStatus tracks the renter-submits / owner-reviews exchange after return.
type PostStatus string

const (
	PostNone            PostStatus = "none"
	PostRenterSubmitted PostStatus = "renter_post_submitted"
	PostRenterConfirmed PostStatus = "renter_post_confirmed"
	PostOwnerAccepted   PostStatus = "owner_post_accepted"
	PostOwnerDisputed   PostStatus = "owner_post_disputed"
)

// ItemCondition grades a single inspected item.
type ItemCondition string

const (
	ConditionExcellent ItemCondition = "excellent"
	ConditionGood      ItemCondition = "good"
	ConditionFair      ItemCondition = "fair"
	ConditionPoor      ItemCondition = "poor"
	ConditionDamaged   ItemCondition = "damaged"
)

// Valid reports whether c is a known item condition.
func (c ItemCondition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged:
		return true
	}
	return false
}

// GeoPoint is a captured location. A zero lat/lng is a valid point.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Condition is a free-form condition snapshot, e.g. {"overall":"good"}.
type Condition map[string]any

var errConditionShape = errors.New("condition must be a JSON object or string")

// ParseCondition accepts either a JSON object or a bare JSON string. A bare
// string s becomes {"overall": s}. Plain text that is not JSON is treated
// the same way. Empty input and null yield nil.
func ParseCondition(raw []byte) (Condition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var c Condition
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, errConditionShape
		}
		if len(c) == 0 {
			return nil, nil
		}
		return c, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, errConditionShape
		}
		return conditionFromString(s), nil
	case '[':
		return nil, errConditionShape
	default:
		return conditionFromString(string(trimmed)), nil
	}
}

func conditionFromString(s string) Condition {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return Condition{"overall": s}
}

// InspectionItem is one recorded item of an inspection.
type InspectionItem struct {
	ID           uuid.UUID     `json:"id"`
	InspectionID uuid.UUID     `json:"inspectionId"`
	ItemName     string        `json:"itemName"`
	Condition    ItemCondition `json:"condition"`
	Description  string        `json:"description"`
	Photos       []string      `json:"photos"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// OwnerPreInspection is the owner's pre-handover evidence.
type OwnerPreInspection struct {
	Photos      []string   `json:"photos"`
	Condition   Condition  `json:"condition"`
	Notes       string     `json:"notes,omitempty"`
	Location    *GeoPoint  `json:"location,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// RenterPreReview is the renter's answer to a confirmed owner pre-inspection.
type RenterPreReview struct {
	Accepted           bool      `json:"accepted"`
	Concerns           []string  `json:"concerns"`
	AdditionalRequests []string  `json:"additionalRequests"`
	Timestamp          time.Time `json:"timestamp"`
}

// RenterDiscrepancy is a renter-reported disagreement with the owner's claims.
type RenterDiscrepancy struct {
	Issues     []string               `json:"issues"`
	Notes      string                 `json:"notes,omitempty"`
	Photos     []string               `json:"photos"`
	Timestamp  time.Time              `json:"timestamp"`
	Settlement *DiscrepancySettlement `json:"settlement,omitempty"`
}

// SettlementOutcome is the pre-handover state a settled discrepancy lands in.
type SettlementOutcome string

const (
	SettlementAccepted SettlementOutcome = "accepted"
	SettlementRejected SettlementOutcome = "rejected"
)

// DiscrepancySettlement records how an inspector or admin closed a
// contested handover.
type DiscrepancySettlement struct {
	Outcome   SettlementOutcome `json:"outcome"`
	Notes     string            `json:"notes"`
	SettledBy uuid.UUID         `json:"settledBy"`
	Timestamp time.Time         `json:"timestamp"`
}

// RenterPostInspection is the renter's return evidence.
type RenterPostInspection struct {
	ReturnPhotos   []string   `json:"returnPhotos"`
	Condition      Condition  `json:"condition"`
	Notes          string     `json:"notes,omitempty"`
	ReturnLocation *GeoPoint  `json:"returnLocation"`
	Timestamp      time.Time  `json:"timestamp"`
	Confirmed      bool       `json:"confirmed"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
}

// OwnerPostReview is the owner's answer to a confirmed return.
type OwnerPostReview struct {
	Accepted             bool        `json:"accepted"`
	DisputeRaised        bool        `json:"disputeRaised"`
	DisputeType          DisputeType `json:"disputeType,omitempty"`
	DisputeReason        string      `json:"disputeReason,omitempty"`
	DisputeEvidence      []string    `json:"disputeEvidence,omitempty"`
	DisputeEvidenceNotes string      `json:"disputeEvidenceNotes,omitempty"`
	Notes                string      `json:"notes,omitempty"`
	Timestamp            time.Time   `json:"timestamp"`
	DisputeID            *uuid.UUID  `json:"disputeId,omitempty"`
}
