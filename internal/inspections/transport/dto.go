// Package transport holds the request and response shapes of the
// inspections HTTP API.
package transport

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/platform/sanitize"

	"github.com/google/uuid"
)

// StringList accepts either a JSON array of strings or a single string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*l = values
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = []string{single}
	return nil
}

// GeoPoint is a location in request bodies.
type GeoPoint struct {
	Lat     float64 `json:"lat" validate:"min=-90,max=90"`
	Lng     float64 `json:"lng" validate:"min=-180,max=180"`
	Address string  `json:"address" validate:"max=500"`
}

func (p *GeoPoint) toDomain() *domain.GeoPoint {
	if p == nil || math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return nil
	}
	return &domain.GeoPoint{Lat: p.Lat, Lng: p.Lng, Address: strings.TrimSpace(p.Address)}
}

// Request DTOs

type CreateInspectionRequest struct {
	BookingID          uuid.UUID                  `json:"bookingId" validate:"required"`
	InspectionType     domain.InspectionType      `json:"inspectionType" validate:"required,oneof=pre_rental post_return damage_assessment post_rental_maintenance_check quality_verification"`
	ScheduledAt        time.Time                  `json:"scheduledAt" validate:"required"`
	Location           string                     `json:"location" validate:"max=500"`
	GeneralNotes       string                     `json:"generalNotes" validate:"max=5000"`
	InspectorID        *uuid.UUID                 `json:"inspectorId"`
	OwnerPreInspection *OwnerPreInspectionRequest `json:"ownerPreInspection"`
}

type ListInspectionsRequest struct {
	BookingID string `form:"bookingId" validate:"omitempty,uuid"`
	Status    string `form:"status" validate:"omitempty,oneof=scheduled in_progress completed cancelled"`
	Type      string `form:"type" validate:"omitempty,oneof=pre_rental post_return damage_assessment post_rental_maintenance_check quality_verification"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type ItemRequest struct {
	ItemName    string               `json:"itemName" validate:"notblank,max=200"`
	Condition   domain.ItemCondition `json:"condition" validate:"required,oneof=excellent good fair poor damaged"`
	Description string               `json:"description" validate:"notblank,max=5000"`
	Photos      []string             `json:"photos" validate:"omitempty,dive,url"`
}

func (r ItemRequest) ToDomain() domain.ItemInput {
	return domain.ItemInput{
		ItemName:    r.ItemName,
		Condition:   r.Condition,
		Description: sanitize.Text(r.Description),
		Photos:      r.Photos,
	}
}

type CompleteInspectionRequest struct {
	Items          []ItemRequest `json:"items" validate:"required,min=1,dive"`
	InspectorNotes string        `json:"inspectorNotes" validate:"max=5000"`
}

type CancelInspectionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type AssignInspectorRequest struct {
	InspectorID uuid.UUID `json:"inspectorId" validate:"required"`
}

type OwnerPreInspectionRequest struct {
	Condition json.RawMessage `json:"condition"`
	Notes     string          `json:"notes" validate:"max=5000"`
	Location  *GeoPoint       `json:"location"`
}

func (r OwnerPreInspectionRequest) ToDomain() (domain.OwnerPreInput, error) {
	condition, err := domain.ParseCondition(r.Condition)
	if err != nil {
		return domain.OwnerPreInput{}, err
	}
	return domain.OwnerPreInput{Condition: condition, Notes: sanitize.Text(r.Notes), Location: r.Location.toDomain()}, nil
}

type RenterPreReviewRequest struct {
	Accepted           *bool      `json:"accepted" validate:"required"`
	Concerns           StringList `json:"concerns" validate:"max=50,dive,max=1000"`
	AdditionalRequests StringList `json:"additionalRequests" validate:"max=50,dive,max=1000"`
}

func (r RenterPreReviewRequest) ToDomain() domain.RenterPreReviewInput {
	return domain.RenterPreReviewInput{
		Accepted:           r.Accepted != nil && *r.Accepted,
		Concerns:           sanitize.List(r.Concerns),
		AdditionalRequests: sanitize.List(r.AdditionalRequests),
	}
}

type RenterDiscrepancyRequest struct {
	Issues StringList `json:"issues" validate:"max=50,dive,max=1000"`
	Notes  string     `json:"notes" validate:"max=5000"`
}

func (r RenterDiscrepancyRequest) ToDomain() domain.DiscrepancyInput {
	return domain.DiscrepancyInput{Issues: sanitize.List(r.Issues), Notes: sanitize.Text(r.Notes)}
}

type SettleDiscrepancyRequest struct {
	Outcome domain.SettlementOutcome `json:"outcome" validate:"required,oneof=accepted rejected"`
	Notes   string                   `json:"notes" validate:"notblank,max=5000"`
}

func (r SettleDiscrepancyRequest) ToDomain() domain.SettlementInput {
	return domain.SettlementInput{Outcome: r.Outcome, Notes: sanitize.Text(r.Notes)}
}

type RenterPostInspectionRequest struct {
	Condition      json.RawMessage `json:"condition"`
	Notes          string          `json:"notes" validate:"max=5000"`
	ReturnLocation *GeoPoint       `json:"returnLocation"`
}

func (r RenterPostInspectionRequest) ToDomain() (domain.RenterPostInput, error) {
	condition, err := domain.ParseCondition(r.Condition)
	if err != nil {
		return domain.RenterPostInput{}, err
	}
	return domain.RenterPostInput{Condition: condition, Notes: sanitize.Text(r.Notes), ReturnLocation: r.ReturnLocation.toDomain()}, nil
}

type OwnerPostReviewRequest struct {
	Accepted             bool               `json:"accepted"`
	DisputeRaised        bool               `json:"disputeRaised"`
	DisputeType          domain.DisputeType `json:"disputeType"`
	DisputeReason        string             `json:"disputeReason" validate:"max=5000"`
	DisputeEvidenceNotes string             `json:"disputeEvidenceNotes" validate:"max=5000"`
	Notes                string             `json:"notes" validate:"max=5000"`
}

func (r OwnerPostReviewRequest) ToDomain() domain.OwnerPostReviewInput {
	return domain.OwnerPostReviewInput{
		Accepted:             r.Accepted,
		DisputeRaised:        r.DisputeRaised,
		DisputeType:          r.DisputeType,
		DisputeReason:        sanitize.Text(r.DisputeReason),
		DisputeEvidenceNotes: sanitize.Text(r.DisputeEvidenceNotes),
		Notes:                sanitize.Text(r.Notes),
	}
}

type RaiseDisputeRequest struct {
	DisputeType   domain.DisputeType `json:"disputeType"`
	Reason        string             `json:"reason" validate:"max=5000"`
	EvidenceNotes string             `json:"evidenceNotes" validate:"max=5000"`
}

func (r RaiseDisputeRequest) ToDomain() domain.RaiseInput {
	return domain.RaiseInput{Type: r.DisputeType, Reason: sanitize.Text(r.Reason), EvidenceNotes: sanitize.Text(r.EvidenceNotes)}
}

type AssignDisputeRequest struct {
	AssigneeID uuid.UUID `json:"assigneeId" validate:"required"`
}

type ResolveDisputeRequest struct {
	ResolutionNotes string `json:"resolutionNotes" validate:"max=10000"`
}

type PageRequest struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type ListDisputesRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=open assigned resolved"`
	Type     string `form:"type" validate:"omitempty,oneof=damage_assessment condition_disagreement cost_dispute other"`
	From     string `form:"from"`
	To       string `form:"to"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// Response DTOs

type InspectionResponse struct {
	ID                   uuid.UUID                    `json:"id"`
	BookingID            uuid.UUID                    `json:"bookingId"`
	ProductID            uuid.UUID                    `json:"productId"`
	OwnerID              uuid.UUID                    `json:"ownerId"`
	RenterID             uuid.UUID                    `json:"renterId"`
	InspectorID          *uuid.UUID                   `json:"inspectorId,omitempty"`
	InspectionType       domain.InspectionType        `json:"inspectionType"`
	Status               domain.Status                `json:"status"`
	PreStatus            domain.PreStatus             `json:"preInspectionStatus"`
	PostStatus           domain.PostStatus            `json:"postInspectionStatus"`
	ScheduledAt          time.Time                    `json:"scheduledAt"`
	StartedAt            *time.Time                   `json:"startedAt,omitempty"`
	CompletedAt          *time.Time                   `json:"completedAt,omitempty"`
	CancelledAt          *time.Time                   `json:"cancelledAt,omitempty"`
	CancelReason         string                       `json:"cancelReason,omitempty"`
	GeneralNotes         string                       `json:"generalNotes"`
	InspectorNotes       string                       `json:"inspectorNotes"`
	OwnerNotes           string                       `json:"ownerNotes"`
	RenterNotes          string                       `json:"renterNotes"`
	Location             string                       `json:"location"`
	Items                []domain.InspectionItem      `json:"items"`
	OwnerPreInspection   *domain.OwnerPreInspection   `json:"ownerPreInspection,omitempty"`
	RenterPreReview      *domain.RenterPreReview      `json:"renterPreReview,omitempty"`
	RenterDiscrepancy    *domain.RenterDiscrepancy    `json:"renterDiscrepancy,omitempty"`
	RenterPostInspection *domain.RenterPostInspection `json:"renterPostInspection,omitempty"`
	OwnerPostReview      *domain.OwnerPostReview      `json:"ownerPostReview,omitempty"`
	Version              int                          `json:"version"`
	CreatedAt            time.Time                    `json:"createdAt"`
	UpdatedAt            time.Time                    `json:"updatedAt"`
}

type InspectionListResponse struct {
	Items      []InspectionResponse `json:"items"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalPages int                  `json:"totalPages"`
}

type DisputeResponse struct {
	ID              uuid.UUID            `json:"id"`
	InspectionID    uuid.UUID            `json:"inspectionId"`
	ReviewStep      domain.ReviewStep    `json:"reviewStep,omitempty"`
	RaisedBy        uuid.UUID            `json:"raisedBy"`
	DisputeType     domain.DisputeType   `json:"disputeType"`
	Reason          string               `json:"reason"`
	Evidence        []string             `json:"evidence"`
	EvidenceNotes   string               `json:"evidenceNotes,omitempty"`
	Status          domain.DisputeStatus `json:"status"`
	AssignedTo      *uuid.UUID           `json:"assignedTo,omitempty"`
	ResolutionNotes *string              `json:"resolutionNotes,omitempty"`
	ResolvedBy      *uuid.UUID           `json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time           `json:"resolvedAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

type DisputeListResponse struct {
	Items      []DisputeResponse `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

type OwnerPostReviewResponse struct {
	Inspection InspectionResponse `json:"inspection"`
	Dispute    *DisputeResponse   `json:"dispute,omitempty"`
}

func ToInspectionResponse(insp *domain.Inspection) InspectionResponse {
	items := insp.Items
	if items == nil {
		items = []domain.InspectionItem{}
	}
	return InspectionResponse{
		ID:                   insp.ID,
		BookingID:            insp.BookingID,
		ProductID:            insp.ProductID,
		OwnerID:              insp.OwnerID,
		RenterID:             insp.RenterID,
		InspectorID:          insp.InspectorID,
		InspectionType:       insp.Type,
		Status:               insp.Status,
		PreStatus:            insp.PreStatus,
		PostStatus:           insp.PostStatus,
		ScheduledAt:          insp.ScheduledAt,
		StartedAt:            insp.StartedAt,
		CompletedAt:          insp.CompletedAt,
		CancelledAt:          insp.CancelledAt,
		CancelReason:         insp.CancelReason,
		GeneralNotes:         insp.GeneralNotes,
		InspectorNotes:       insp.InspectorNotes,
		OwnerNotes:           insp.OwnerNotes,
		RenterNotes:          insp.RenterNotes,
		Location:             insp.Location,
		Items:                items,
		OwnerPreInspection:   insp.OwnerPre,
		RenterPreReview:      insp.RenterPreReview,
		RenterDiscrepancy:    insp.RenterDiscrepancy,
		RenterPostInspection: insp.RenterPost,
		OwnerPostReview:      insp.OwnerPostReview,
		Version:              insp.Version,
		CreatedAt:            insp.CreatedAt,
		UpdatedAt:            insp.UpdatedAt,
	}
}

func ToDisputeResponse(d *domain.Dispute) DisputeResponse {
	evidence := d.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	return DisputeResponse{
		ID:              d.ID,
		InspectionID:    d.InspectionID,
		ReviewStep:      d.ReviewStep,
		RaisedBy:        d.RaisedBy,
		DisputeType:     d.Type,
		Reason:          d.Reason,
		Evidence:        evidence,
		EvidenceNotes:   d.EvidenceNotes,
		Status:          d.Status,
		AssignedTo:      d.AssignedTo,
		ResolutionNotes: d.ResolutionNotes,
		ResolvedBy:      d.ResolvedBy,
		ResolvedAt:      d.ResolvedAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
