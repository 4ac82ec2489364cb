// Package handler exposes the inspections service over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"rental_inspections_backend/internal/inspections/authz"
	"rental_inspections_backend/internal/inspections/domain"
	"rental_inspections_backend/internal/inspections/service"
	"rental_inspections_backend/internal/inspections/transport"
	"rental_inspections_backend/platform/httpkit"
	"rental_inspections_backend/platform/logger"
	"rental_inspections_backend/platform/sanitize"
	"rental_inspections_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultMaxUploadMemory = 32 << 20
	defaultMaxBodySize     = 100 << 20
)

// Handler handles HTTP requests for inspections and disputes.
type Handler struct {
	svc             *service.Service
	val             *validator.Validator
	log             *logger.Logger
	maxUploadMemory int64
	maxBodySize     int64
}

// New creates a new inspections handler. maxBodySize caps every request
// body; maxUploadMemory is how much of a multipart body is kept in memory.
func New(svc *service.Service, val *validator.Validator, maxUploadMemory, maxBodySize int64, log *logger.Logger) *Handler {
	if maxUploadMemory <= 0 {
		maxUploadMemory = defaultMaxUploadMemory
	}
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &Handler{svc: svc, val: val, log: log, maxUploadMemory: maxUploadMemory, maxBodySize: maxBodySize}
}

// RegisterRoutes mounts the participant routes on the authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	inspections := rg.Group("/inspections")
	inspections.POST("", h.Create)
	inspections.GET("", h.List)
	inspections.GET("/:id", h.Get)
	inspections.POST("/:id/start", h.Start)
	inspections.POST("/:id/items", h.AddItem)
	inspections.PUT("/:id/items/:itemId", h.UpdateItem)
	inspections.POST("/:id/complete", h.Complete)
	inspections.POST("/:id/cancel", h.Cancel)

	inspections.POST("/:id/owner-pre-inspection", h.SubmitOwnerPreInspection)
	inspections.POST("/:id/owner-pre-inspection/confirm", h.ConfirmOwnerPreInspection)
	inspections.POST("/:id/renter-pre-review", h.SubmitRenterPreReview)
	inspections.POST("/:id/renter-discrepancy", h.ReportRenterDiscrepancy)
	inspections.POST("/:id/renter-discrepancy/settle", h.SettlePreDiscrepancy)
	inspections.POST("/:id/renter-post-inspection", h.SubmitRenterPostInspection)
	inspections.POST("/:id/renter-post-inspection/confirm", h.ConfirmRenterPostInspection)
	inspections.POST("/:id/owner-post-review", h.SubmitOwnerPostReview)

	inspections.GET("/:id/disputes", h.ListInspectionDisputes)
	inspections.POST("/:id/disputes", h.RaiseDispute)
	inspections.PUT("/:id/disputes/:disputeId/resolve", h.ResolveDispute)

	rg.GET("/disputes/mine", h.MyDisputes)
}

// RegisterAdminRoutes mounts the administrative routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.PUT("/inspections/:id/inspector", h.AssignInspector)
	rg.GET("/disputes", h.ListDisputes)
	rg.PUT("/disputes/:disputeId/assign", h.AssignDispute)
	rg.PUT("/disputes/:disputeId/resolve", h.AdminResolveDispute)
}

func mustGetActor(c *gin.Context) (authz.Actor, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return authz.Actor{}, false
	}
	return authz.Actor{ID: identity.UserID(), Role: httpkit.PrimaryRole(identity)}, true
}

// Create handles POST /api/v1/inspections
func (h *Handler) Create(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	var req transport.CreateInspectionRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	in := service.CreateInput{
		BookingID:      req.BookingID,
		Type:           req.InspectionType,
		ScheduledAt:    req.ScheduledAt,
		Location:       req.Location,
		GeneralNotes:   sanitize.Text(req.GeneralNotes),
		InspectorID:    req.InspectorID,
		OwnerPrePhotos: u.files,
	}
	if req.OwnerPreInspection != nil {
		ownerPre, err := req.OwnerPreInspection.ToDomain()
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"ownerPreInspection.condition": "object|string"})
			return
		}
		in.OwnerPre = &ownerPre
	}

	insp, err := h.svc.Create(c.Request.Context(), actor, in)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.Created(c, "inspection created", transport.ToInspectionResponse(insp))
}

// List handles GET /api/v1/inspections
func (h *Handler) List(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	var req transport.ListInspectionsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	in := service.ListInput{Page: service.Page{Page: req.Page, PageSize: req.PageSize}}
	if req.BookingID != "" {
		id := uuid.MustParse(req.BookingID)
		in.BookingID = &id
	}
	if req.Status != "" {
		status := domain.Status(req.Status)
		in.Status = &status
	}
	if req.Type != "" {
		t := domain.InspectionType(req.Type)
		in.Type = &t
	}

	list, err := h.svc.List(c.Request.Context(), actor, in)
	if httpkit.HandleError(c, h.log, err) {
		return
	}

	items := make([]transport.InspectionResponse, len(list.Items))
	for i := range list.Items {
		items[i] = transport.ToInspectionResponse(&list.Items[i])
	}
	httpkit.OK(c, "inspections retrieved", transport.InspectionListResponse{
		Items:      items,
		Total:      list.Total,
		Page:       list.Page,
		PageSize:   list.PageSize,
		TotalPages: transport.TotalPages(list.Total, list.PageSize),
	})
}

// Get handles GET /api/v1/inspections/:id
func (h *Handler) Get(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	insp, err := h.svc.Get(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "inspection retrieved", transport.ToInspectionResponse(insp))
}

// Start handles POST /api/v1/inspections/:id/start
func (h *Handler) Start(c *gin.Context) {
	h.transition(c, "inspection started", h.svc.Start)
}

// AddItem handles POST /api/v1/inspections/:id/items
func (h *Handler) AddItem(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.ItemRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	item, err := h.svc.AddItem(c.Request.Context(), actor, id, req.ToDomain(), u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.Created(c, "inspection item added", item)
}

// UpdateItem handles PUT /api/v1/inspections/:id/items/:itemId
func (h *Handler) UpdateItem(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseUUIDParam(c, "itemId")
	if !ok {
		return
	}
	var req transport.ItemRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	item, err := h.svc.UpdateItem(c.Request.Context(), actor, id, itemID, req.ToDomain(), u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "inspection item updated", item)
}

// Complete handles POST /api/v1/inspections/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.CompleteInspectionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	items := make([]domain.ItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = item.ToDomain()
	}
	insp, err := h.svc.Complete(c.Request.Context(), actor, id, items, sanitize.Text(req.InspectorNotes))
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "inspection completed", transport.ToInspectionResponse(insp))
}

// Cancel handles POST /api/v1/inspections/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.CancelInspectionRequest
	u, ok := h.bind(c, &req, true)
	if !ok {
		return
	}
	defer u.Close()

	insp, err := h.svc.Cancel(c.Request.Context(), actor, id, sanitize.Text(req.Reason))
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "inspection cancelled", transport.ToInspectionResponse(insp))
}

// AssignInspector handles PUT /api/v1/admin/inspections/:id/inspector
func (h *Handler) AssignInspector(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.AssignInspectorRequest
	if !h.bindJSON(c, &req) {
		return
	}

	insp, err := h.svc.AssignInspector(c.Request.Context(), actor, id, req.InspectorID)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "inspector assigned", transport.ToInspectionResponse(insp))
}

// SubmitOwnerPreInspection handles POST /api/v1/inspections/:id/owner-pre-inspection
func (h *Handler) SubmitOwnerPreInspection(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.OwnerPreInspectionRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	in, err := req.ToDomain()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"condition": "object|string"})
		return
	}
	insp, err := h.svc.SubmitOwnerPreInspection(c.Request.Context(), actor, id, in, u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "owner pre-inspection submitted", transport.ToInspectionResponse(insp))
}

// ConfirmOwnerPreInspection handles POST /api/v1/inspections/:id/owner-pre-inspection/confirm
func (h *Handler) ConfirmOwnerPreInspection(c *gin.Context) {
	h.transition(c, "owner pre-inspection confirmed", h.svc.ConfirmOwnerPreInspection)
}

// SubmitRenterPreReview handles POST /api/v1/inspections/:id/renter-pre-review
func (h *Handler) SubmitRenterPreReview(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.RenterPreReviewRequest
	if !h.bindJSON(c, &req) {
		return
	}

	insp, err := h.svc.SubmitRenterPreReview(c.Request.Context(), actor, id, req.ToDomain())
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "renter pre-review submitted", transport.ToInspectionResponse(insp))
}

// SettlePreDiscrepancy handles POST /api/v1/inspections/:id/renter-discrepancy/settle
func (h *Handler) SettlePreDiscrepancy(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.SettleDiscrepancyRequest
	if !h.bindJSON(c, &req) {
		return
	}

	insp, err := h.svc.SettlePreDiscrepancy(c.Request.Context(), actor, id, req.ToDomain())
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "renter discrepancy settled", transport.ToInspectionResponse(insp))
}

// ReportRenterDiscrepancy handles POST /api/v1/inspections/:id/renter-discrepancy
func (h *Handler) ReportRenterDiscrepancy(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.RenterDiscrepancyRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	insp, err := h.svc.ReportRenterDiscrepancy(c.Request.Context(), actor, id, req.ToDomain(), u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "renter discrepancy reported", transport.ToInspectionResponse(insp))
}

// SubmitRenterPostInspection handles POST /api/v1/inspections/:id/renter-post-inspection
func (h *Handler) SubmitRenterPostInspection(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.RenterPostInspectionRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	in, err := req.ToDomain()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"condition": "object|string"})
		return
	}
	insp, err := h.svc.SubmitRenterPostInspection(c.Request.Context(), actor, id, in, u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "renter post-inspection submitted", transport.ToInspectionResponse(insp))
}

// ConfirmRenterPostInspection handles POST /api/v1/inspections/:id/renter-post-inspection/confirm
func (h *Handler) ConfirmRenterPostInspection(c *gin.Context) {
	h.transition(c, "renter post-inspection confirmed", h.svc.ConfirmRenterPostInspection)
}

// SubmitOwnerPostReview handles POST /api/v1/inspections/:id/owner-post-review
func (h *Handler) SubmitOwnerPostReview(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.OwnerPostReviewRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	insp, dispute, err := h.svc.SubmitOwnerPostReview(c.Request.Context(), actor, id, req.ToDomain(), u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	resp := transport.OwnerPostReviewResponse{Inspection: transport.ToInspectionResponse(insp)}
	if dispute != nil {
		d := transport.ToDisputeResponse(dispute)
		resp.Dispute = &d
	}
	httpkit.OK(c, "owner post-review submitted", resp)
}

// transition runs a body-less inspection transition.
func (h *Handler) transition(c *gin.Context, message string, fn func(context.Context, authz.Actor, uuid.UUID) (*domain.Inspection, error)) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	insp, err := fn(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, message, transport.ToInspectionResponse(insp))
}

// ListInspectionDisputes handles GET /api/v1/inspections/:id/disputes
func (h *Handler) ListInspectionDisputes(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.PageRequest
	if !h.bindQuery(c, &req) {
		return
	}

	list, err := h.svc.ListInspectionDisputes(c.Request.Context(), actor, id, service.Page{Page: req.Page, PageSize: req.PageSize})
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "disputes retrieved", toDisputeList(list))
}

// RaiseDispute handles POST /api/v1/inspections/:id/disputes
func (h *Handler) RaiseDispute(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req transport.RaiseDisputeRequest
	u, ok := h.bind(c, &req, false)
	if !ok {
		return
	}
	defer u.Close()

	d, err := h.svc.RaiseDispute(c.Request.Context(), actor, id, req.ToDomain(), u.files)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.Created(c, "dispute raised", transport.ToDisputeResponse(d))
}

// ResolveDispute handles PUT /api/v1/inspections/:id/disputes/:disputeId/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	h.resolve(c, &id)
}

// AdminResolveDispute handles PUT /api/v1/admin/disputes/:disputeId/resolve
func (h *Handler) AdminResolveDispute(c *gin.Context) {
	h.resolve(c, nil)
}

func (h *Handler) resolve(c *gin.Context, inspectionID *uuid.UUID) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	disputeID, ok := parseUUIDParam(c, "disputeId")
	if !ok {
		return
	}
	var req transport.ResolveDisputeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	d, err := h.svc.ResolveDispute(c.Request.Context(), actor, inspectionID, disputeID, sanitize.Text(req.ResolutionNotes))
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "dispute resolved", transport.ToDisputeResponse(d))
}

// MyDisputes handles GET /api/v1/disputes/mine
func (h *Handler) MyDisputes(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	var req transport.PageRequest
	if !h.bindQuery(c, &req) {
		return
	}

	list, err := h.svc.MyDisputes(c.Request.Context(), actor, service.Page{Page: req.Page, PageSize: req.PageSize})
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "disputes retrieved", toDisputeList(list))
}

// ListDisputes handles GET /api/v1/admin/disputes
func (h *Handler) ListDisputes(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	var req transport.ListDisputesRequest
	if !h.bindQuery(c, &req) {
		return
	}

	in := service.DisputeListInput{Page: service.Page{Page: req.Page, PageSize: req.PageSize}}
	if req.Status != "" {
		status := domain.DisputeStatus(req.Status)
		in.Status = &status
	}
	if req.Type != "" {
		t := domain.DisputeType(req.Type)
		in.Type = &t
	}
	details := map[string]string{}
	in.From = parseTimeParam(req.From, "from", details)
	in.To = parseTimeParam(req.To, "to", details)
	if len(details) > 0 {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, details)
		return
	}

	list, err := h.svc.ListDisputes(c.Request.Context(), actor, in)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "disputes retrieved", toDisputeList(list))
}

// AssignDispute handles PUT /api/v1/admin/disputes/:disputeId/assign
func (h *Handler) AssignDispute(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}
	disputeID, ok := parseUUIDParam(c, "disputeId")
	if !ok {
		return
	}
	var req transport.AssignDisputeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	d, err := h.svc.AssignDispute(c.Request.Context(), actor, disputeID, req.AssigneeID)
	if httpkit.HandleError(c, h.log, err) {
		return
	}
	httpkit.OK(c, "dispute assigned", transport.ToDisputeResponse(d))
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates.
func parseTimeParam(value, field string, details map[string]string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	details[field] = "datetime=RFC3339"
	return nil
}

func toDisputeList(list *service.DisputeList) transport.DisputeListResponse {
	items := make([]transport.DisputeResponse, len(list.Items))
	for i := range list.Items {
		items[i] = transport.ToDisputeResponse(&list.Items[i])
	}
	return transport.DisputeListResponse{
		Items:      items,
		Total:      list.Total,
		Page:       list.Page,
		PageSize:   list.PageSize,
		TotalPages: transport.TotalPages(list.Total, list.PageSize),
	}
}
