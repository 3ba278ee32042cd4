// README: Request handlers for create/get/status/dispatch/messages.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lifeline/internal/modules/request"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

// ChatRelay publishes chat messages posted over HTTP to the request channel.
type ChatRelay interface {
	PublishChat(requestID, fromID types.ID, text string)
}

// CreationRecorder counts recorded requests.
type CreationRecorder interface {
	RecordRequestCreated()
}

type RequestHandler struct {
	requests *request.Service
	chat     ChatRelay
	metrics  CreationRecorder
}

func NewRequestHandler(requests *request.Service, chat ChatRelay, metrics CreationRecorder) *RequestHandler {
	return &RequestHandler{requests: requests, chat: chat, metrics: metrics}
}

type pointReq struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type itemReq struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

type createRequestReq struct {
	Point       *pointReq `json:"point"`
	Description string    `json:"description"`
	Urgency     string    `json:"urgency"`
	Category    string    `json:"category"`

	Items             []itemReq `json:"items,omitempty"`
	EstimatedItemCost *int64    `json:"estimated_item_cost,omitempty"`
	Destination       *pointReq `json:"destination,omitempty"`
	DistanceKm        *float64  `json:"distance_km,omitempty"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	actorID, _ := actor(c)
	if actorID == "" {
		writeError(c, http.StatusBadRequest, "missing actor identity")
		return
	}

	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Point == nil {
		writeError(c, http.StatusBadRequest, "missing coordinates")
		return
	}
	cat, ok := responder.ParseCategory(req.Category)
	if !ok {
		writeError(c, http.StatusBadRequest, "category must be one of medical, volunteer, transport")
		return
	}
	urgency, ok := request.ParseUrgency(req.Urgency)
	if !ok {
		writeError(c, http.StatusBadRequest, "urgency must be one of critical, high, medium, low")
		return
	}

	cmd := request.CreateCommand{
		RequesterID:         actorID,
		Location:            types.Point{Lng: req.Point.Lng, Lat: req.Point.Lat},
		Description:         req.Description,
		Urgency:             urgency,
		Category:            cat,
		EstimatedDistanceKm: req.DistanceKm,
	}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, request.Item{Name: it.Name, Qty: it.Qty})
	}
	if req.EstimatedItemCost != nil {
		cmd.EstimatedItemCost = &types.Money{Amount: *req.EstimatedItemCost}
	}
	if req.Destination != nil {
		cmd.Destination = &types.Point{Lng: req.Destination.Lng, Lat: req.Destination.Lat}
	}

	res, err := h.requests.Create(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRequestCreated()
	}

	body := gin.H{
		"request":  requestResponse(res.Request),
		"assigned": res.Dispatch.Assigned,
	}
	if res.Dispatch.Assigned {
		body["responder_id"] = res.Dispatch.ResponderID
		body["distance_km"] = res.Dispatch.DistanceKm
	} else {
		// Recording the emergency succeeded; assignment simply found
		// nobody. Reported as information, not as an error.
		body["reasons"] = res.Dispatch.Reasons
	}
	c.JSON(http.StatusCreated, body)
}

func (h *RequestHandler) Get(c *gin.Context) {
	r, err := h.requests.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestResponse(r))
}

func (h *RequestHandler) List(c *gin.Context) {
	requester := c.Query("requester")
	if requester == "" {
		actorID, _ := actor(c)
		requester = string(actorID)
	}
	list, err := h.requests.ListByRequester(c.Request.Context(), types.ID(requester))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, r := range list {
		out = append(out, requestResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

type updateStatusReq struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	actorID, role := actor(c)

	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	status, ok := request.ParseStatus(req.Status)
	if !ok {
		writeError(c, http.StatusBadRequest, "unknown status")
		return
	}

	r, err := h.requests.UpdateStatus(c.Request.Context(), request.UpdateCommand{
		RequestID: types.ID(c.Param("id")),
		ActorID:   actorID,
		ActorRole: role,
		NewStatus: status,
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, requestResponse(r))
}

func (h *RequestHandler) Redispatch(c *gin.Context) {
	actorID, role := actor(c)
	res, err := h.requests.Redispatch(c.Request.Context(), types.ID(c.Param("id")), actorID, role)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	body := gin.H{
		"request":  requestResponse(res.Request),
		"assigned": res.Dispatch.Assigned,
	}
	if !res.Dispatch.Assigned {
		body["reasons"] = res.Dispatch.Reasons
	}
	c.JSON(http.StatusOK, body)
}

type chatReq struct {
	Text string `json:"text"`
}

// PostMessage relays an ephemeral chat message to everyone viewing the
// request. Messages are not stored.
func (h *RequestHandler) PostMessage(c *gin.Context) {
	actorID, role := actor(c)
	id := types.ID(c.Param("id"))

	r, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if role != request.RoleAdmin && actorID != r.RequesterID && !r.IsAssignedTo(actorID) {
		writeError(c, http.StatusForbidden, "actor is not a participant of this request")
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		writeError(c, http.StatusBadRequest, "missing message text")
		return
	}
	h.chat.PublishChat(id, actorID, req.Text)
	c.JSON(http.StatusAccepted, gin.H{"delivered": "best_effort"})
}

func requestResponse(r *request.Request) gin.H {
	body := gin.H{
		"id":             r.ID,
		"requester_id":   r.RequesterID,
		"point":          gin.H{"lng": r.Location.Lng, "lat": r.Location.Lat},
		"description":    r.Description,
		"urgency":        r.Urgency,
		"category":       r.Category,
		"status":         r.Status,
		"payment_status": r.PaymentStatus,
		"created_at":     r.CreatedAt,
	}
	if len(r.Items) > 0 {
		items := make([]gin.H, 0, len(r.Items))
		for _, it := range r.Items {
			items = append(items, gin.H{"name": it.Name, "qty": it.Qty})
		}
		body["items"] = items
	}
	if r.EstimatedDistanceKm != nil {
		body["distance_km"] = *r.EstimatedDistanceKm
	}
	assignments := gin.H{}
	for _, cat := range responder.Categories() {
		if id := r.Assignment(cat); id != nil {
			assignments[string(cat)] = *id
		}
	}
	if len(assignments) > 0 {
		body["assignments"] = assignments
	}
	for key, ts := range map[string]*time.Time{
		"assigned_at":  r.AssignedAt,
		"en_route_at":  r.EnRouteAt,
		"arrived_at":   r.ArrivedAt,
		"completed_at": r.CompletedAt,
		"cancelled_at": r.CancelledAt,
	} {
		if ts != nil {
			body[key] = *ts
		}
	}
	if r.CancelReason != nil {
		body["cancel_reason"] = *r.CancelReason
	}
	return body
}
