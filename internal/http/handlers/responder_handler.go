// README: Responder handlers for duty, location, unavailability and the pending feed.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lifeline/internal/modules/dispatch"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

type ResponderHandler struct {
	responders *responder.Service
	dispatch   *dispatch.Service
}

func NewResponderHandler(responders *responder.Service, dispatch *dispatch.Service) *ResponderHandler {
	return &ResponderHandler{responders: responders, dispatch: dispatch}
}

func (h *ResponderHandler) Get(c *gin.Context) {
	id := types.ID(c.Param("id"))
	p, err := h.responders.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	active, err := h.responders.ActiveAssignments(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	body := gin.H{
		"id":                 p.ID,
		"category":           p.Category,
		"on_duty":            p.OnDuty,
		"active":             p.Active,
		"active_assignments": active,
		"updated_at":         p.UpdatedAt,
	}
	if p.HasLocation() {
		body["point"] = gin.H{"lng": p.Location.Lng, "lat": p.Location.Lat}
	}
	if len(p.UnavailableDates) > 0 {
		days := make([]string, 0, len(p.UnavailableDates))
		for _, d := range p.UnavailableDates {
			days = append(days, d.Format("2006-01-02"))
		}
		body["unavailable_dates"] = days
	}
	c.JSON(http.StatusOK, body)
}

type dutyReq struct {
	// OnDuty is accepted as bool, string or number; clients have
	// historically sent all three.
	OnDuty any `json:"on_duty"`
}

func (h *ResponderHandler) SetDuty(c *gin.Context) {
	var req dutyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.responders.SetDuty(c.Request.Context(), types.ID(c.Param("id")), req.OnDuty); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"on_duty": responder.ParseDutyFlag(req.OnDuty)})
}

type locationReq struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (h *ResponderHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pos := types.Point{Lng: req.Lng, Lat: req.Lat}
	if err := h.responders.UpdateLocation(c.Request.Context(), types.ID(c.Param("id")), pos); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"point": gin.H{"lng": pos.Lng, "lat": pos.Lat}})
}

type unavailabilityReq struct {
	Day    string `json:"day"`
	Remove bool   `json:"remove,omitempty"`
}

func (h *ResponderHandler) SetUnavailability(c *gin.Context) {
	var req unavailabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	day, err := time.Parse("2006-01-02", req.Day)
	if err != nil {
		writeError(c, http.StatusBadRequest, "day must be formatted as YYYY-MM-DD")
		return
	}
	id := types.ID(c.Param("id"))
	if req.Remove {
		err = h.responders.RemoveUnavailableDate(c.Request.Context(), id, day)
	} else {
		err = h.responders.AddUnavailableDate(c.Request.Context(), id, day)
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": req.Day, "removed": req.Remove})
}

// Feed returns pending requests of the responder's category sorted by
// distance from their last reported position.
func (h *ResponderHandler) Feed(c *gin.Context) {
	items, err := h.dispatch.Feed(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]gin.H, 0, len(items))
	for _, it := range items {
		out = append(out, gin.H{
			"request":     requestResponse(it.Request),
			"distance_km": it.DistanceKm,
		})
	}
	c.JSON(http.StatusOK, gin.H{"feed": out})
}
