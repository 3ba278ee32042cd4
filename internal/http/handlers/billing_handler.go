// README: Billing handlers for orders, payment verification, deliverables and fare quotes.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline/internal/modules/billing"
	"lifeline/internal/modules/responder"
	"lifeline/internal/types"
)

type BillingHandler struct {
	billing *billing.Service
}

func NewBillingHandler(billing *billing.Service) *BillingHandler {
	return &BillingHandler{billing: billing}
}

type createOrderReq struct {
	PayeeCategory string    `json:"payee_category"`
	RequestID     *types.ID `json:"request_id,omitempty"`
	Kind          string    `json:"kind"`
	Amount        *int64    `json:"amount,omitempty"`
	DistanceKm    *float64  `json:"distance_km,omitempty"`
}

func (h *BillingHandler) CreateOrder(c *gin.Context) {
	actorID, _ := actor(c)
	if actorID == "" {
		writeError(c, http.StatusBadRequest, "missing actor identity")
		return
	}

	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	kind, ok := billing.ParseServiceKind(req.Kind)
	if !ok {
		writeError(c, http.StatusBadRequest, "kind must be one of prescription, transport_fare, item_supply")
		return
	}
	cat, ok := responder.ParseCategory(req.PayeeCategory)
	if !ok {
		writeError(c, http.StatusBadRequest, "payee_category must be one of medical, volunteer, transport")
		return
	}

	o, created, err := h.billing.CreateOrder(c.Request.Context(), billing.CreateOrderCommand{
		PayerID:       actorID,
		PayeeCategory: cat,
		RequestID:     req.RequestID,
		Kind:          kind,
		Amount:        req.Amount,
		DistanceKm:    req.DistanceKm,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	code := http.StatusCreated
	if !created {
		// An equivalent active order already exists; hand it back instead
		// of charging twice.
		code = http.StatusOK
	}
	c.JSON(code, orderResponse(o))
}

func (h *BillingHandler) Get(c *gin.Context) {
	o, err := h.billing.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(o))
}

func (h *BillingHandler) ListByRequest(c *gin.Context) {
	list, err := h.billing.ListByRequest(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, o := range list {
		out = append(out, orderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

type verifyReq struct {
	TxRef string `json:"tx_ref"`
}

func (h *BillingHandler) VerifyPayment(c *gin.Context) {
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.billing.VerifyPayment(c.Request.Context(), types.ID(c.Param("id")), req.TxRef)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(o))
}

type deliverableReq struct {
	Ref string `json:"ref"`
}

func (h *BillingHandler) AttachDeliverable(c *gin.Context) {
	var req deliverableReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.billing.AttachDeliverable(c.Request.Context(), types.ID(c.Param("id")), req.Ref)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(o))
}

// Quote answers "what would this trip cost" without touching any state.
func (h *BillingHandler) Quote(c *gin.Context) {
	km, err := strconv.ParseFloat(c.Query("km"), 64)
	if err != nil || km < 0 {
		writeError(c, http.StatusBadRequest, "km must be a non-negative number")
		return
	}
	fare := h.billing.Quote(km)
	c.JSON(http.StatusOK, gin.H{
		"distance_km": km,
		"amount":      fare.Amount,
		"currency":    fare.Currency,
	})
}

func orderResponse(o *billing.Order) gin.H {
	body := gin.H{
		"id":             o.ID,
		"payer_id":       o.PayerID,
		"payee_category": o.PayeeCategory,
		"kind":           o.Kind,
		"amount":         o.Amount.Amount,
		"currency":       o.Amount.Currency,
		"status":         o.Status,
		"distributed":    o.Distributed,
		"created_at":     o.CreatedAt,
	}
	if o.RequestID != nil {
		body["request_id"] = *o.RequestID
	}
	if o.TxRef != nil {
		body["tx_ref"] = *o.TxRef
	}
	if o.DeliverableRef != nil {
		body["deliverable_ref"] = *o.DeliverableRef
	}
	if o.PaidAt != nil {
		body["paid_at"] = *o.PaidAt
	}
	if o.CompletedAt != nil {
		body["completed_at"] = *o.CompletedAt
	}
	if o.CancelledAt != nil {
		body["cancelled_at"] = *o.CancelledAt
	}
	return body
}
