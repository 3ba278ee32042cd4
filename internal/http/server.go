// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lifeline/internal/events"
	"lifeline/internal/http/handlers"
	"lifeline/internal/http/middleware"
	"lifeline/internal/metrics"
	"lifeline/internal/modules/billing"
	"lifeline/internal/modules/dispatch"
	"lifeline/internal/modules/request"
	"lifeline/internal/modules/responder"
)

type ServerDeps struct {
	Requests   *request.Service
	Responders *responder.Service
	Dispatch   *dispatch.Service
	Billing    *billing.Service
	Hub        *events.Hub
	Chat       handlers.ChatRelay
	Metrics    *metrics.Collector
	Log        *logrus.Logger
}

func NewRouter(deps ServerDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(deps.Log), middleware.Recovery(deps.Log), middleware.Actor())

	requestHandler := handlers.NewRequestHandler(deps.Requests, deps.Chat, deps.Metrics)
	responderHandler := handlers.NewResponderHandler(deps.Responders, deps.Dispatch)
	billingHandler := handlers.NewBillingHandler(deps.Billing)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Log)

	api := r.Group("/api")
	{
		api.POST("/requests", requestHandler.Create)
		api.GET("/requests", requestHandler.List)
		api.GET("/requests/:id", requestHandler.Get)
		api.POST("/requests/:id/status", requestHandler.UpdateStatus)
		api.POST("/requests/:id/dispatch", requestHandler.Redispatch)
		api.POST("/requests/:id/messages", requestHandler.PostMessage)
		api.GET("/requests/:id/orders", billingHandler.ListByRequest)

		api.GET("/responders/:id", responderHandler.Get)
		api.POST("/responders/:id/duty", responderHandler.SetDuty)
		api.PUT("/responders/:id/location", responderHandler.UpdateLocation)
		api.POST("/responders/:id/unavailability", responderHandler.SetUnavailability)
		api.GET("/responders/:id/feed", responderHandler.Feed)

		api.POST("/orders", billingHandler.CreateOrder)
		api.GET("/orders/:id", billingHandler.Get)
		api.POST("/orders/:id/verify", billingHandler.VerifyPayment)
		api.POST("/orders/:id/deliverable", billingHandler.AttachDeliverable)
		api.GET("/fares/quote", billingHandler.Quote)
	}

	r.GET("/ws", wsHandler.Serve)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return r
}
