package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/transports"
	"github.com/agrobid/agrobid/pkg/auth"
)

// TransportHandler exposes the fulfillment workflows.
type TransportHandler struct {
	service *transports.Service
	logger  *slog.Logger
}

func NewTransportHandler(service *transports.Service, logger *slog.Logger) *TransportHandler {
	return &TransportHandler{service: service, logger: logger}
}

type createTransportRequest struct {
	ProductID             uuid.UUID           `json:"product_id" binding:"required"`
	BidID                 uuid.UUID           `json:"bid_id" binding:"required"`
	PickupLocation        transports.Location `json:"pickup_location" binding:"required"`
	DeliveryLocation      transports.Location `json:"delivery_location" binding:"required"`
	Vehicle               transports.Vehicle  `json:"vehicle" binding:"required"`
	Cost                  transports.Cost     `json:"cost" binding:"required"`
	Distance              transports.Distance `json:"distance" binding:"required"`
	Duration              transports.Duration `json:"estimated_duration" binding:"required"`
	ScheduledPickupTime   time.Time           `json:"scheduled_pickup_time" binding:"required"`
	ScheduledDeliveryTime time.Time           `json:"scheduled_delivery_time" binding:"required"`
	PaymentMethod         string              `json:"payment_method"`
	Notes                 string              `json:"notes"`
}

func (h *TransportHandler) Create(c *gin.Context) {
	var req createTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	transport, err := h.service.Create(c.Request.Context(), transports.CreateCommand{
		ProductID:             req.ProductID,
		BidID:                 req.BidID,
		TransporterID:         auth.MustGetUserID(c),
		PickupLocation:        req.PickupLocation,
		DeliveryLocation:      req.DeliveryLocation,
		Vehicle:               req.Vehicle,
		Cost:                  req.Cost,
		Distance:              req.Distance,
		Duration:              req.Duration,
		ScheduledPickupTime:   req.ScheduledPickupTime,
		ScheduledDeliveryTime: req.ScheduledDeliveryTime,
		PaymentMethod:         req.PaymentMethod,
		Notes:                 req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": transport})
}

func (h *TransportHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	transport, err := h.service.Get(c.Request.Context(), id, auth.MustGetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       transport,
		"is_delayed": transport.IsDelayed(time.Now()),
	})
}

type updateStatusRequest struct {
	Status   transports.Status            `json:"status" binding:"required"`
	Location *transports.TrackingLocation `json:"location"`
	Note     string                       `json:"note"`
}

func (h *TransportHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	transport, err := h.service.UpdateStatus(c.Request.Context(), id, auth.MustGetUserID(c), req.Status, req.Location, req.Note)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": transport})
}

type cancelTransportRequest struct {
	Reason string `json:"reason"`
}

func (h *TransportHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var req cancelTransportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	transport, err := h.service.Cancel(c.Request.Context(), id, auth.MustGetUserID(c), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": transport})
}

type rateTransportRequest struct {
	Score  int    `json:"score" binding:"required"`
	Review string `json:"review"`
}

func (h *TransportHandler) AddRating(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var req rateTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	transport, err := h.service.AddRating(c.Request.Context(), id, auth.MustGetUserID(c), req.Score, req.Review)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": transport})
}

func (h *TransportHandler) ListMine(c *gin.Context) {
	items, total, err := h.service.ListMine(c.Request.Context(), auth.MustGetUserID(c), transports.ListFilter{
		Status: transports.Status(c.Query("status")),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(items),
		"total":   total,
		"data":    items,
	})
}

func (h *TransportHandler) ListActive(c *gin.Context) {
	items, err := h.service.ListActive(c.Request.Context(), auth.MustGetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(items), "data": items})
}
