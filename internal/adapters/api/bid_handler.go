package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/bids"
	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/pkg/auth"
)

// BidHandler exposes the bidding workflows.
type BidHandler struct {
	service *bids.Service
	logger  *slog.Logger
}

func NewBidHandler(service *bids.Service, logger *slog.Logger) *BidHandler {
	return &BidHandler{service: service, logger: logger}
}

type submitBidRequest struct {
	ProductID          uuid.UUID               `json:"product_id" binding:"required"`
	Amount             int64                   `json:"amount" binding:"required"`
	Quantity           *products.Quantity      `json:"quantity"`
	Message            string                  `json:"message"`
	DeliveryPreference bids.DeliveryPreference `json:"delivery_preference"`
	PaymentMethod      bids.PaymentMethod      `json:"payment_method"`
	ValidUntil         *time.Time              `json:"valid_until"`
	AutoRenew          bool                    `json:"auto_renew"`
}

func (h *BidHandler) Submit(c *gin.Context) {
	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	bid, err := h.service.Submit(c.Request.Context(), bids.SubmitCommand{
		ProductID:          req.ProductID,
		BuyerID:            auth.MustGetUserID(c),
		Amount:             req.Amount,
		Quantity:           req.Quantity,
		Message:            req.Message,
		DeliveryPreference: req.DeliveryPreference,
		PaymentMethod:      req.PaymentMethod,
		ValidUntil:         req.ValidUntil,
		AutoRenew:          req.AutoRenew,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": bid})
}

func (h *BidHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	bid, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bid})
}

type respondBidRequest struct {
	Message string `json:"message"`
}

func (h *BidHandler) Accept(c *gin.Context) {
	h.respondToBid(c, h.service.Accept)
}

func (h *BidHandler) Reject(c *gin.Context) {
	h.respondToBid(c, h.service.Reject)
}

// respondToBid factors the shared shape of accept and reject: a bid id in
// the path and an optional message in the body.
func (h *BidHandler) respondToBid(c *gin.Context, action func(ctx context.Context, bidID, actorID uuid.UUID, message string) (*bids.Bid, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var req respondBidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}
	}

	bid, err := action(c.Request.Context(), id, auth.MustGetUserID(c), req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bid})
}

type counterOfferRequest struct {
	Amount  int64  `json:"amount" binding:"required"`
	Message string `json:"message"`
}

func (h *BidHandler) CounterOffer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var req counterOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	bid, err := h.service.CounterOffer(c.Request.Context(), id, auth.MustGetUserID(c), req.Amount, req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bid})
}

func (h *BidHandler) Withdraw(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	bid, err := h.service.Withdraw(c.Request.Context(), id, auth.MustGetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bid})
}

func (h *BidHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	bid, err := h.service.MarkRead(c.Request.Context(), id, auth.MustGetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bid})
}

func (h *BidHandler) ListByProduct(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	items, total, err := h.service.ListByProduct(c.Request.Context(), productID,
		queryInt(c, "limit", 0), queryInt(c, "offset", 0))
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

func (h *BidHandler) ListMine(c *gin.Context) {
	items, total, err := h.service.ListMine(c.Request.Context(), auth.MustGetUserID(c), bids.ListFilter{
		Status: bids.Status(c.Query("status")),
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

func (h *BidHandler) ListReceived(c *gin.Context) {
	items, total, err := h.service.ListReceived(c.Request.Context(), auth.MustGetUserID(c), bids.ListFilter{
		Status: bids.Status(c.Query("status")),
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
