package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agrobid/agrobid/internal/domain/bids"
	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/internal/domain/transports"
	"github.com/agrobid/agrobid/internal/domain/users"
	"github.com/agrobid/agrobid/internal/domain/validate"
)

var notFoundErrors = []error{
	users.ErrUserNotFound,
	products.ErrProductNotFound,
	bids.ErrBidNotFound,
	bids.ErrProductNotFound,
	transports.ErrTransportNotFound,
	transports.ErrProductNotFound,
	transports.ErrBidNotFound,
}

var forbiddenErrors = []error{
	products.ErrNotOwner,
	bids.ErrNotBidOwner,
	bids.ErrNotProductOwner,
	transports.ErrNotTransporter,
	transports.ErrNotParty,
	transports.ErrNotRater,
}

var invalidStateErrors = []error{
	users.ErrAccountDeactivated,
	users.ErrWrongPassword,
	products.ErrProductSold,
	bids.ErrProductNotOpen,
	bids.ErrBiddingClosed,
	bids.ErrOwnProduct,
	bids.ErrBidTooLow,
	bids.ErrBidNotActive,
	bids.ErrCounterpartyMatch,
	transports.ErrBidNotAccepted,
	transports.ErrTransportExists,
	transports.ErrInvalidTransition,
	transports.ErrNotCancellable,
	transports.ErrNotDelivered,
	transports.ErrAlreadyRated,
}

// respondError maps domain errors onto the response taxonomy: missing
// entities are 404, ownership and role failures 403, precondition failures
// 400, field-level validation 400 with a message list. Anything unmapped is
// a 500 with the detail kept out of the response body.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "validation failed",
			"errors":  verr.Messages,
		})
		return
	}

	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		respondMessage(c, http.StatusUnauthorized, err)
	case errors.Is(err, users.ErrUserAlreadyExists):
		respondMessage(c, http.StatusConflict, err)
	case matchesAny(err, notFoundErrors):
		respondMessage(c, http.StatusNotFound, err)
	case matchesAny(err, forbiddenErrors):
		respondMessage(c, http.StatusForbidden, err)
	case matchesAny(err, invalidStateErrors):
		respondMessage(c, http.StatusBadRequest, err)
	default:
		logger.Error("unhandled error", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "internal server error",
		})
	}
}

func respondMessage(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"success": false,
		"message": err.Error(),
	})
}

// respondBadRequest covers malformed request bodies and path parameters,
// before any domain logic runs.
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": err.Error(),
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
