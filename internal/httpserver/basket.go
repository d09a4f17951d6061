package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

// basketRequest is the body of POST and DELETE /api/basket. Count defaults to 1.
type basketRequest struct {
	ProductID int64 `json:"id" binding:"required"`
	Count     *int  `json:"count"`
}

func (r basketRequest) quantity() int {
	if r.Count == nil {
		return 1
	}
	return *r.Count
}

func basketResponse(items []domain.BasketItem) []domain.BasketItem {
	if items == nil {
		return []domain.BasketItem{}
	}
	return items
}

func getBasketHandler(svc basketService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.List(c.Request.Context(), identityFrom(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, basketResponse(items))
	}
}

func addToBasketHandler(svc basketService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req basketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		items, err := svc.Add(c.Request.Context(), identityFrom(c), req.ProductID, req.quantity())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, basketResponse(items))
	}
}

func removeFromBasketHandler(svc basketService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req basketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		items, err := svc.Remove(c.Request.Context(), identityFrom(c), req.ProductID, req.quantity())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, basketResponse(items))
	}
}
