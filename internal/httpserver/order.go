package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type orderResponse struct {
	*domain.Order
	OrderID int64         `json:"orderId"`
	Owner   *ownerContact `json:"owner,omitempty"`
}

type ownerContact struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	if o.Lines == nil {
		o.Lines = []domain.OrderLine{}
	}
	return orderResponse{Order: o, OrderID: o.ID}
}

func submitOrderHandler(svc orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// optional body; chunked requests report no length
		var fields *domain.ShippingFields
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			var f domain.ShippingFields
			err := c.ShouldBindJSON(&f)
			switch {
			case errors.Is(err, io.EOF):
			case err != nil:
				badRequest(c, err)
				return
			default:
				fields = &f
			}
		}
		o, err := svc.SubmitOrder(c.Request.Context(), identityFrom(c), fields)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// listOrdersHandler answers 404 for a profile without orders.
func listOrdersHandler(svc orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := svc.ListOrders(c.Request.Context(), identityFrom(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		if len(orders) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNotFound.Error()})
			return
		}
		out := make([]orderResponse, 0, len(orders))
		for i := range orders {
			out = append(out, toOrderResponse(&orders[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

func getOrderHandler(svc orderService, profiles profileService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		o, err := svc.GetOrder(ctx, identityFrom(c), id)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		resp := toOrderResponse(o)
		if o.ProfileID != nil {
			p, err := profiles.Get(ctx, *o.ProfileID)
			if err != nil {
				writeError(c, logger, err)
				return
			}
			resp.Owner = &ownerContact{FullName: p.FullName, Email: p.Email, Phone: p.Phone}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func updateOrderHandler(svc orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var fields domain.ShippingFields
		if err := c.ShouldBindJSON(&fields); err != nil {
			badRequest(c, err)
			return
		}
		o, err := svc.UpdateDetails(c.Request.Context(), id, fields)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

func payHandler(svc orderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := svc.Pay(c.Request.Context(), identityFrom(c), id); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": domain.OrderStatusPaid})
	}
}
