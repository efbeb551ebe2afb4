package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/rewardly/internal/commission/domain"
)

type calculateCommissionRequest struct {
	OrderID    string `json:"order_id"`
	CoachID    string `json:"coach_id"`
	CustomerID string `json:"customer_id"`
	Total      string `json:"total"`
	TaxTotal   string `json:"tax_total"`
	PlacedAt   string `json:"placed_at"`
}

// @Summary      Calculate Commission
// @Description  Full commission breakdown for a referred order
// @Tags         commissions
// @Accept       json
// @Produce      json
// @Param        request  body  calculateCommissionRequest  true  "Calculate Commission Request"
// @Success      200  {object}  commissiondomain.CommissionBreakdown
// @Router       /commissions/calculate [post]
func (s *Server) CalculateCommission(c *gin.Context) {
	var req calculateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}
	coachID, err := parseID(req.CoachID)
	if err != nil {
		AbortWithError(c, newValidationError("coach_id", "invalid_coach_id", "invalid coach id"))
		return
	}
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer id"))
		return
	}
	total, err := parseAmount(req.Total)
	if err != nil {
		AbortWithError(c, newValidationError("total", "invalid_total", "invalid total"))
		return
	}
	taxTotal := decimal.Zero
	if strings.TrimSpace(req.TaxTotal) != "" {
		taxTotal, err = parseAmount(req.TaxTotal)
		if err != nil {
			AbortWithError(c, newValidationError("tax_total", "invalid_tax_total", "invalid tax_total"))
			return
		}
	}

	placedAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.PlacedAt); raw != "" {
		placedAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("placed_at", "invalid_placed_at", "invalid placed_at"))
			return
		}
	}

	breakdown, err := s.commissionSvc.CalculateTotalCommission(c.Request.Context(), commissiondomain.Order{
		OrderID:  orderID,
		Total:    total,
		TaxTotal: taxTotal,
		PlacedAt: placedAt,
	}, coachID, customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}
