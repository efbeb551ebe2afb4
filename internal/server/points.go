package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
)

type allocatePointsRequest struct {
	OrderID    string   `json:"order_id"`
	CustomerID string   `json:"customer_id"`
	Status     string   `json:"status"`
	Total      string   `json:"total"`
	TaxTotal   string   `json:"tax_total"`
	Currency   string   `json:"currency"`
	Roles      []string `json:"roles"`
}

type redeemPointsRequest struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	CartTotal  string `json:"cart_total"`
	Points     int64  `json:"points"`
}

type refundPointsRequest struct {
	OrderID        string `json:"order_id"`
	RefundedAmount string `json:"refunded_amount"`
}

type validateRedemptionRequest struct {
	CartTotal string `json:"cart_total"`
	Points    int64  `json:"points"`
}

type adjustmentRequest struct {
	CustomerID  string `json:"customer_id"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

// @Summary      Get Points Balance
// @Description  Current points balance for a customer
// @Tags         points
// @Produce      json
// @Param        id   path      string  true  "Customer ID"
// @Success      200  {object}  map[string]any
// @Router       /customers/{id}/points/balance [get]
func (s *Server) GetPointsBalance(c *gin.Context) {
	customerID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_customer_id", "invalid customer id"))
		return
	}

	balance, err := s.pointsSvc.GetPointsBalance(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"customer_id": customerID.String(),
		"balance":     balance,
	}})
}

// @Summary      List Points Transactions
// @Description  Recent ledger entries for a customer, newest first
// @Tags         points
// @Produce      json
// @Param        id     path   string  true   "Customer ID"
// @Param        limit  query  int     false  "Limit"
// @Success      200  {object}  []pointsdomain.PointsTransaction
// @Router       /customers/{id}/points/transactions [get]
func (s *Server) ListPointsTransactions(c *gin.Context) {
	customerID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_customer_id", "invalid customer id"))
		return
	}

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	transactions, err := s.pointsSvc.GetTransactions(c.Request.Context(), customerID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transactions})
}

// @Summary      Max Redeemable Points
// @Description  Largest redemption the customer can apply to a cart
// @Tags         points
// @Produce      json
// @Param        id          path   string  true  "Customer ID"
// @Param        cart_total  query  string  true  "Cart Total"
// @Success      200  {object}  map[string]any
// @Router       /customers/{id}/points/max-redeemable [get]
func (s *Server) GetMaxRedeemablePoints(c *gin.Context) {
	customerID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_customer_id", "invalid customer id"))
		return
	}

	cartTotal, err := parseAmount(c.Query("cart_total"))
	if err != nil {
		AbortWithError(c, newValidationError("cart_total", "invalid_cart_total", "invalid cart_total"))
		return
	}

	maxPoints, err := s.pointsSvc.GetMaxRedeemablePoints(c.Request.Context(), customerID, cartTotal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"customer_id":    customerID.String(),
		"max_redeemable": maxPoints,
	}})
}

// @Summary      Validate Redemption
// @Description  Check whether a staged redemption would be accepted
// @Tags         points
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "Customer ID"
// @Param        request  body  validateRedemptionRequest  true  "Validate Redemption Request"
// @Success      200  {object}  map[string]any
// @Router       /customers/{id}/points/redemptions/validate [post]
func (s *Server) ValidateRedemption(c *gin.Context) {
	customerID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_customer_id", "invalid customer id"))
		return
	}

	var req validateRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cartTotal, err := parseAmount(req.CartTotal)
	if err != nil {
		AbortWithError(c, newValidationError("cart_total", "invalid_cart_total", "invalid cart_total"))
		return
	}

	allowed, err := s.pointsSvc.CanRedeemPoints(c.Request.Context(), customerID, req.Points, cartTotal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"allowed": allowed,
		"points":  req.Points,
	}})
}

// @Summary      Allocate Points
// @Description  Credit points for a completed order
// @Tags         points
// @Accept       json
// @Produce      json
// @Param        request  body  allocatePointsRequest  true  "Allocate Points Request"
// @Success      200  {object}  pointsdomain.AllocationResult
// @Router       /orders/allocate [post]
func (s *Server) AllocatePoints(c *gin.Context) {
	var req allocatePointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
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

	result, err := s.pointsSvc.AllocatePointsForOrder(c.Request.Context(), pointsdomain.OrderEvent{
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     strings.TrimSpace(req.Status),
		Total:      total,
		TaxTotal:   taxTotal,
		Currency:   strings.TrimSpace(req.Currency),
		Roles:      req.Roles,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// @Summary      Redeem Points
// @Description  Apply a staged redemption against a cart
// @Tags         points
// @Accept       json
// @Produce      json
// @Param        request  body  redeemPointsRequest  true  "Redeem Points Request"
// @Success      200  {object}  pointsdomain.Redemption
// @Router       /orders/redeem [post]
func (s *Server) RedeemPoints(c *gin.Context) {
	var req redeemPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer id"))
		return
	}
	cartTotal, err := parseAmount(req.CartTotal)
	if err != nil {
		AbortWithError(c, newValidationError("cart_total", "invalid_cart_total", "invalid cart_total"))
		return
	}

	redemption, err := s.pointsSvc.ProcessPointsRedemption(c.Request.Context(), pointsdomain.RedemptionRequest{
		OrderID:      orderID,
		CustomerID:   customerID,
		CartTotal:    cartTotal,
		StagedPoints: req.Points,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": redemption})
}

// @Summary      Refund Points
// @Description  Debit points after a monetary refund
// @Tags         points
// @Accept       json
// @Produce      json
// @Param        request  body  refundPointsRequest  true  "Refund Points Request"
// @Success      200  {object}  pointsdomain.RefundResult
// @Router       /orders/refund [post]
func (s *Server) RefundPoints(c *gin.Context) {
	var req refundPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}
	refunded, err := parseAmount(req.RefundedAmount)
	if err != nil {
		AbortWithError(c, newValidationError("refunded_amount", "invalid_refunded_amount", "invalid refunded_amount"))
		return
	}

	result, err := s.pointsSvc.DeductPointsForRefund(c.Request.Context(), pointsdomain.RefundRequest{
		OrderID:        orderID,
		RefundedAmount: refunded,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// @Summary      Add Points Adjustment
// @Description  Append a manual ledger adjustment
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body  adjustmentRequest  true  "Adjustment Request"
// @Success      200  {object}  map[string]any
// @Router       /admin/points/adjustments [post]
func (s *Server) AddPointsAdjustment(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "invalid customer id"))
		return
	}

	transactionID, err := s.pointsSvc.AddPointsTransaction(c.Request.Context(), pointsdomain.AddTransactionRequest{
		CustomerID:   customerID,
		Type:         pointsdomain.TypeAdminAdjustment,
		PointsAmount: req.Points,
		Description:  strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"transaction_id": transactionID.String(),
		"points":         req.Points,
	}})
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, pointsdomain.ErrInvalidCustomer
	}
	return id, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(raw))
}
