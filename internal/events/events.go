package events

// Loyalty event types consumed by the payout/audit collaborator.
const (
	EventPointsAllocated      = "points.allocated"
	EventPointsRedeemed       = "points.redeemed"
	EventPointsRefunded       = "points.refunded"
	EventPointsAdjusted       = "points.adjusted"
	EventCommissionCalculated = "commission.calculated"
	EventMigrationCompleted   = "migration.completed"
	EventMigrationRolledBack  = "migration.rolled_back"
)

// PointsPayload captures the minimal data needed to mirror a ledger write.
type PointsPayload struct {
	TransactionID string `json:"transaction_id"`
	CustomerID    string `json:"customer_id"`
	OrderID       string `json:"order_id,omitempty"`
	Points        int64  `json:"points"`
	BalanceAfter  int64  `json:"balance_after"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p PointsPayload) ToMap() map[string]any {
	payload := map[string]any{
		"transaction_id": p.TransactionID,
		"customer_id":    p.CustomerID,
		"points":         p.Points,
		"balance_after":  p.BalanceAfter,
	}
	if p.OrderID != "" {
		payload["order_id"] = p.OrderID
	}
	return payload
}

// CommissionPayload captures a computed commission breakdown reference.
type CommissionPayload struct {
	CoachID     string `json:"coach_id"`
	CustomerID  string `json:"customer_id"`
	OrderID     string `json:"order_id"`
	TotalAmount string `json:"total_amount"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p CommissionPayload) ToMap() map[string]any {
	return map[string]any{
		"coach_id":     p.CoachID,
		"customer_id":  p.CustomerID,
		"order_id":     p.OrderID,
		"total_amount": p.TotalAmount,
	}
}
