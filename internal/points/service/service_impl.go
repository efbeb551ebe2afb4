package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/events"
	"github.com/smallbiznis/rewardly/internal/observability/metrics"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	"github.com/smallbiznis/rewardly/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	RateConfig rateconfigdomain.Service
	Outbox     *events.Outbox
	Metrics    *metrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	rateconfig rateconfigdomain.Service
	outbox     *events.Outbox
	metrics    *metrics.LedgerMetrics

	txnRepo repository.Repository[pointsdomain.PointsTransaction]
	locks   *customerLocks
}

func NewService(p ServiceParam) pointsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("points.service"),
		genID: p.GenID,
		clock: p.Clock,

		rateconfig: p.RateConfig,
		outbox:     p.Outbox,
		metrics:    p.Metrics,

		txnRepo: repository.ProvideStore[pointsdomain.PointsTransaction](p.DB),
		locks:   newCustomerLocks(),
	}
}

// GetPointsBalance sums the customer's ledger. The ledger is the single
// source of truth; there is no separate balance column to drift.
func (s *Service) GetPointsBalance(ctx context.Context, customerID snowflake.ID) (int64, error) {
	if customerID == 0 {
		return 0, pointsdomain.ErrInvalidCustomer
	}
	return s.sumBalance(ctx, s.db, customerID)
}

func (s *Service) GetTransactions(ctx context.Context, customerID snowflake.ID, limit int) ([]pointsdomain.PointsTransaction, error) {
	if customerID == 0 {
		return nil, pointsdomain.ErrInvalidCustomer
	}
	if limit <= 0 {
		limit = 50
	}
	return s.txnRepo.Find(ctx,
		map[string]any{"customer_id": customerID},
		repository.WithOrder("id DESC"),
		repository.WithLimit(limit),
	)
}

// AddPointsTransaction appends one manual ledger entry. Debits on
// non-corrective types fail rather than clamp when they would drive the
// balance below zero.
func (s *Service) AddPointsTransaction(ctx context.Context, req pointsdomain.AddTransactionRequest) (snowflake.ID, error) {
	if req.CustomerID == 0 {
		return 0, pointsdomain.ErrInvalidCustomer
	}
	if !req.Type.Valid() {
		return 0, pointsdomain.ErrInvalidTransactionType
	}

	release := s.locks.Acquire(req.CustomerID)
	defer release()

	var txn *pointsdomain.PointsTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.appendTx(ctx, tx, appendRequest{
			customerID:  req.CustomerID,
			orderID:     req.OrderID,
			typ:         req.Type,
			points:      req.PointsAmount,
			description: req.Description,
			metadata:    req.Metadata,
		})
		if err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			CustomerID: req.CustomerID,
			Type:       events.EventPointsAdjusted,
			Payload: events.PointsPayload{
				TransactionID: txn.ID.String(),
				CustomerID:    req.CustomerID.String(),
				Points:        txn.PointsAmount,
				BalanceAfter:  txn.BalanceAfter,
			}.ToMap(),
		})
	})
	if err != nil {
		return 0, err
	}
	s.countTransaction(string(txn.Type))
	return txn.ID, nil
}

// CanRedeemPoints validates a redemption request against the only two
// bounds that exist: the customer's balance and the cart total. There is
// deliberately no fixed ceiling.
func (s *Service) CanRedeemPoints(ctx context.Context, customerID snowflake.ID, requestedPoints int64, cartTotal decimal.Decimal) (bool, error) {
	if customerID == 0 {
		return false, pointsdomain.ErrInvalidCustomer
	}
	if requestedPoints < 0 {
		return false, nil
	}
	balance, err := s.sumBalance(ctx, s.db, customerID)
	if err != nil {
		return false, err
	}
	if requestedPoints > balance {
		return false, nil
	}
	if pointsdomain.CalculateDiscountFromPoints(requestedPoints).GreaterThan(cartTotal) {
		return false, nil
	}
	return true, nil
}

// GetMaxRedeemablePoints returns min(balance, cart total). No other term
// participates.
func (s *Service) GetMaxRedeemablePoints(ctx context.Context, customerID snowflake.ID, cartTotal decimal.Decimal) (int64, error) {
	if customerID == 0 {
		return 0, pointsdomain.ErrInvalidCustomer
	}
	balance, err := s.sumBalance(ctx, s.db, customerID)
	if err != nil {
		return 0, err
	}
	cartPoints := pointsdomain.CalculatePointsFromDiscount(cartTotal)
	if cartPoints < balance {
		return cartPoints, nil
	}
	return balance, nil
}

// ProcessPointsRedemption re-validates the staged redemption value under
// the customer lock and writes one negative ledger row. On any validation
// failure the staged value is discarded and nothing is written.
func (s *Service) ProcessPointsRedemption(ctx context.Context, req pointsdomain.RedemptionRequest) (*pointsdomain.Redemption, error) {
	if req.CustomerID == 0 {
		return nil, pointsdomain.ErrInvalidCustomer
	}
	if req.OrderID == 0 {
		return nil, pointsdomain.ErrInvalidOrder
	}
	if req.StagedPoints <= 0 {
		s.countRejection("invalid_points")
		return nil, pointsdomain.ErrInvalidPoints
	}

	release := s.locks.Acquire(req.CustomerID)
	defer release()

	var result *pointsdomain.Redemption
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.sumBalance(ctx, tx, req.CustomerID)
		if err != nil {
			return err
		}
		if req.StagedPoints > balance {
			s.countRejection("insufficient_balance")
			return pointsdomain.ErrInsufficientBalance
		}
		discount := pointsdomain.CalculateDiscountFromPoints(req.StagedPoints)
		if discount.GreaterThan(req.CartTotal) {
			s.countRejection("exceeds_cart_total")
			return pointsdomain.ErrExceedsCartTotal
		}

		orderID := req.OrderID
		txn, err := s.appendTx(ctx, tx, appendRequest{
			customerID:  req.CustomerID,
			orderID:     &orderID,
			typ:         pointsdomain.TypeRedemption,
			points:      -req.StagedPoints,
			description: fmt.Sprintf("Redeemed %d points at checkout", req.StagedPoints),
			metadata: map[string]any{
				pointsdomain.MetaCartTotal: req.CartTotal.String(),
			},
		})
		if err != nil {
			return err
		}

		result = &pointsdomain.Redemption{
			TransactionID: txn.ID,
			Points:        req.StagedPoints,
			Discount:      discount,
			BalanceAfter:  txn.BalanceAfter,
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			CustomerID: req.CustomerID,
			Type:       events.EventPointsRedeemed,
			DedupeKey:  fmt.Sprintf("redeem:%s", txn.ID),
			Payload: events.PointsPayload{
				TransactionID: txn.ID.String(),
				CustomerID:    req.CustomerID.String(),
				OrderID:       req.OrderID.String(),
				Points:        -req.StagedPoints,
				BalanceAfter:  txn.BalanceAfter,
			}.ToMap(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.countTransaction(string(pointsdomain.TypeRedemption))
	return result, nil
}

// AllocatePointsForOrder credits purchase points exactly once per order.
// A repeat delivery of the same order event is absorbed as a no-op.
func (s *Service) AllocatePointsForOrder(ctx context.Context, order pointsdomain.OrderEvent) (*pointsdomain.AllocationResult, error) {
	if order.CustomerID == 0 {
		return nil, pointsdomain.ErrInvalidCustomer
	}
	if order.OrderID == 0 {
		return nil, pointsdomain.ErrInvalidOrder
	}
	switch order.Status {
	case pointsdomain.OrderStatusCompleted, pointsdomain.OrderStatusProcessing:
	default:
		return nil, pointsdomain.ErrOrderNotEligible
	}

	snapshot, err := s.rateconfig.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rate, role, err := snapshot.ResolveRate(order.Roles)
	if err != nil {
		return nil, err
	}
	points, err := pointsdomain.CalculatePointsFromAmount(order.Total, rate)
	if err != nil {
		return nil, err
	}

	release := s.locks.Acquire(order.CustomerID)
	defer release()

	var result *pointsdomain.AllocationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findOrderTransaction(ctx, tx, order.OrderID, pointsdomain.TypeOrderPurchase)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &pointsdomain.AllocationResult{
				TransactionID: existing.ID,
				Credited:      false,
				Points:        existing.PointsAmount,
				BalanceAfter:  existing.BalanceAfter,
			}
			return nil
		}

		orderID := order.OrderID
		txn, err := s.appendTx(ctx, tx, appendRequest{
			customerID:  order.CustomerID,
			orderID:     &orderID,
			typ:         pointsdomain.TypeOrderPurchase,
			points:      points,
			description: fmt.Sprintf("Points for order %s", order.OrderID),
			metadata: map[string]any{
				pointsdomain.MetaOrderTotal: order.Total.String(),
				pointsdomain.MetaCurrency:   order.Currency,
				pointsdomain.MetaPointsRate: rate,
				pointsdomain.MetaRole:       role,
			},
		})
		if err != nil {
			return err
		}

		result = &pointsdomain.AllocationResult{
			TransactionID: txn.ID,
			Credited:      true,
			Points:        points,
			BalanceAfter:  txn.BalanceAfter,
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			CustomerID: order.CustomerID,
			Type:       events.EventPointsAllocated,
			DedupeKey:  fmt.Sprintf("allocate:%s", order.OrderID),
			Payload: events.PointsPayload{
				TransactionID: txn.ID.String(),
				CustomerID:    order.CustomerID.String(),
				OrderID:       order.OrderID.String(),
				Points:        points,
				BalanceAfter:  txn.BalanceAfter,
			}.ToMap(),
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Credited {
		s.countTransaction(string(pointsdomain.TypeOrderPurchase))
	}
	return result, nil
}

// DeductPointsForRefund debits points after a monetary refund. A partial
// refund of fraction f debits floor(original_points * f); a full refund
// debits exactly the originally credited amount, never a recomputation.
// Refunding an order that never earned points is a no-op.
func (s *Service) DeductPointsForRefund(ctx context.Context, req pointsdomain.RefundRequest) (*pointsdomain.RefundResult, error) {
	if req.OrderID == 0 {
		return nil, pointsdomain.ErrInvalidOrder
	}

	original, err := s.findOrderTransaction(ctx, s.db, req.OrderID, pointsdomain.TypeOrderPurchase)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return &pointsdomain.RefundResult{Debited: false}, nil
	}

	release := s.locks.Acquire(original.CustomerID)
	defer release()

	var result *pointsdomain.RefundResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findOrderTransaction(ctx, tx, req.OrderID, pointsdomain.TypeOrderRefund)
		if err != nil {
			return err
		}
		if existing != nil {
			result = &pointsdomain.RefundResult{
				TransactionID: existing.ID,
				Debited:       false,
				Points:        -existing.PointsAmount,
				BalanceAfter:  existing.BalanceAfter,
			}
			return nil
		}

		debit, fraction, err := refundDebit(original, req.RefundedAmount)
		if err != nil {
			return err
		}
		if debit == 0 {
			result = &pointsdomain.RefundResult{Debited: false}
			return nil
		}

		orderID := req.OrderID
		txn, err := s.appendTx(ctx, tx, appendRequest{
			customerID:  original.CustomerID,
			orderID:     &orderID,
			typ:         pointsdomain.TypeOrderRefund,
			points:      -debit,
			description: fmt.Sprintf("Points reversed for refund of order %s", req.OrderID),
			metadata: map[string]any{
				pointsdomain.MetaRefundFraction: fraction.String(),
			},
			clampToZero: true,
		})
		if err != nil {
			return err
		}

		result = &pointsdomain.RefundResult{
			TransactionID: txn.ID,
			Debited:       true,
			Points:        -txn.PointsAmount,
			BalanceAfter:  txn.BalanceAfter,
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			CustomerID: original.CustomerID,
			Type:       events.EventPointsRefunded,
			DedupeKey:  fmt.Sprintf("refund:%s", req.OrderID),
			Payload: events.PointsPayload{
				TransactionID: txn.ID.String(),
				CustomerID:    original.CustomerID.String(),
				OrderID:       req.OrderID.String(),
				Points:        txn.PointsAmount,
				BalanceAfter:  txn.BalanceAfter,
			}.ToMap(),
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Debited {
		s.countTransaction(string(pointsdomain.TypeOrderRefund))
	}
	return result, nil
}

// refundDebit derives the points to reverse. Full refunds use the stored
// original point amount so floor rounding during partial math can never
// leave a one-point residue.
func refundDebit(original *pointsdomain.PointsTransaction, refunded decimal.Decimal) (int64, decimal.Decimal, error) {
	if refunded.Sign() <= 0 {
		return 0, decimal.Zero, nil
	}

	total, err := orderTotalFromMetadata(original.Metadata)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if total.Sign() <= 0 || refunded.GreaterThanOrEqual(total) {
		return original.PointsAmount, decimal.NewFromInt(1), nil
	}

	fraction := refunded.Div(total)
	debit := decimal.NewFromInt(original.PointsAmount).Mul(fraction).Floor().IntPart()
	if debit > original.PointsAmount {
		debit = original.PointsAmount
	}
	return debit, fraction, nil
}

func orderTotalFromMetadata(metadata datatypes.JSONMap) (decimal.Decimal, error) {
	raw, ok := metadata[pointsdomain.MetaOrderTotal]
	if !ok {
		return decimal.Zero, nil
	}
	switch value := raw.(type) {
	case string:
		total, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return decimal.Zero, fmt.Errorf("malformed order_total metadata: %w", err)
		}
		return total, nil
	case float64:
		return decimal.NewFromFloat(value), nil
	default:
		return decimal.Zero, nil
	}
}

type appendRequest struct {
	customerID  snowflake.ID
	orderID     *snowflake.ID
	typ         pointsdomain.TransactionType
	points      int64
	description string
	metadata    map[string]any

	// clampToZero marks the corrective recalculation path where a debit
	// larger than the balance is reduced instead of rejected.
	clampToZero bool
}

// appendTx writes one ledger row with its balance snapshot. Callers hold
// the customer lock.
func (s *Service) appendTx(ctx context.Context, tx *gorm.DB, req appendRequest) (*pointsdomain.PointsTransaction, error) {
	balance, err := s.sumBalance(ctx, tx, req.customerID)
	if err != nil {
		return nil, err
	}

	points := req.points
	if balance+points < 0 {
		if !req.clampToZero {
			return nil, pointsdomain.ErrNegativeBalanceViolation
		}
		points = -balance
	}

	txn := &pointsdomain.PointsTransaction{
		ID:           s.genID.Generate(),
		CustomerID:   req.customerID,
		OrderID:      req.orderID,
		Type:         req.typ,
		PointsAmount: points,
		Description:  req.description,
		BalanceAfter: balance + points,
		CreatedAt:    s.clock.Now(),
	}
	if req.metadata != nil {
		txn.Metadata = datatypes.JSONMap(req.metadata)
	}

	if err := s.txnRepo.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) sumBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(points_amount), 0)
		 FROM points_transactions
		 WHERE customer_id = ?`,
		customerID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) findOrderTransaction(ctx context.Context, db *gorm.DB, orderID snowflake.ID, typ pointsdomain.TransactionType) (*pointsdomain.PointsTransaction, error) {
	var txn pointsdomain.PointsTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, order_id, type, points_amount, description, metadata, balance_after, created_at
		 FROM points_transactions
		 WHERE order_id = ? AND type = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		orderID,
		typ,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (s *Service) countTransaction(transactionType string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncTransaction(transactionType)
}

func (s *Service) countRejection(reason string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncRedemptionRejected(reason)
}
