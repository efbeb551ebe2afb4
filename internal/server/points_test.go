package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/config"
	"github.com/smallbiznis/rewardly/internal/events"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
	pointsservice "github.com/smallbiznis/rewardly/internal/points/service"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	rateconfigservice "github.com/smallbiznis/rewardly/internal/rateconfig/service"
	"github.com/smallbiznis/rewardly/internal/seed"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine, pointsdomain.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&pointsdomain.PointsTransaction{},
		&rateconfigdomain.RolePointRate{},
		&rateconfigdomain.CommissionBucketRate{},
		&rateconfigdomain.CoachTier{},
		&rateconfigdomain.SeasonWindow{},
		&rateconfigdomain.BonusSetting{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS loyalty_events (
			id BIGINT PRIMARY KEY,
			customer_id BIGINT,
			event_type TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT UNIQUE,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("create loyalty_events: %v", err)
	}
	if err := seed.EnsureDefaultRates(db); err != nil {
		t.Fatalf("seed: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	rateSvc := rateconfigservice.NewService(rateconfigservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.SystemClock{},
		Cfg:   config.Config{ConfigCacheTTL: time.Minute},
	})
	pointsSvc := pointsservice.NewService(pointsservice.ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.SystemClock{},
		RateConfig: rateSvc,
		Outbox:     events.NewOutbox(db, node),
	})

	srv := &Server{
		cfg:       config.Config{},
		log:       zap.NewNop(),
		db:        db,
		pointsSvc: pointsSvc,
		rateSvc:   rateSvc,
	}
	engine := gin.New()
	srv.RegisterAPIRoutes(engine)
	return srv, engine, pointsSvc
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func TestGetPointsBalanceEndpoint(t *testing.T) {
	_, engine, pointsSvc := newTestServer(t)

	if _, err := pointsSvc.AddPointsTransaction(context.Background(), pointsdomain.AddTransactionRequest{
		CustomerID:   21,
		Type:         pointsdomain.TypeAdminAdjustment,
		PointsAmount: 42,
		Description:  "credit",
	}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	recorder := doJSON(t, engine, http.MethodGet, "/v1/customers/21/points/balance", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Data struct {
			Balance int64 `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Balance != 42 {
		t.Fatalf("expected balance 42, got %d", payload.Data.Balance)
	}
}

func TestAllocateEndpointIdempotent(t *testing.T) {
	_, engine, _ := newTestServer(t)

	body := `{"order_id":"300","customer_id":"22","status":"completed","total":"95","currency":"USD","roles":["customer"]}`

	first := doJSON(t, engine, http.MethodPost, "/v1/orders/allocate", body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	second := doJSON(t, engine, http.MethodPost, "/v1/orders/allocate", body)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", second.Code)
	}

	var payload struct {
		Data pointsdomain.AllocationResult `json:"data"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Credited {
		t.Fatal("repeat allocation must not credit")
	}
	if payload.Data.Points != 9 {
		t.Fatalf("expected 9 points, got %d", payload.Data.Points)
	}
}

func TestRedeemEndpointMapsDomainErrors(t *testing.T) {
	_, engine, _ := newTestServer(t)

	// No balance: the engine's insufficient-balance error surfaces as 422.
	body := `{"order_id":"400","customer_id":"23","cart_total":"100","points":50}`
	recorder := doJSON(t, engine, http.MethodPost, "/v1/orders/redeem", body)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != pointsdomain.ErrInsufficientBalance.Error() {
		t.Fatalf("expected insufficient_balance code, got %s", payload.Error.Code)
	}
}

func TestEndpointRejectsMalformedID(t *testing.T) {
	_, engine, _ := newTestServer(t)

	recorder := doJSON(t, engine, http.MethodGet, "/v1/customers/not-a-number/points/balance", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestMaxRedeemableEndpoint(t *testing.T) {
	_, engine, pointsSvc := newTestServer(t)

	if _, err := pointsSvc.AddPointsTransaction(context.Background(), pointsdomain.AddTransactionRequest{
		CustomerID:   24,
		Type:         pointsdomain.TypeAdminAdjustment,
		PointsAmount: 500,
		Description:  "credit",
	}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	recorder := doJSON(t, engine, http.MethodGet, "/v1/customers/24/points/max-redeemable?cart_total=350.75", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Data struct {
			MaxRedeemable int64 `json:"max_redeemable"`
		} `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.MaxRedeemable != 350 {
		t.Fatalf("expected 350, got %d", payload.Data.MaxRedeemable)
	}
}
