package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"vubank/internal/domain"
	"vubank/internal/instruction"
	"vubank/internal/orchestrator"
	"vubank/internal/statestore"
	"vubank/pkg/logger"
	"vubank/pkg/validator"
)

type stubSettlementClient struct {
	outcome domain.SettlementOutcome
}

func (s *stubSettlementClient) Submit(ctx context.Context, req *domain.SettlementRequest, userAuth string) *domain.SettlementOutcome {
	out := s.outcome
	out.TxnRef = req.TxnRef
	return &out
}

type stubBalanceSource struct {
	balance decimal.Decimal
}

func (s *stubBalanceSource) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	return s.balance, nil
}

type testFixture struct {
	handler *PaymentHandler
	service *orchestrator.Service
	store   *statestore.Store
	router  *mux.Router
}

func newFixture(balance int64) *testFixture {
	log := logger.NewNop()
	store := statestore.NewStore(statestore.NewMemoryKV(), time.Hour, 30*time.Second, time.Minute, log)

	svc := orchestrator.NewService(store,
		&stubSettlementClient{outcome: domain.SettlementOutcome{Status: domain.OutcomeApproved}},
		&stubBalanceSource{balance: decimal.NewFromInt(balance)},
		orchestrator.Options{
			Workers:            1,
			QueueSize:          16,
			DefaultBalance:     decimal.NewFromInt(balance),
			Currency:           "INR",
			DefaultAccountType: "SAVINGS",
			SettlementTimeout:  5 * time.Second,
		}, log)
	svc.Start()

	parser := instruction.NewParser(1<<20, 500, validator.New(), log)
	h := NewPaymentHandler(svc, parser, store, "web-portal", log)

	r := mux.NewRouter()
	r.HandleFunc("/payments/transfer", h.Transfer).Methods("POST")
	r.HandleFunc("/payments/status/{txnRef}", h.Status).Methods("GET")

	return &testFixture{handler: h, service: svc, store: store, router: r}
}

func transferRequest(body string) *http.Request {
	req := httptest.NewRequest("POST", "/payments/transfer", strings.NewReader(body))
	req.Header.Set("X-Api-Client", "web-portal")
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("X-Request-Id", "req-1")
	return req
}

func validXML() string {
	return `<PaymentInstruction>
		<PayeeName>Ravi Kumar</PayeeName>
		<IFSCCode>HDFC0001234</IFSCCode>
		<PaymentType>NEFT</PaymentType>
		<CustomerName>Anil Sharma</CustomerName>
		<FromAccountNo>1234567890</FromAccountNo>
		<ToAccountNo>0987654321</ToAccountNo>
		<BranchName>MG Road</BranchName>
		<Comments>Monthly rent</Comments>
		<Amount>5000</Amount>
		<DateTime>2026-01-15T10:30:00Z</DateTime>
	</PaymentInstruction>`
}

func TestTransfer_Accepted(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, transferRequest(validXML()))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"IN_PROGRESS"`)
	assert.Contains(t, w.Body.String(), "txnRef")
}

func TestTransfer_UnknownAPIClient(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	req := transferRequest(validXML())
	req.Header.Set("X-Api-Client", "mobile-app")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransfer_WrongContentType(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	req := transferRequest(validXML())
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransfer_ValidationFailure(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	body := strings.Replace(validXML(), "HDFC0001234", "NOPE", 1)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, transferRequest(body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IFSCCode")
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	f := newFixture(1000)
	defer f.service.Stop()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, transferRequest(validXML()))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), domain.ReasonInsufficientBalance)
}

func TestTransfer_DuplicateIdempotencyKey(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	// Simulate an in-flight submission holding the lock.
	acquired, err := f.store.TryLock(context.Background(), "idem-1")
	assert.NoError(t, err)
	assert.True(t, acquired)

	req := transferRequest(validXML())
	req.Header.Set("Idempotency-Key", "idem-1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Duplicate request")
}

func TestTransfer_IdempotencyLockReleasedAfterRequest(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	req := transferRequest(validXML())
	req.Header.Set("Idempotency-Key", "idem-2")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	// The synchronous portion is done, so a later retry is a fresh request.
	req = transferRequest(validXML())
	req.Header.Set("Idempotency-Key", "idem-2")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestStatus_Found(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, transferRequest(validXML()))
	assert.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		TxnRef string `json:"txnRef"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	statusReq := httptest.NewRequest("GET", "/payments/status/"+accepted.TxnRef, nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, statusReq)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), accepted.TxnRef)
}

func TestStatus_NotFound(t *testing.T) {
	f := newFixture(100000)
	defer f.service.Stop()

	req := httptest.NewRequest("GET", "/payments/status/unknown-ref", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
