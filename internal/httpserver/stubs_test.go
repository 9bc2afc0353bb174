package httpserver

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"templatestore/internal/domain"
	"templatestore/internal/service/checkout"
	"templatestore/internal/service/discount"
	"templatestore/internal/service/download"
	"templatestore/internal/service/notification"
	"templatestore/internal/service/settlement"
	"templatestore/internal/worker"
)

func logDiscard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type stubSettler struct {
	out   settlement.Outcome
	err   error
	calls []string
}

func (s *stubSettler) Settle(_ context.Context, ref string) (settlement.Outcome, error) {
	s.calls = append(s.calls, ref)
	return s.out, s.err
}

type stubDownloads struct {
	dl     *download.Download
	err    error
	tokens []domain.DownloadToken
	files  []domain.ProductFile
}

func (s *stubDownloads) Redeem(_ context.Context, _ string) (*download.Download, error) {
	return s.dl, s.err
}

func (s *stubDownloads) ListForOrder(_ context.Context, _ string) ([]domain.DownloadToken, error) {
	return s.tokens, nil
}

func (s *stubDownloads) FilesForProducts(_ context.Context, _ []string) ([]domain.ProductFile, error) {
	return s.files, nil
}

type stubQueue struct {
	drained []notification.Mode
	batch   int
	stats   domain.QueueStats
}

func (s *stubQueue) Drain(_ context.Context, batch int, mode notification.Mode) (notification.DrainResult, error) {
	s.drained = append(s.drained, mode)
	s.batch = batch
	return notification.DrainResult{Sent: 1}, nil
}

func (s *stubQueue) Stats(_ context.Context) (domain.QueueStats, error) {
	return s.stats, nil
}

type stubDiscounts struct {
	res discount.Result
	err error
}

func (s *stubDiscounts) Apply(_ context.Context, _ domain.Cart, _ string, _ domain.SessionDiscountState) (discount.Result, error) {
	return s.res, s.err
}

func (s *stubDiscounts) Remove(cart domain.Cart) discount.Result {
	return discount.Result{Priced: discount.PriceCart(cart, 0)}
}

func (s *stubDiscounts) Reprice(_ context.Context, cart domain.Cart, _ domain.SessionDiscountState) (discount.Result, error) {
	return discount.Result{Priced: discount.PriceCart(cart, 0)}, nil
}

type memSessions map[string]domain.SessionDiscountState

func (m memSessions) Get(_ context.Context, id string) (domain.SessionDiscountState, error) {
	return m[id], nil
}

func (m memSessions) Save(_ context.Context, id string, st domain.SessionDiscountState) error {
	m[id] = st
	return nil
}

func (m memSessions) Clear(_ context.Context, id string) error {
	delete(m, id)
	return nil
}

type stubCheckout struct {
	req checkout.Request
	res *checkout.Result
	err error
}

func (s *stubCheckout) Checkout(_ context.Context, req checkout.Request) (*checkout.Result, error) {
	s.req = req
	return s.res, s.err
}

func (s *stubCheckout) CartFor(_ context.Context, lines []checkout.LineInput) (domain.Cart, error) {
	if len(lines) == 0 {
		return domain.Cart{}, domain.Invalid("lines", "must contain at least one line")
	}
	cart := domain.Cart{Currency: "USD"}
	for _, l := range lines {
		cart.Lines = append(cart.Lines, domain.CartLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPriceCents: 10000, Digital: true})
	}
	return cart, nil
}

type stubOrders map[string]domain.Order

func (s stubOrders) Get(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

type stubDispatcher struct {
	accept bool
	tasks  []worker.Task
}

func (s *stubDispatcher) Submit(task worker.Task) bool {
	if !s.accept {
		return false
	}
	s.tasks = append(s.tasks, task)
	return true
}

type testEnv struct {
	settler    *stubSettler
	downloads  *stubDownloads
	queue      *stubQueue
	discounts  *stubDiscounts
	sessions   memSessions
	checkout   *stubCheckout
	orders     stubOrders
	dispatcher *stubDispatcher
	opts       Options
}

func newTestEnv() *testEnv {
	return &testEnv{
		settler:    &stubSettler{},
		downloads:  &stubDownloads{},
		queue:      &stubQueue{},
		discounts:  &stubDiscounts{},
		sessions:   memSessions{},
		checkout:   &stubCheckout{},
		orders:     stubOrders{},
		dispatcher: &stubDispatcher{accept: true},
		opts: Options{
			OrderViewURL:  "https://shop.example/orders/",
			PublicBaseURL: "https://api.example",
			BatchSize:     25,
		},
	}
}

func (e *testEnv) router(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, err := buildRouter(logDiscard(), nil, Deps{
		Settler:    e.settler,
		Downloads:  e.downloads,
		Queue:      e.queue,
		Discounts:  e.discounts,
		Sessions:   e.sessions,
		Checkout:   e.checkout,
		Orders:     e.orders,
		Dispatcher: e.dispatcher,
		Options:    e.opts,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return r
}

func serve(r http.Handler, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
