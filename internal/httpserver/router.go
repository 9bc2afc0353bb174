package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"templatestore/internal/domain"
	"templatestore/internal/service/checkout"
	"templatestore/internal/service/discount"
	"templatestore/internal/service/download"
	"templatestore/internal/service/notification"
	"templatestore/internal/service/settlement"
	"templatestore/internal/worker"
)

type Settler interface {
	Settle(ctx context.Context, reference string) (settlement.Outcome, error)
}

type DownloadService interface {
	Redeem(ctx context.Context, token string) (*download.Download, error)
	ListForOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error)
	FilesForProducts(ctx context.Context, productIDs []string) ([]domain.ProductFile, error)
}

type QueueService interface {
	Drain(ctx context.Context, batchSize int, mode notification.Mode) (notification.DrainResult, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}

type DiscountService interface {
	Apply(ctx context.Context, cart domain.Cart, code string, state domain.SessionDiscountState) (discount.Result, error)
	Remove(cart domain.Cart) discount.Result
	Reprice(ctx context.Context, cart domain.Cart, state domain.SessionDiscountState) (discount.Result, error)
}

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (domain.SessionDiscountState, error)
	Save(ctx context.Context, sessionID string, state domain.SessionDiscountState) error
	Clear(ctx context.Context, sessionID string) error
}

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	CartFor(ctx context.Context, lines []checkout.LineInput) (domain.Cart, error)
}

type OrderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
}

type Dispatcher interface {
	Submit(task worker.Task) bool
}

// Options are the request-independent settings the handlers need.
type Options struct {
	OrderViewURL  string
	PublicBaseURL string
	TriggerToken  string
	BatchSize     int
	CORSOrigins   []string
	SessionTTL    time.Duration
}

// Deps holds dependencies for HTTP handlers.
type Deps struct {
	Settler    Settler
	Downloads  DownloadService
	Queue      QueueService
	Discounts  DiscountService
	Sessions   SessionStore
	Checkout   CheckoutService
	Orders     OrderReader
	Dispatcher Dispatcher
	Options    Options
}

func (d Deps) validate() error {
	switch {
	case d.Settler == nil:
		return errors.New("settler is required")
	case d.Downloads == nil:
		return errors.New("download service is required")
	case d.Queue == nil:
		return errors.New("queue service is required")
	case d.Discounts == nil:
		return errors.New("discount service is required")
	case d.Sessions == nil:
		return errors.New("session store is required")
	case d.Checkout == nil:
		return errors.New("checkout service is required")
	case d.Orders == nil:
		return errors.New("order reader is required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Options.BatchSize <= 0 {
		deps.Options.BatchSize = 25
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(deps.Options.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.Options.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "X-Queue-Token"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	h := &handlers{deps: deps, opts: deps.Options, logger: logger}
	router.GET("/payments/callback", h.paymentCallback)
	router.GET("/downloads", h.download)
	router.GET("/queue/drain", h.drainQueue)

	co := router.Group("/checkout")
	co.Use(h.sessionMiddleware)
	co.POST("/discount", h.applyDiscount)
	co.DELETE("/discount", h.removeDiscount)
	co.POST("", h.checkout)

	router.GET("/orders/:id", h.getOrder)

	return router, nil
}

type handlers struct {
	deps   Deps
	opts   Options
	logger *log.Logger
}
