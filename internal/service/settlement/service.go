package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"templatestore/internal/domain"
	"templatestore/internal/events"
	"templatestore/internal/gateway"
)

type Verifier interface {
	Verify(ctx context.Context, reference string) (*gateway.Verification, error)
}

type paymentRepo interface {
	GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	RecordVerification(ctx context.Context, reference string, status domain.PaymentStatus, verifiedAmountCents *int64) error
}

type ledger interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	// MarkPaid and MarkFailed report whether this call performed the
	// pending -> terminal move.
	MarkPaid(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id string) (bool, error)
}

type tokenIssuer interface {
	IssueOnce(ctx context.Context, orderID, fileID string, maxDownloads int, ttl time.Duration) (*domain.DownloadToken, error)
	AllForOrder(ctx context.Context, orderID string) ([]domain.DownloadToken, error)
	FilesForProducts(ctx context.Context, productIDs []string) ([]domain.ProductFile, error)
}

type notifier interface {
	Enqueue(ctx context.Context, n domain.Notification) (bool, error)
}

type customerLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

type Config struct {
	MaxDownloads int
	TTL          time.Duration
	// PublicBaseURL prefixes download links in the confirmation mail.
	PublicBaseURL string
	// OrderViewURL is the storefront page showing one order.
	OrderViewURL string
}

// Outcome is the ledger state of the order after a settle attempt.
type Outcome struct {
	OrderID string
	Status  domain.OrderStatus
}

type Service struct {
	cfg       Config
	verifier  Verifier
	payments  paymentRepo
	ledger    ledger
	tokens    tokenIssuer
	notifier  notifier
	customers customerLookup
	publisher events.Publisher
	logger    *log.Logger
	now       func() time.Time
}

type Deps struct {
	Verifier  Verifier
	Payments  paymentRepo
	Ledger    ledger
	Tokens    tokenIssuer
	Notifier  notifier
	Customers customerLookup
	Publisher events.Publisher
}

func New(cfg Config, deps Deps, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	pub := deps.Publisher
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		cfg:       cfg,
		verifier:  deps.Verifier,
		payments:  deps.Payments,
		ledger:    deps.Ledger,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		customers: deps.Customers,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
	}
}

// Settle verifies the payment behind reference with the gateway and drives the
// order to its terminal state. It is safe to call any number of times: replays
// return the same outcome and never duplicate tokens or notifications.
//
// A gateway outage leaves the order pending and returns ErrExternalService.
func (s *Service) Settle(ctx context.Context, reference string) (Outcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Outcome{}, domain.Invalid("reference", "required")
	}

	payment, err := s.payments.GetPaymentByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Outcome{}, domain.ErrReferenceNotFound
		}
		return Outcome{}, err
	}
	order, err := s.ledger.Get(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Printf("settlement: ANOMALY payment without order reference=%s order_id=%s", reference, payment.OrderID)
			return Outcome{}, domain.Inconsistent("payment %s references missing order %s", reference, payment.OrderID)
		}
		return Outcome{}, err
	}

	v, err := s.verifier.Verify(ctx, reference)
	if err != nil {
		s.logger.Printf("settlement: verify reference=%s order_id=%s error=%v", reference, order.ID, err)
		return Outcome{}, domain.External("gateway", err)
	}

	switch v.Outcome {
	case gateway.OutcomeSuccess:
		err = s.settlePaid(ctx, order, payment, v)
	case gateway.OutcomeFailure:
		err = s.settleFailed(ctx, order, reference)
	default:
		s.logger.Printf("settlement: unclassified gateway status reference=%s status=%s", reference, v.Status)
		return Outcome{}, domain.External("gateway", fmt.Errorf("%w: %s", gateway.ErrUnexpectedStatus, v.Status))
	}
	if err != nil {
		return Outcome{}, err
	}

	fresh, err := s.ledger.Get(ctx, order.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{OrderID: fresh.ID, Status: fresh.Status()}, nil
}

func (s *Service) settlePaid(ctx context.Context, order *domain.Order, payment *domain.Payment, v *gateway.Verification) error {
	if order.Status() == domain.OrderFailed {
		s.logger.Printf("settlement: ANOMALY gateway reports success for failed order order_id=%s reference=%s", order.ID, payment.Reference)
		return nil
	}
	if order.Status() == domain.OrderPending && (!strings.EqualFold(v.Currency, order.Currency) || v.AmountCents < order.TotalCents) {
		s.logger.Printf("settlement: ANOMALY amount mismatch order_id=%s reference=%s expected=%d%s got=%d%s",
			order.ID, payment.Reference, order.TotalCents, order.Currency, v.AmountCents, v.Currency)
		return domain.Inconsistent("order %s expects %d %s, gateway verified %d %s",
			order.ID, order.TotalCents, order.Currency, v.AmountCents, v.Currency)
	}

	moved, err := s.ledger.MarkPaid(ctx, order.ID)
	if err != nil {
		return err
	}
	if payment.Status != domain.PaymentVerified {
		amount := v.AmountCents
		if err := s.payments.RecordVerification(ctx, payment.Reference, domain.PaymentVerified, &amount); err != nil {
			return err
		}
	}

	issued, err := s.issueTokens(ctx, order)
	if err != nil {
		return err
	}
	if err := s.notifyPaid(ctx, order, issued); err != nil {
		return err
	}
	if moved {
		s.publishPaid(ctx, order, payment.Reference, issued)
	}
	return nil
}

func (s *Service) settleFailed(ctx context.Context, order *domain.Order, reference string) error {
	if order.Status() == domain.OrderPaid {
		s.logger.Printf("settlement: ANOMALY gateway reports failure for paid order order_id=%s reference=%s", order.ID, reference)
		return nil
	}
	if order.Status() == domain.OrderFailed {
		return nil
	}
	if _, err := s.ledger.MarkFailed(ctx, order.ID); err != nil {
		return err
	}
	return s.payments.RecordVerification(ctx, reference, domain.PaymentRejected, nil)
}

type issuedFile struct {
	file  domain.ProductFile
	token domain.DownloadToken
}

// issueTokens grants one token per file of the order's digital lines. Files
// that already hold a token, live or spent, are skipped.
func (s *Service) issueTokens(ctx context.Context, order *domain.Order) ([]issuedFile, error) {
	productIDs := order.Cart.DigitalProductIDs()
	if len(productIDs) == 0 {
		return nil, nil
	}
	files, err := s.tokens.FilesForProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	existing, err := s.tokens.AllForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	byFile := make(map[string]domain.DownloadToken, len(existing))
	for _, t := range existing {
		if _, ok := byFile[t.FileID]; !ok {
			byFile[t.FileID] = t
		}
	}

	out := make([]issuedFile, 0, len(files))
	for _, f := range files {
		if t, ok := byFile[f.ID]; ok {
			out = append(out, issuedFile{file: f, token: t})
			continue
		}
		t, err := s.tokens.IssueOnce(ctx, order.ID, f.ID, s.cfg.MaxDownloads, s.cfg.TTL)
		if err != nil {
			s.logger.Printf("settlement: issue token order_id=%s file_id=%s error=%v", order.ID, f.ID, err)
			return nil, err
		}
		out = append(out, issuedFile{file: f, token: *t})
	}
	return out, nil
}

func (s *Service) notifyPaid(ctx context.Context, order *domain.Order, issued []issuedFile) error {
	email, name := s.contact(ctx, order)
	if email == "" {
		s.logger.Printf("settlement: no contact for order_id=%s, confirmation skipped", order.ID)
		return nil
	}

	downloads := make([]map[string]any, 0, len(issued))
	for _, it := range issued {
		downloads = append(downloads, map[string]any{
			"file_name":     it.file.FileName,
			"url":           s.DownloadURL(it.token.Token),
			"max_downloads": it.token.MaxDownloads,
			"expires_at":    it.token.ExpiresAt.UTC().Format(time.RFC1123),
		})
	}
	_, err := s.notifier.Enqueue(ctx, domain.Notification{
		Recipient: email,
		Template:  domain.TemplatePaymentConfirmed,
		Priority:  domain.PriorityNormal,
		DedupeKey: "payment_confirmed:" + order.ID,
		Data: map[string]any{
			"name":        name,
			"order_id":    order.ID,
			"total_cents": order.TotalCents,
			"currency":    order.Currency,
			"downloads":   downloads,
			"order_url":   s.OrderURL(order.ID),
		},
	})
	return err
}

// contact prefers the email captured at checkout and falls back to the
// registered customer.
func (s *Service) contact(ctx context.Context, order *domain.Order) (email, name string) {
	var cust *domain.Customer
	if order.CustomerID != nil && s.customers != nil {
		c, err := s.customers.GetByID(ctx, *order.CustomerID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Printf("settlement: customer lookup id=%s error=%v", *order.CustomerID, err)
		}
		cust = c
	}
	email = strings.TrimSpace(order.Email)
	if cust != nil {
		if email == "" {
			email = cust.Email
		}
		if cust.FirstName != "" {
			name = cust.FirstName
		}
	}
	return email, name
}

func (s *Service) publishPaid(ctx context.Context, order *domain.Order, reference string, issued []issuedFile) {
	ev := events.OrderPaid{
		Type:       events.TypeOrderPaid,
		OrderID:    order.ID,
		Reference:  reference,
		Email:      order.Email,
		TotalCents: order.TotalCents,
		Currency:   order.Currency,
		OccurredAt: s.now().UTC(),
	}
	if order.Discount != nil {
		ev.DiscountCode = order.Discount.Code
	}
	for _, it := range issued {
		ev.FileIDs = append(ev.FileIDs, it.file.ID)
	}
	if err := s.publisher.Publish(ctx, order.ID, ev); err != nil {
		s.logger.Printf("settlement: publish order.paid order_id=%s error=%v", order.ID, err)
	}
}

func (s *Service) DownloadURL(token string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/downloads?token=" + url.QueryEscape(token)
}

func (s *Service) OrderURL(orderID string) string {
	return strings.TrimRight(s.cfg.OrderViewURL, "/") + "/" + url.PathEscape(orderID)
}
