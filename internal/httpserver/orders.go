package httpserver

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"templatestore/internal/domain"
)

type orderView struct {
	ID            string                  `json:"id"`
	Status        domain.OrderStatus      `json:"status"`
	Email         string                  `json:"email,omitempty"`
	Lines         []domain.CartLine       `json:"lines"`
	Currency      string                  `json:"currency"`
	SubtotalCents int64                   `json:"subtotalCents"`
	DiscountCents int64                   `json:"discountCents"`
	TotalCents    int64                   `json:"totalCents"`
	Discount      *domain.AppliedDiscount `json:"discount,omitempty"`
	PaidAt        *time.Time              `json:"paidAt,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
	Downloads     []downloadView          `json:"downloads"`
}

type downloadView struct {
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *handlers) getOrder(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.deps.Orders.Get(ctx, c.Param("id"))
	if err != nil {
		writeJSONError(c, err)
		return
	}

	view := orderView{
		ID:            o.ID,
		Status:        o.Status(),
		Email:         o.Email,
		Lines:         o.Cart.Lines,
		Currency:      o.Currency,
		SubtotalCents: o.SubtotalCents,
		DiscountCents: o.DiscountCents,
		TotalCents:    o.TotalCents,
		Discount:      o.Discount,
		PaidAt:        o.PaymentVerifiedAt,
		CreatedAt:     o.CreatedAt,
		Downloads:     []downloadView{},
	}
	if view.Lines == nil {
		view.Lines = []domain.CartLine{}
	}

	if o.Status() == domain.OrderPaid {
		downloads, err := h.downloadsFor(c, o)
		if err != nil {
			h.logger.Printf("orders: list downloads order_id=%s error=%v", o.ID, err)
			writeJSONError(c, err)
			return
		}
		view.Downloads = downloads
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) downloadsFor(c *gin.Context, o *domain.Order) ([]downloadView, error) {
	ctx := c.Request.Context()
	tokens, err := h.deps.Downloads.ListForOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	files, err := h.deps.Downloads.FilesForProducts(ctx, o.Cart.DigitalProductIDs())
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(files))
	for _, f := range files {
		names[f.ID] = f.FileName
	}

	out := make([]downloadView, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, downloadView{
			FileID:    t.FileID,
			FileName:  names[t.FileID],
			URL:       strings.TrimRight(h.opts.PublicBaseURL, "/") + "/downloads?token=" + url.QueryEscape(t.Token),
			Remaining: t.Remaining(),
			ExpiresAt: t.ExpiresAt,
		})
	}
	return out, nil
}
