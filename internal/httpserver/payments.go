package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"templatestore/internal/domain"
)

// paymentCallback is where the gateway returns the shopper. The reference is
// the only input trusted to locate the order.
func (h *handlers) paymentCallback(c *gin.Context) {
	ref := strings.TrimSpace(c.Query("reference"))
	if ref == "" {
		ref = strings.TrimSpace(c.Query("trxref"))
	}
	if ref == "" {
		c.String(http.StatusBadRequest, "missing payment reference")
		return
	}

	out, err := h.deps.Settler.Settle(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, domain.ErrExternalService) {
			c.String(http.StatusServiceUnavailable, msgPaymentUnknown)
			return
		}
		if errors.Is(err, domain.ErrConsistency) {
			h.logger.Printf("payments: callback reference=%s error=%v", ref, err)
		}
		writeTextError(c, err)
		return
	}

	result := "failed"
	if out.Status == domain.OrderPaid {
		result = "success"
	}
	target := strings.TrimRight(h.opts.OrderViewURL, "/") + "/" + url.PathEscape(out.OrderID) + "?payment=" + result
	c.Redirect(http.StatusFound, target)
}
