package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"templatestore/internal/domain"
	"templatestore/internal/service/checkout"
)

const (
	sessionCookie  = "session_id"
	discountCookie = "discount_code"
	sessionCtxKey  = "session_id"
)

type discountRequest struct {
	Code  string               `json:"code"`
	Lines []checkout.LineInput `json:"lines"`
}

type checkoutRequest struct {
	Lines      []checkout.LineInput `json:"lines"`
	Email      string               `json:"email"`
	CustomerID string               `json:"customerId"`
}

type pricedResponse struct {
	Priced   domain.PricedCart       `json:"priced"`
	Discount *domain.AppliedDiscount `json:"discount"`
	Error    string                  `json:"error,omitempty"`
}

// sessionMiddleware makes sure every checkout request carries a session id,
// issuing a new cookie when the shopper has none.
func (h *handlers) sessionMiddleware(c *gin.Context) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		id = uuid.NewString()
		h.setCookie(c, sessionCookie, id)
	}
	c.Set(sessionCtxKey, id)
	c.Next()
}

func (h *handlers) setCookie(c *gin.Context, name, value string) {
	ttl := h.opts.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(ttl.Seconds()), "/", "", false, true)
}

func (h *handlers) clearCookie(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", false, true)
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionCtxKey)
}

func (h *handlers) applyDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	cart, err := h.deps.Checkout.CartFor(ctx, req.Lines)
	if err != nil {
		writeJSONError(c, err)
		return
	}
	sid := sessionID(c)
	state, err := h.deps.Sessions.Get(ctx, sid)
	if err != nil {
		h.logger.Printf("checkout: load session session=%s error=%v", sid, err)
		writeJSONError(c, err)
		return
	}

	res, err := h.deps.Discounts.Apply(ctx, cart, req.Code, state)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Printf("checkout: apply discount session=%s error=%v", sid, err)
		}
		if !state.IsZero() && res.State.IsZero() {
			// the attached code went stale and was dropped
			if err := h.deps.Sessions.Clear(ctx, sid); err != nil {
				h.logger.Printf("checkout: clear session session=%s error=%v", sid, err)
			}
			h.clearCookie(c, discountCookie)
		}
		c.AbortWithStatusJSON(status, pricedResponse{Priced: res.Priced, Discount: res.Applied, Error: msg})
		return
	}
	if err := h.deps.Sessions.Save(ctx, sid, res.State); err != nil {
		h.logger.Printf("checkout: save session session=%s error=%v", sid, err)
		writeJSONError(c, err)
		return
	}
	h.setCookie(c, discountCookie, res.State.Code)
	c.JSON(http.StatusOK, pricedResponse{Priced: res.Priced, Discount: res.Applied})
}

func (h *handlers) removeDiscount(c *gin.Context) {
	sid := sessionID(c)
	if err := h.deps.Sessions.Clear(c.Request.Context(), sid); err != nil {
		h.logger.Printf("checkout: clear session session=%s error=%v", sid, err)
		writeJSONError(c, err)
		return
	}
	h.clearCookie(c, discountCookie)

	var req discountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if len(req.Lines) == 0 {
		c.JSON(http.StatusOK, pricedResponse{})
		return
	}
	cart, err := h.deps.Checkout.CartFor(c.Request.Context(), req.Lines)
	if err != nil {
		writeJSONError(c, err)
		return
	}
	res := h.deps.Discounts.Remove(cart)
	c.JSON(http.StatusOK, pricedResponse{Priced: res.Priced})
}

func (h *handlers) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	sid := sessionID(c)
	state, err := h.deps.Sessions.Get(ctx, sid)
	if err != nil {
		h.logger.Printf("checkout: load session session=%s error=%v", sid, err)
		writeJSONError(c, err)
		return
	}

	res, err := h.deps.Checkout.Checkout(ctx, checkout.Request{
		Lines:      req.Lines,
		Email:      req.Email,
		CustomerID: req.CustomerID,
		Discount:   state,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			h.logger.Printf("checkout: create order session=%s error=%v", sid, err)
		}
		writeJSONError(c, err)
		return
	}

	// The discount now lives on the order snapshot.
	if !state.IsZero() {
		if err := h.deps.Sessions.Clear(ctx, sid); err != nil {
			h.logger.Printf("checkout: clear session session=%s error=%v", sid, err)
		}
		h.clearCookie(c, discountCookie)
	}
	c.JSON(http.StatusCreated, res)
}
