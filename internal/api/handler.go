// Package api exposes the ledger over HTTP. Mutating requests are signed by
// the caller's key; the recovered address is the caller.
package api

import (
	"bytes"
	"database/sql"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"wagerledger/internal/custody"
	"wagerledger/internal/ledger"
	"wagerledger/internal/store"
)

const callerKey = "caller"

type Handler struct {
	Ledger *ledger.Ledger
	Vault  *custody.Vault // nil disables the account routes
	DB     *sql.DB        // nil disables the event history route
	Auth   *Verifier      // nil means NewVerifier(DefaultSignatureWindow, Now)
	Now    func() time.Time
}

// NewRouter builds a gin engine with the handler's routes registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}

func (h *Handler) Register(r *gin.Engine) {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Auth == nil {
		h.Auth = NewVerifier(DefaultSignatureWindow, h.Now)
	}
	r.GET("/healthz", h.health)

	group := r.Group("/api")
	group.GET("/markets", h.listMarkets)
	group.GET("/markets/:id", h.getMarket)
	group.GET("/markets/:id/stakes/:address", h.getStakes)
	group.GET("/markets/:id/quote/:address", h.getQuote)
	group.GET("/fee-rate", h.getFeeRate)

	authed := group.Group("", h.requireSignature)
	authed.POST("/markets", h.createMarket)
	authed.POST("/markets/:id/bets", h.placeBet)
	authed.POST("/markets/:id/resolve", h.resolve)
	authed.POST("/markets/:id/claim", h.claim)
	authed.PUT("/fee-rate", h.updateFeeRate)
	authed.POST("/fees/withdraw", h.withdrawFees)

	if h.DB != nil {
		group.GET("/markets/:id/events", h.marketEvents)
	}
	if h.Vault != nil {
		group.GET("/accounts/:address", h.getAccount)
		authed.POST("/accounts/:address/deposit", h.deposit)
	}
}

// requireSignature authenticates the request and stores the signer as the
// caller. The body is restored for the handler.
func (h *Handler) requireSignature(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			fail(c, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	who, err := h.Auth.Verify(c.Request, body)
	if err != nil {
		fail(c, authStatus(err), err.Error())
		return
	}
	c.Set(callerKey, who)
	c.Next()
}

func caller(c *gin.Context) common.Address {
	return c.MustGet(callerKey).(common.Address)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "markets": h.Ledger.MarketCount()})
}

func (h *Handler) listMarkets(c *gin.Context) {
	now := h.Now()
	summaries := h.Ledger.Markets()
	out := make([]marketView, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, newMarketView(s, now))
	}
	ok(c, out)
}

func (h *Handler) getMarket(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	s, err := h.Ledger.Market(id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, newMarketView(s, h.Now()))
}

func (h *Handler) getStakes(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	who, good := pathAddress(c)
	if !good {
		return
	}
	with, against, err := h.Ledger.Stakes(id, who)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"with": with.Dec(), "against": against.Dec()})
}

func (h *Handler) getQuote(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	who, good := pathAddress(c)
	if !good {
		return
	}
	payout, err := h.Ledger.Quote(id, who)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"payout": payout.Dec()})
}

func (h *Handler) createMarket(c *gin.Context) {
	var req createMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := h.Ledger.CreateMarket(c.Request.Context(), caller(c), req.Title, req.DurationSeconds, req.Confidence)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

func (h *Handler) placeBet(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	side, err := ledger.ParseSide(string(req.Side))
	if err != nil {
		failErr(c, err)
		return
	}
	amount, good := parseAmount(c, req.Amount)
	if !good {
		return
	}
	if err := h.Ledger.PlaceBet(c.Request.Context(), caller(c), id, side, amount); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"market": id, "side": side.String(), "amount": amount.Dec()})
}

func (h *Handler) resolve(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	outcome, err := ledger.ParseSide(string(req.Outcome))
	if err != nil {
		failErr(c, err)
		return
	}
	if err := h.Ledger.ResolveMarket(c.Request.Context(), caller(c), id, outcome); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"market": id, "outcome": outcome.String()})
}

func (h *Handler) claim(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	paid, err := h.Ledger.Claim(c.Request.Context(), caller(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"market": id, "amount": paid.Dec()})
}

func (h *Handler) getFeeRate(c *gin.Context) {
	ok(c, gin.H{"bps": h.Ledger.FeeRate(), "max_bps": h.Ledger.MaxFeeRate()})
}

func (h *Handler) updateFeeRate(c *gin.Context) {
	var req feeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BPS == nil {
		fail(c, http.StatusBadRequest, "bps required")
		return
	}
	if err := h.Ledger.UpdateFeeRate(c.Request.Context(), caller(c), *req.BPS); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"bps": *req.BPS})
}

func (h *Handler) withdrawFees(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.To) {
		fail(c, http.StatusBadRequest, "to must be a hex address")
		return
	}
	amount, err := h.Ledger.WithdrawFees(c.Request.Context(), caller(c), common.HexToAddress(req.To))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"amount": amount.Dec()})
}

func (h *Handler) marketEvents(c *gin.Context) {
	id, good := marketID(c)
	if !good {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		fail(c, http.StatusBadRequest, "invalid limit")
		return
	}
	if _, err := h.Ledger.Market(id); err != nil {
		failErr(c, err)
		return
	}
	events, err := store.Events(c.Request.Context(), h.DB, id, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, events)
}

func (h *Handler) getAccount(c *gin.Context) {
	who, good := pathAddress(c)
	if !good {
		return
	}
	balance, err := h.Vault.Balance(c.Request.Context(), who)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"address": who.Hex(), "balance": balance.Dec()})
}

func (h *Handler) deposit(c *gin.Context) {
	if caller(c) != h.Ledger.Authority() {
		failErr(c, ledger.ErrUnauthorized)
		return
	}
	who, good := pathAddress(c)
	if !good {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid body")
		return
	}
	amount, good := parseAmount(c, req.Amount)
	if !good {
		return
	}
	if err := h.Vault.Deposit(c.Request.Context(), who, amount); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := h.Vault.Balance(c.Request.Context(), who)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"address": who.Hex(), "balance": balance.Dec()})
}

func marketID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid market id")
		return 0, false
	}
	return id, true
}

func pathAddress(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		fail(c, http.StatusBadRequest, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAmount(c *gin.Context, raw string) (*uint256.Int, bool) {
	amount, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		fail(c, http.StatusBadRequest, "amount must be a decimal integer")
		return nil, false
	}
	return amount, true
}
