package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/creator-ledger/internal/ledger"
	"github.com/creatorhub/creator-ledger/internal/model"
	"github.com/creatorhub/creator-ledger/internal/service"
)

func RegisterHandlers(r *gin.Engine, svcs Services) {
	v1 := r.Group("/v1")
	{
		v1.POST("/accounts", createAccountHandler(svcs.Accounts))
		v1.GET("/accounts/:address/profile", profileHandler(svcs.Accounts))
		v1.GET("/accounts/:id/balance", balanceHandler(svcs.Wallets))
		v1.GET("/accounts/:id/history", historyHandler(svcs.Wallets))
		v1.POST("/accounts/:id/withdrawals", withdrawHandler(svcs.Wallets))
		v1.POST("/accounts/:id/purchases", purchaseHandler(svcs.Wallets))
		v1.POST("/creators/:id/offers", setOfferHandler(svcs.Subscriptions))
		v1.POST("/subscriptions", subscribeHandler(svcs.Subscriptions))
	}
	r.POST("/webhooks/payments", ingestHandler(svcs.Reconciler))
}

// errorStatus maps domain errors onto HTTP codes; everything else is a 400
// so internals never leak as 500s on user mistakes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAccountSuspended):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, service.ErrInsufficientTokenBalance),
		errors.Is(err, service.ErrBelowMinimumWithdrawal):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

type createAccountReq struct {
	Address string `json:"address" binding:"required"`
	Email   string `json:"email" binding:"required"`
	Moniker string `json:"moniker" binding:"required"`
}

func createAccountHandler(svc *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		account, err := svc.CreateAccount(c, req.Address, req.Email, req.Moniker)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func profileHandler(svc *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, wallet, addresses, err := svc.Profile(c, c.Param("address"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"account":           account,
			"balance":           wallet.Balance,
			"deposit_addresses": addresses,
		})
	}
}

func balanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		bal, err := svc.Balance(c, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().Add(-30*24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		txs, err := svc.History(c, id, limit, since)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

type withdrawReq struct {
	Amount      string `json:"amount" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	Chain       string `json:"chain" binding:"required"`
}

func withdrawHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req withdrawReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		txn, err := svc.Withdraw(c, id, amt, req.Destination, model.Chain(req.Chain))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reference": txn.Reference, "status": txn.Status})
	}
}

type purchaseReq struct {
	CreatorID uint64 `json:"creator_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

func purchaseHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req purchaseReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		subscriberID, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		if err := svc.PurchaseContent(c, req.CreatorID, subscriberID, amt); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type setOfferReq struct {
	Type                string `json:"type" binding:"required"`
	Amount              string `json:"amount"`
	TokenName           string `json:"token_name"`
	TokenID             string `json:"token_id"`
	TokenDecimals       int    `json:"token_decimals"`
	MinimumTokenBalance string `json:"minimum_token_balance"`
}

func setOfferHandler(svc *service.SubscriptionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setOfferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		creatorID, _ := strconv.ParseUint(c.Param("id"), 10, 64)

		var err error
		switch model.OfferType(req.Type) {
		case model.OfferFree:
			err = svc.SetFreeOffer(c, creatorID)
		case model.OfferMonetary:
			var amt decimal.Decimal
			if amt, err = decimal.NewFromString(req.Amount); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
				return
			}
			err = svc.SetMonetaryOffer(c, creatorID, amt)
		case model.OfferTokenGated:
			var min decimal.Decimal
			if min, err = decimal.NewFromString(req.MinimumTokenBalance); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid minimum_token_balance"})
				return
			}
			err = svc.SetTokenGatedOffer(c, creatorID, req.TokenName, req.TokenID, req.TokenDecimals, min)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown offer type"})
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type subscribeReq struct {
	CreatorID    uint64 `json:"creator_id" binding:"required"`
	SubscriberID uint64 `json:"subscriber_id" binding:"required"`
}

func subscribeHandler(svc *service.SubscriptionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subscribeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		detail, err := svc.Subscribe(c, req.CreatorID, req.SubscriberID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     detail.Status,
			"expires_at": detail.ExpiresAt,
		})
	}
}

// ingestHandler accepts the provider's raw notification body. The bus
// retries on non-2xx, so persistence failures return 500 and duplicates
// return 200.
func ingestHandler(svc *service.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if err := svc.Ingest(c, body); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	}
}
