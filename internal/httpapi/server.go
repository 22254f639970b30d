// Package httpapi exposes the bank over REST. Authentication sits in front
// of this service and is assumed to have approved the caller already.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/terminal-bench/bankledger/internal/account"
	"github.com/terminal-bench/bankledger/internal/cache"
	"github.com/terminal-bench/bankledger/internal/card"
	"github.com/terminal-bench/bankledger/internal/history"
	"github.com/terminal-bench/bankledger/internal/ledger"
	"github.com/terminal-bench/bankledger/internal/payment"
)

// Server wires the HTTP handlers to the domain collaborators.
type Server struct {
	accounts account.Store
	cards    card.Registry
	engine   *ledger.Engine
	pipeline *payment.Pipeline
	records  history.Store
	cache    *cache.AccountCache
	events   ledger.Publisher
	log      *zap.Logger
}

// NewServer creates the API server. cache and events may be nil.
func NewServer(
	accounts account.Store,
	cards card.Registry,
	engine *ledger.Engine,
	pipeline *payment.Pipeline,
	records history.Store,
	accountCache *cache.AccountCache,
	events ledger.Publisher,
	log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		accounts: accounts,
		cards:    cards,
		engine:   engine,
		pipeline: pipeline,
		records:  records,
		cache:    accountCache,
		events:   events,
		log:      log,
	}
}

// Router builds the gin router with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.POST("/accounts", s.createAccount)

	users := r.Group("/users/:userId")
	{
		users.GET("/accounts", s.listAccounts)
		users.GET("/accounts/:iban", s.getAccount)

		users.POST("/accounts/:iban/cartes", s.createCard)
		users.GET("/accounts/:iban/cartes", s.listCards)
		users.GET("/accounts/:iban/cartes/:carteId", s.getCard)
		users.PUT("/accounts/:iban/cartes/:carteId", s.updateCard)
		users.DELETE("/accounts/:iban/cartes/:carteId", s.deleteCard)

		users.POST("/accounts/:iban/operations", s.createOperation)
		users.GET("/accounts/:iban/operations", s.listOperations)
		users.GET("/accounts/:iban/operations/:operationId", s.getOperation)

		users.GET("/accounts/:iban/cartes/:carteId/paiements", s.listPaiements)
		users.GET("/accounts/:iban/cartes/:carteId/paiements/:paiementId", s.getPaiement)
	}

	r.POST("/paiements", s.createPaiement)

	return r
}

// rejectionStatus maps domain rejections to HTTP statuses. Every rejection
// is recoverable by the caller; nothing here is process fatal.
func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, card.ErrNotFound),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, payment.ErrCardNotFound),
		errors.Is(err, payment.ErrDestinationNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidRate),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, account.ErrNegativeBalance),
		errors.Is(err, account.ErrDuplicateIBAN),
		errors.Is(err, payment.ErrCardUnusable),
		errors.Is(err, payment.ErrGeoPolicyViolation),
		errors.Is(err, payment.ErrLimitExceeded):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) reject(c *gin.Context, err error) {
	status := rejectionStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
