package httpapi

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/terminal-bench/bankledger/internal/account"
	"github.com/terminal-bench/bankledger/internal/cache"
	"github.com/terminal-bench/bankledger/internal/card"
	"github.com/terminal-bench/bankledger/pkg/messaging"
)

type accountInput struct {
	UserID string          `json:"userId" binding:"required"`
	Pays   string          `json:"pays" binding:"required"`
	Secret string          `json:"secret" binding:"required,min=5,max=10"`
	Solde  decimal.Decimal `json:"solde"`
}

type accountView struct {
	IBAN    string `json:"iban"`
	UserID  string `json:"userId"`
	Pays    string `json:"pays"`
	Solde   string `json:"solde"`
	Created string `json:"createdAt"`
}

func viewAccount(a *account.Account) accountView {
	return accountView{
		IBAN:    a.IBAN,
		UserID:  a.UserID,
		Pays:    a.Country,
		Solde:   a.Balance.String(),
		Created: a.CreatedAt.Format(time.RFC3339),
	}
}

// viewSnapshot renders a cached snapshot with the same shape viewAccount
// produces from a store read.
func viewSnapshot(snap *cache.Snapshot) accountView {
	return accountView{
		IBAN:    snap.IBAN,
		UserID:  snap.UserID,
		Pays:    snap.Country,
		Solde:   snap.Balance,
		Created: snap.CreatedAt,
	}
}

func (s *Server) createAccount(c *gin.Context) {
	var in accountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Secret), bcrypt.DefaultCost)
	if err != nil {
		s.reject(c, err)
		return
	}

	a := &account.Account{
		IBAN:       account.NewIBAN(in.Pays),
		UserID:     in.UserID,
		Country:    in.Pays,
		Balance:    in.Solde,
		SecretHash: hash,
		CreatedAt:  time.Now(),
	}
	if err := s.accounts.Create(c.Request.Context(), a); err != nil {
		s.reject(c, err)
		return
	}

	if s.events != nil {
		event := messaging.AccountCreatedEvent{
			EventID:   messaging.NewEventID(),
			IBAN:      a.IBAN,
			UserID:    a.UserID,
			Country:   a.Country,
			Balance:   a.Balance.String(),
			CreatedAt: a.CreatedAt,
		}
		if err := s.events.Publish(c.Request.Context(), messaging.EventTypeAccountCreated, event); err != nil {
			s.log.Warn("failed to publish account event", zap.String("iban", a.IBAN), zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, viewAccount(a))
}

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.accounts.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.reject(c, err)
		return
	}

	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, viewAccount(a))
	}
	c.JSON(http.StatusOK, out)
}

// ownedAccount resolves the account at :iban and checks it belongs to the
// user in the path. Foreign accounts are indistinguishable from missing ones.
func (s *Server) ownedAccount(c *gin.Context) (*account.Account, bool) {
	a, err := s.accounts.FindByIBAN(c.Request.Context(), c.Param("iban"))
	if err != nil {
		s.reject(c, err)
		return nil, false
	}
	if a.UserID != c.Param("userId") {
		s.reject(c, account.ErrNotFound)
		return nil, false
	}
	return a, true
}

func (s *Server) getAccount(c *gin.Context) {
	iban := c.Param("iban")

	if snap := s.cache.Get(c.Request.Context(), iban); snap != nil && snap.UserID == c.Param("userId") {
		c.JSON(http.StatusOK, viewSnapshot(snap))
		return
	}

	a, ok := s.ownedAccount(c)
	if !ok {
		return
	}

	s.cache.Set(c.Request.Context(), &cache.Snapshot{
		IBAN:      a.IBAN,
		UserID:    a.UserID,
		Country:   a.Country,
		Balance:   a.Balance.String(),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	})
	c.JSON(http.StatusOK, viewAccount(a))
}

type carteInput struct {
	Localisation bool            `json:"localisation"`
	Plafond      decimal.Decimal `json:"plafond" binding:"required"`
	SansContact  bool            `json:"sansContact"`
	Virtual      bool            `json:"virtual"`
	NomUser      string          `json:"nomUser" binding:"required"`
}

type carteView struct {
	ID           string `json:"id"`
	AccountIBAN  string `json:"accountIban"`
	Number       string `json:"number"`
	NomUser      string `json:"nomUser"`
	Plafond      string `json:"plafond"`
	Bloque       bool   `json:"bloque"`
	Deleted      bool   `json:"deleted"`
	Localisation bool   `json:"localisation"`
	SansContact  bool   `json:"sansContact"`
	Virtual      bool   `json:"virtual"`
}

func viewCard(cd *card.Card) carteView {
	return carteView{
		ID:           cd.ID,
		AccountIBAN:  cd.AccountIBAN,
		Number:       cd.Number,
		NomUser:      cd.HolderName,
		Plafond:      cd.Ceiling.String(),
		Bloque:       cd.Blocked,
		Deleted:      cd.Deleted,
		Localisation: cd.LocationRestricted,
		SansContact:  cd.Contactless,
		Virtual:      cd.Virtual,
	}
}

func (s *Server) createCard(c *gin.Context) {
	a, ok := s.ownedAccount(c)
	if !ok {
		return
	}

	var in carteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Plafond.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plafond must not be negative"})
		return
	}

	// Card number and crypto are generated here; the crypto is returned in
	// plain text exactly once and only its hash is stored.
	number := randDigits(16)
	crypto := randDigits(3)
	hash, err := card.HashCrypto(crypto)
	if err != nil {
		s.reject(c, err)
		return
	}

	cd := &card.Card{
		AccountIBAN:        a.IBAN,
		Number:             number,
		CryptoHash:         hash,
		HolderName:         in.NomUser,
		Ceiling:            in.Plafond,
		LocationRestricted: in.Localisation,
		Contactless:        in.SansContact,
		Virtual:            in.Virtual,
		CreatedAt:          time.Now(),
	}
	if err := s.cards.Create(c.Request.Context(), cd); err != nil {
		s.reject(c, err)
		return
	}

	view := viewCard(cd)
	c.JSON(http.StatusCreated, gin.H{"carte": view, "crypto": crypto})
}

func (s *Server) listCards(c *gin.Context) {
	a, ok := s.ownedAccount(c)
	if !ok {
		return
	}

	cards, err := s.cards.ListByAccount(c.Request.Context(), a.IBAN)
	if err != nil {
		s.reject(c, err)
		return
	}

	out := make([]carteView, 0, len(cards))
	for _, cd := range cards {
		out = append(out, viewCard(cd))
	}
	c.JSON(http.StatusOK, out)
}

// ownedCard resolves the card at :carteId and checks it is attached to the
// account at :iban.
func (s *Server) ownedCard(c *gin.Context) (*card.Card, bool) {
	a, ok := s.ownedAccount(c)
	if !ok {
		return nil, false
	}

	cd, err := s.cards.FindByID(c.Request.Context(), c.Param("carteId"))
	if err != nil {
		s.reject(c, err)
		return nil, false
	}
	if cd.AccountIBAN != a.IBAN {
		s.reject(c, card.ErrNotFound)
		return nil, false
	}
	return cd, true
}

func (s *Server) getCard(c *gin.Context) {
	cd, ok := s.ownedCard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewCard(cd))
}

type carteUpdateInput struct {
	Bloque      *bool `json:"bloque"`
	SansContact *bool `json:"sansContact"`
}

func (s *Server) updateCard(c *gin.Context) {
	cd, ok := s.ownedCard(c)
	if !ok {
		return
	}

	var in carteUpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if in.Bloque != nil {
		if err := s.cards.SetBlocked(ctx, cd.ID, *in.Bloque); err != nil {
			s.reject(c, err)
			return
		}
	}
	if in.SansContact != nil {
		if err := s.cards.SetContactless(ctx, cd.ID, *in.SansContact); err != nil {
			s.reject(c, err)
			return
		}
	}

	updated, err := s.cards.FindByID(ctx, cd.ID)
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, viewCard(updated))
}

func (s *Server) deleteCard(c *gin.Context) {
	cd, ok := s.ownedCard(c)
	if !ok {
		return
	}
	if err := s.cards.Delete(c.Request.Context(), cd.ID); err != nil {
		s.reject(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// randDigits returns n random decimal digits.
func randDigits(n int) string {
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(fmt.Sprintf("card entropy unavailable: %v", err))
		}
		out[i] = byte('0' + v.Int64())
	}
	return string(out)
}
