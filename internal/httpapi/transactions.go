package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/bankledger/internal/history"
	"github.com/terminal-bench/bankledger/internal/ledger"
	"github.com/terminal-bench/bankledger/internal/payment"
	"github.com/terminal-bench/bankledger/pkg/money"
)

type operationInput struct {
	Montant             decimal.Decimal `json:"montant" binding:"required"`
	Taux                decimal.Decimal `json:"taux"`
	Libelle             string          `json:"libelle"`
	Categ               string          `json:"categ"`
	CompteCrediteurIban string          `json:"compteCrediteurIban" binding:"required"`
}

type operationView struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Libelle      string `json:"libelle"`
	Montant      string `json:"montant"`
	Taux         string `json:"taux"`
	DebtorIBAN   string `json:"compteDebiteurIban"`
	CreditorIBAN string `json:"compteCrediteurIban"`
	Categ        string `json:"categ"`
}

func viewOperation(op *history.Operation) operationView {
	return operationView{
		ID:           op.ID,
		Timestamp:    op.Timestamp.Format(time.RFC3339),
		Libelle:      op.Label,
		Montant:      op.Amount.String(),
		Taux:         op.Rate.String(),
		DebtorIBAN:   op.DebtorIBAN,
		CreditorIBAN: op.CreditorIBAN,
		Categ:        op.Category,
	}
}

func (s *Server) createOperation(c *gin.Context) {
	a, ok := s.ownedAccount(c)
	if !ok {
		return
	}

	var in operationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Taux.IsZero() {
		in.Taux = money.RateIdentity
	}

	op, settlement, err := s.engine.Transfer(c.Request.Context(), ledger.TransferInput{
		DebtorIBAN:   a.IBAN,
		CreditorIBAN: in.CompteCrediteurIban,
		Amount:       in.Montant,
		Rate:         in.Taux,
		Label:        in.Libelle,
		Category:     in.Categ,
	})
	if err != nil {
		s.reject(c, err)
		return
	}

	s.cache.Invalidate(c.Request.Context(), settlement.DebtorIBAN, settlement.CreditorIBAN)

	c.JSON(http.StatusCreated, gin.H{
		"operation":     viewOperation(op),
		"soldeDebiteur": settlement.DebtorBalance.String(),
	})
}

func (s *Server) listOperations(c *gin.Context) {
	a, ok := s.ownedAccount(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		ops []*history.Operation
		err error
	)
	if categ, present := c.GetQuery("categorie"); present {
		ops, err = s.records.OperationsByAccountAndCategory(ctx, a.IBAN, categ)
	} else {
		ops, err = s.records.OperationsByAccount(ctx, a.IBAN)
	}
	if err != nil {
		s.reject(c, err)
		return
	}

	out := make([]operationView, 0, len(ops))
	for _, op := range ops {
		out = append(out, viewOperation(op))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getOperation(c *gin.Context) {
	a, ok := s.ownedAccount(c)
	if !ok {
		return
	}

	op, err := s.records.OperationByID(c.Request.Context(), c.Param("operationId"), a.IBAN)
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOperation(op))
}

type paiementInput struct {
	NumCarte      string          `json:"numCarte" binding:"required"`
	CryptoCarte   string          `json:"cryptoCarte" binding:"required"`
	NomUser       string          `json:"nomUser" binding:"required"`
	Montant       decimal.Decimal `json:"montant" binding:"required"`
	Taux          decimal.Decimal `json:"taux"`
	Pays          string          `json:"pays" binding:"required"`
	IbanCrediteur string          `json:"ibanCrediteur" binding:"required"`
	Label         string          `json:"label"`
	Categ         string          `json:"categ"`
}

type paiementView struct {
	ID           string `json:"id"`
	CardID       string `json:"carteId"`
	Montant      string `json:"montant"`
	Pays         string `json:"pays"`
	CreditorIBAN string `json:"ibanCrediteur"`
	Taux         string `json:"taux"`
	Timestamp    string `json:"timestamp"`
	Label        string `json:"label"`
	Categ        string `json:"categ"`
}

func viewPaiement(p *history.Paiement) paiementView {
	return paiementView{
		ID:           p.ID,
		CardID:       p.CardID,
		Montant:      p.Amount.String(),
		Pays:         p.Country,
		CreditorIBAN: p.CreditorIBAN,
		Taux:         p.Rate.String(),
		Timestamp:    p.Timestamp.Format(time.RFC3339),
		Label:        p.Label,
		Categ:        p.Category,
	}
}

func (s *Server) createPaiement(c *gin.Context) {
	var in paiementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Taux.IsZero() {
		in.Taux = money.RateIdentity
	}

	p, err := s.pipeline.Authorize(c.Request.Context(), payment.Input{
		CardNumber:   in.NumCarte,
		CardCrypto:   in.CryptoCarte,
		HolderName:   in.NomUser,
		Amount:       in.Montant,
		Country:      in.Pays,
		CreditorIBAN: in.IbanCrediteur,
		Rate:         in.Taux,
		Label:        in.Label,
		Category:     in.Categ,
	})
	if err != nil {
		s.reject(c, err)
		return
	}

	s.cache.Invalidate(c.Request.Context(), p.DebtorIBAN, p.CreditorIBAN)

	c.JSON(http.StatusCreated, viewPaiement(p))
}

func (s *Server) listPaiements(c *gin.Context) {
	cd, ok := s.ownedCard(c)
	if !ok {
		return
	}

	paiements, err := s.records.PaiementsByCard(c.Request.Context(), cd.ID)
	if err != nil {
		s.reject(c, err)
		return
	}

	out := make([]paiementView, 0, len(paiements))
	for _, p := range paiements {
		out = append(out, viewPaiement(p))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getPaiement(c *gin.Context) {
	cd, ok := s.ownedCard(c)
	if !ok {
		return
	}

	p, err := s.records.PaiementByID(c.Request.Context(), c.Param("paiementId"), cd.ID)
	if err != nil {
		s.reject(c, err)
		return
	}
	c.JSON(http.StatusOK, viewPaiement(p))
}
