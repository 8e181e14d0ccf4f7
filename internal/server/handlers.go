package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"tonrush/internal/engine"
	"tonrush/internal/gift"
	"tonrush/internal/ledger"
	"tonrush/internal/withdrawal"
)

// statusFor maps the domain errors onto HTTP statuses. Anything
// unmapped is a 500 and gets logged by the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, withdrawal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateBet),
		errors.Is(err, withdrawal.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrBettingClosed),
		errors.Is(err, engine.ErrInvalidBetAmount),
		errors.Is(err, engine.ErrGameNotRunning),
		errors.Is(err, engine.ErrNoActiveBet),
		errors.Is(err, engine.ErrRoundNotRunning),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, withdrawal.ErrBelowMinimum),
		errors.Is(err, withdrawal.ErrInvalidAddress),
		errors.Is(err, gift.ErrNoPendingRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

// Authenticate issues a session token, creating the account on first
// contact.
func (s *Server) Authenticate(c *gin.Context) {
	var req struct {
		ID   string `json:"id" binding:"required"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	acc := s.ledger.GetOrCreate(req.ID, req.Name)
	token, err := s.auth.GenerateToken(acc.ID, false)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "account": acc})
}

// AdminLogin exchanges the admin password for an admin token.
func (s *Server) AdminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if s.cfg.AdminPasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.auth.GenerateToken("admin", true)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) GetAccount(c *gin.Context) {
	acc, err := s.ledger.Account(c.GetString("accountId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Server) GetTransactions(c *gin.Context) {
	acc, err := s.ledger.Account(c.GetString("accountId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": acc.Transactions})
}

func (s *Server) GetBetHistory(c *gin.Context) {
	acc, err := s.ledger.Account(c.GetString("accountId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bets": acc.BetHistory})
}

func (s *Server) GetCurrentRound(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) GetRoundHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, gin.H{"rounds": s.engine.RoundHistory(limit)})
}

func (s *Server) PlaceBet(c *gin.Context) {
	var req struct {
		Amount      float64  `json:"amount" binding:"required,gt=0"`
		AutoCashout *float64 `json:"autoCashout" binding:"omitempty,gt=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	accountID := c.GetString("accountId")
	acc, err := s.ledger.Account(accountID)
	if err != nil {
		fail(c, err)
		return
	}

	bet, err := s.engine.PlaceBet(accountID, acc.Name, req.Amount, req.AutoCashout)
	if err != nil {
		fail(c, err)
		return
	}

	balance, _ := s.ledger.Balance(accountID)
	c.JSON(http.StatusOK, gin.H{"bet": bet, "balance": balance})
}

func (s *Server) CashOut(c *gin.Context) {
	accountID := c.GetString("accountId")

	bet, err := s.engine.CashOut(accountID)
	if err != nil {
		fail(c, err)
		return
	}

	balance, _ := s.ledger.Balance(accountID)
	c.JSON(http.StatusOK, gin.H{"bet": bet, "balance": balance})
}

func (s *Server) RequestWithdrawal(c *gin.Context) {
	var req struct {
		Amount  float64 `json:"amount" binding:"required,gt=0"`
		Address string  `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	wr, err := s.desk.Request(c.GetString("accountId"), req.Amount, req.Address)
	if err != nil {
		fail(c, err)
		return
	}

	balance, _ := s.ledger.Balance(c.GetString("accountId"))
	c.JSON(http.StatusOK, gin.H{"request": wr, "balance": balance})
}

func (s *Server) GetWithdrawals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"requests": s.desk.ForAccount(c.GetString("accountId"))})
}

func (s *Server) CreateGiftRequest(c *gin.Context) {
	req, err := s.verifier.CreateRequest(c.GetString("accountId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request": req,
		"memo":    req.ID,
		"wallet":  s.cfg.DepositWallet,
	})
}

func (s *Server) VerifyGiftDeposit(c *gin.Context) {
	req, credited, err := s.verifier.Verify(c.Request.Context(), c.GetString("accountId"))
	if err != nil {
		fail(c, err)
		return
	}

	balance, _ := s.ledger.Balance(c.GetString("accountId"))
	c.JSON(http.StatusOK, gin.H{"request": req, "credited": credited, "balance": balance})
}

func (s *Server) GetGiftRequest(c *gin.Context) {
	req, ok := s.verifier.Request(c.GetString("accountId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no gift deposit request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}
