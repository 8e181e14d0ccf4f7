package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (s *Server) ForceNewRound(c *gin.Context) {
	if err := s.engine.ForceNewRound(); err != nil {
		fail(c, err)
		return
	}
	log.Warn("admin: round force-replaced")
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) ForceCrash(c *gin.Context) {
	var req struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := s.engine.ForceCrash(req.Multiplier); err != nil {
		fail(c, err)
		return
	}
	log.WithField("multiplier", req.Multiplier).Warn("admin: round force-crashed")
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) SetBalance(c *gin.Context) {
	var req struct {
		AccountID string  `json:"accountId" binding:"required"`
		Amount    float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	balance, err := s.ledger.SetBalance(req.AccountID, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	log.WithFields(log.Fields{
		"account": req.AccountID,
		"balance": balance,
	}).Warn("admin: balance set")
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) PendingWithdrawals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"requests": s.desk.Pending()})
}

func (s *Server) ProcessWithdrawal(c *gin.Context) {
	var req struct {
		Approve bool `json:"approve"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	wr, err := s.desk.Process(c.Param("id"), req.Approve)
	if err != nil {
		fail(c, err)
		return
	}
	log.WithFields(log.Fields{
		"request": wr.ID,
		"status":  wr.Status,
	}).Info("admin: withdrawal processed")
	c.JSON(http.StatusOK, gin.H{"request": wr})
}

func (s *Server) GetStats(c *gin.Context) {
	users, totalBalance, totalWagered := s.ledger.Aggregate()
	c.JSON(http.StatusOK, gin.H{
		"users":        users,
		"totalBalance": totalBalance,
		"totalWagered": totalWagered,
		"roundsPlayed": s.engine.RoundsPlayed(),
		"wsClients":    s.hub.Clients(),
	})
}
