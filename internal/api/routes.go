package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/shop"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGetItems(c *gin.Context) {
	items := s.catalog.Items()
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) handleGetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	entries, err := s.ledger.Leaderboard(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (s *Server) handleGetBalance(c *gin.Context) {
	playerID := c.Param("player_id")

	balance, err := s.ledger.GetBalance(playerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"player_id": playerID, "balance": balance})
}

func (s *Server) handleGetHistory(c *gin.Context) {
	playerID := c.Param("player_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	history, err := s.ledger.History(playerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"player_id": playerID, "transactions": history})
}

func (s *Server) handleGetRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := s.ledger.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) handleGetPending(c *gin.Context) {
	pending, err := s.queue.ListPending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending deliveries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

func (s *Server) handleRedeliver(c *gin.Context) {
	delivered := s.sweeper.RedeliverAll()
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

type purchaseRequest struct {
	PlayerID string   `json:"player_id" binding:"required"`
	ItemName string   `json:"item_name" binding:"required"`
	Map      string   `json:"map" binding:"required"`
	Quantity int      `json:"quantity"`
	Roles    []string `json:"roles"`
}

func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.purchases.Purchase(shop.Request{
		PlayerID: req.PlayerID,
		ItemName: req.ItemName,
		Map:      req.Map,
		Quantity: req.Quantity,
		Roles:    req.Roles,
	})

	status := http.StatusOK
	if result.Outcome == shop.OutcomeRejected {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

type creditRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Points   int    `json:"points" binding:"required"`
	Source   string `json:"source"`
	Status   string `json:"status"`
}

// handleCredit appends an admin credit. Status defaults to Success;
// operators compensating a failed or manually retried delivery can tag
// the entry accordingly.
func (s *Server) handleCredit(c *gin.Context) {
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = "admin"
	}
	if req.Status == "" {
		req.Status = db.StatusSuccess
	}
	if !db.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	if err := s.ledger.Credit(req.PlayerID, req.Points, req.Status, req.Source); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	balance, _ := s.ledger.GetBalance(req.PlayerID)
	s.eventBus.Publish(events.Event{
		Type:   events.EventPointsCredited,
		Source: "api",
		Payload: events.LedgerPayload{
			PlayerID: req.PlayerID,
			Points:   req.Points,
			Status:   req.Status,
			Source:   req.Source,
			Balance:  balance,
		},
	})
	c.JSON(http.StatusOK, gin.H{"player_id": req.PlayerID, "balance": balance})
}

type transferRequest struct {
	FromID string `json:"from_id" binding:"required"`
	ToID   string `json:"to_id" binding:"required"`
	Points int    `json:"points" binding:"required"`
}

func (s *Server) handleTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if max := s.cfg.GetShopData().MaxTransferPoints; max > 0 && req.Points > max {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transfer exceeds maximum"})
		return
	}

	if err := s.ledger.Transfer(req.FromID, req.ToID, req.Points); err != nil {
		status := http.StatusBadRequest
		if err == db.ErrInsufficientFunds {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	fromBalance, _ := s.ledger.GetBalance(req.FromID)
	c.JSON(http.StatusOK, gin.H{"from_id": req.FromID, "balance": fromBalance})
}

type linkRequest struct {
	DiscordID string `json:"discord_id" binding:"required"`
	EOSID     string `json:"eos_id" binding:"required"`
}

func (s *Server) handleLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.players.Link(req.DiscordID, req.EOSID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"discord_id": req.DiscordID, "eos_id": req.EOSID})
}

func (s *Server) handleTestServer(c *gin.Context) {
	server, ok := s.cfg.FindServer(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown server"})
		return
	}
	response, err := s.executor.Execute(server.Addr(), server.Password, "listplayers")
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"server": server.Name, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": server.Name, "response": response})
}

func (s *Server) handleGetCPUUsage(c *gin.Context) {
	usage, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read CPU usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu_percent": usage})
}

func (s *Server) handleGetMemoryUsage(c *gin.Context) {
	usage, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read memory usage"})
		return
	}
	c.JSON(http.StatusOK, usage)
}

type tip4servPayload struct {
	EOSID    string `json:"eos_id"`
	PlayerID string `json:"player_id"`
	Points   int    `json:"points"`
}

// handleTip4ServWebhook credits points purchased through Tip4Serv. The
// request is authenticated by an HMAC-SHA256 of the raw body under the
// shared secret, carried in the X-Tip4Serv-Signature header.
func (s *Server) handleTip4ServWebhook(c *gin.Context) {
	t4sCfg := s.cfg.GetApplicationData().Tip4Serv
	if !t4sCfg.Enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if t4sCfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(t4sCfg.Secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		signature := c.GetHeader("X-Tip4Serv-Signature")
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("Tip4Serv webhook signature mismatch")
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	var payload tip4servPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	// The ledger is keyed by EOS id. Payloads naming a Discord account
	// instead go through the identity link.
	playerID := payload.EOSID
	if playerID == "" && payload.PlayerID != "" {
		playerID, err = s.players.Resolve(payload.PlayerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown player"})
			return
		}
	}
	if playerID == "" || payload.Points <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data"})
		return
	}

	if err := s.ledger.Credit(playerID, payload.Points, db.StatusSuccess, "tip4serv"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to credit points"})
		return
	}

	balance, _ := s.ledger.GetBalance(playerID)
	log.Info().Str("player", playerID).Int("points", payload.Points).Msg("Tip4Serv credit applied")
	s.eventBus.Publish(events.Event{
		Type:   events.EventPointsCredited,
		Source: "tip4serv",
		Payload: events.LedgerPayload{
			PlayerID: playerID,
			Points:   payload.Points,
			Status:   db.StatusSuccess,
			Source:   "tip4serv",
			Balance:  balance,
		},
	})

	c.JSON(http.StatusOK, gin.H{"status": "ok", "balance": balance})
}
