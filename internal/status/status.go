// Package status serves a small read-only HTTP surface for operators. It
// never mutates trading state.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/bitsobot/internal/domain"
	"github.com/makerbot/bitsobot/internal/exchange"
	"github.com/makerbot/bitsobot/internal/ledger"
)

var log = logrus.WithField("component", "status")

type Server struct {
	engine   *gin.Engine
	ledger   *ledger.Store
	exchange exchange.Client
	srv      *http.Server
}

func NewServer(store *ledger.Store, client exchange.Client) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		ledger:   store,
		exchange: client,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/api/orders/active", s.handleActiveOrders)
	engine.GET("/api/balances", s.handleBalances)
	return s
}

// Start serves on addr in a background goroutine.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("status server listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("status server failed: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type orderView struct {
	OID         string    `json:"oid"`
	Book        string    `json:"book"`
	Side        string    `json:"side"`
	Price       string    `json:"price"`
	Amount      string    `json:"amount"`
	TargetPrice string    `json:"target_price,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleActiveOrders(c *gin.Context) {
	orders, err := s.ledger.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toView(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": views})
}

func toView(o domain.Order) orderView {
	v := orderView{
		OID:       o.OID,
		Book:      o.Book,
		Side:      string(o.Side),
		Price:     o.Price.String(),
		Amount:    o.Amount.String(),
		CreatedAt: o.CreatedAt,
	}
	if o.TargetPrice != nil {
		v.TargetPrice = o.TargetPrice.String()
	}
	return v
}

func (s *Server) handleBalances(c *gin.Context) {
	balances, err := s.exchange.Balances(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	out := make(map[string]string, len(balances))
	for currency, amount := range balances {
		out[currency] = amount.String()
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}
