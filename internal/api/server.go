// Package api exposes a read-only status endpoint over the node worker's snapshot state.
// It is ops tooling, not part of the gossip wire protocol: no endpoint can mutate node state.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weavecore/arnode/internal/config"
	"github.com/weavecore/arnode/internal/node"
)

// StatusSource is the subset of *node.Worker the API needs; defined here so tests can supply
// a fake without constructing a full Worker.
type StatusSource interface {
	Snapshot() *node.State
}

// Server is the read-only status/health HTTP server.
type Server struct {
	cfg    *config.APIConfig
	status StatusSource
	router *gin.Engine
	server *http.Server
}

// StatusResponse is the /status payload: the fields of node.State an operator cares about.
type StatusResponse struct {
	Joined      bool    `json:"joined"`
	Height      uint64  `json:"height"`
	Diff        uint64  `json:"diff"`
	RewardPool  uint64  `json:"reward_pool"`
	WeaveSize   uint64  `json:"weave_size"`
	Automine    bool    `json:"automine"`
	Peers       int     `json:"peers"`
	PendingTxs  int     `json:"pending_txs"`
	WaitingTxs  int     `json:"waiting_txs"`
	PotentialTxs int    `json:"potential_txs"`
	Now         int64   `json:"now"`
}

// NewServer builds the API server; gin runs in release mode since this is an ops endpoint,
// not a developer-facing one.
func NewServer(cfg *config.APIConfig, status StatusSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, status: status, router: router}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.cfg.Bind, Handler: s.router}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// the listener error is discarded: nothing logs it, and Start has already returned
			_ = err
		}
	}()
	return nil
}

// Stop closes the HTTP listener immediately.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.status.Snapshot()

	c.JSON(200, StatusResponse{
		Joined:       snap.Joined(),
		Height:       snap.Height,
		Diff:         snap.Diff,
		RewardPool:   snap.RewardPool,
		WeaveSize:    snap.WeaveSize,
		Automine:     snap.Automine,
		Peers:        len(snap.Gossip.Peers),
		PendingTxs:   len(snap.Pools.Txs),
		WaitingTxs:   len(snap.Pools.WaitingTxs),
		PotentialTxs: len(snap.Pools.PotentialTxs),
		Now:          time.Now().Unix(),
	})
}
