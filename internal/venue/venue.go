// Package venue assembles a runnable paper venue: storage, matching, API keys
// and the HTTP router.
package venue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/ksred/klear-accumulate/internal/auth"
	"github.com/ksred/klear-accumulate/internal/client"
	"github.com/ksred/klear-accumulate/internal/database"
	"github.com/ksred/klear-accumulate/internal/exchange"
	"github.com/ksred/klear-accumulate/internal/paper"
	"github.com/ksred/klear-accumulate/pkg/middleware"
)

type Options struct {
	DSN          string
	Secret       string
	KeyTTL       time.Duration
	AuthHeader   string
	NodeID       int64
	Exchange     exchange.Config
	Listings     []paper.Listing
	Accounts     []string
	Limits       middleware.Limits
	TickInterval time.Duration
}

// DefaultOptions lists one stock on an in-memory venue
func DefaultOptions() Options {
	ex := exchange.DefaultConfig()
	return Options{
		DSN:        database.MemoryDSN,
		Secret:     "paper-venue-secret",
		AuthHeader: client.DefaultAuthHeader,
		NodeID:     1,
		Exchange:   ex,
		Listings: []paper.Listing{
			{Venue: ex.ID, Symbol: "FOOBAR", Name: "Foreign Owned Occluded Bridge Architecture Resources", Price: 5000},
		},
		Accounts:     []string{"EXB123456"},
		Limits:       middleware.DefaultLimits(),
		TickInterval: time.Second,
	}
}

// Server is a paper venue ready to serve
type Server struct {
	Service   *paper.Service
	Keys      *auth.Service
	Processor *paper.Processor

	db     *gorm.DB
	router *gin.Engine
}

// New opens storage, lists the stocks and registers the accounts
func New(opts Options) (*Server, error) {
	if opts.AuthHeader == "" {
		opts.AuthHeader = client.DefaultAuthHeader
	}

	db, err := database.NewDatabase(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	service := paper.NewService(db, exchange.New(opts.Exchange), node)
	for _, l := range opts.Listings {
		if err := service.List(l); err != nil {
			return nil, err
		}
	}

	keys := auth.NewService(opts.Secret, opts.KeyTTL)
	for _, account := range opts.Accounts {
		keys.Register(account)
	}

	limiter := middleware.NewLimiter(opts.Limits)

	return &Server{
		Service:   service,
		Keys:      keys,
		Processor: paper.NewProcessor(service, limiter, opts.TickInterval),
		db:        db,
		router:    paper.NewRouter(paper.NewGinHandlers(service), keys, limiter, opts.AuthHeader),
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the matching loop until ctx is done
func (s *Server) Start(ctx context.Context) {
	go s.Processor.Start(ctx)
}

// Shutdown stops srv, if any, and closes storage
func (s *Server) Shutdown(ctx context.Context, srv *http.Server) error {
	var errs error
	if srv != nil {
		errs = multierr.Append(errs, srv.Shutdown(ctx))
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return multierr.Append(errs, err)
	}
	return multierr.Append(errs, sqlDB.Close())
}
