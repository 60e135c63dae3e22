package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"

	"github.com/stagehand-dev/stagehand/config"
	"github.com/stagehand-dev/stagehand/db"
	forge "github.com/stagehand-dev/stagehand/forge/github"
	"github.com/stagehand-dev/stagehand/lock"
	"github.com/stagehand-dev/stagehand/log"
	"github.com/stagehand-dev/stagehand/notifier"
	"github.com/stagehand-dev/stagehand/orchestrator"
	"github.com/stagehand-dev/stagehand/queue"
)

type Server struct {
	cfg    *config.Config
	db     *db.DB
	n      *notifier.Notifier
	jq     *queue.Queue
	orch   *orchestrator.Orchestrator
	mapper forge.Mapper
	l      *slog.Logger

	// jobs outlive their webhook request; they run under this context
	ctx context.Context
}

func Command() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "run the stagehand webhook server",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return Run(ctx)
		},
	}
}

func Run(ctx context.Context) error {
	logger := log.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	d, err := db.Make(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to setup db: %w", err)
	}

	n := notifier.New()

	platform := forge.New(ctx, cfg.Repo.Owner, cfg.Repo.Name, cfg.Repo.Token)
	locks := lock.NewManager(platform, cfg.Deploy.LockPrefix)

	orch := orchestrator.New(platform, locks, orchestrator.Options{
		ConfigDir:    cfg.Deploy.ConfigDir,
		WorkflowPath: cfg.Deploy.WorkflowPath,
	}, logger)
	orch.Observe(func(t orchestrator.Transition) {
		if err := d.RecordTransition(t); err != nil {
			logger.Error("failed to journal transition", "error", err)
			return
		}
		n.NotifyAll()
	})

	jq := queue.New(cfg.Server.QueueSize, cfg.Server.Workers)
	jq.Start()
	defer jq.Stop()

	s := &Server{
		cfg:  cfg,
		db:   d,
		n:    n,
		jq:   jq,
		orch: orch,
		mapper: forge.Mapper{
			LockBranchPrefix: strings.TrimPrefix(cfg.Deploy.LockPrefix, "refs/heads/"),
		},
		l:   logger,
		ctx: ctx,
	}

	logger.Info("starting stagehand server",
		"address", cfg.Server.ListenAddr,
		"repo", cfg.Repo.Owner+"/"+cfg.Repo.Name)
	return http.ListenAndServe(cfg.Server.ListenAddr, s.Router())
}

func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.RequestLogger)

	mux.Post("/webhooks", s.Webhook)
	mux.HandleFunc("/events", s.Events)
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}
