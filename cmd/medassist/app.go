package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/config"
	"github.com/medassist/medassist/internal/domain/chat"
	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/imaging"
	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/domain/sidebar"
	"github.com/medassist/medassist/internal/domain/workflow"
	"github.com/medassist/medassist/internal/platform/backend"
	"github.com/medassist/medassist/internal/platform/db"
	"github.com/medassist/medassist/internal/platform/journal"
)

// app holds every component built from one Config. serve and the
// interactive commands share it.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	client   *backend.Client
	convs    *conversation.BackendHTTP
	patients *patient.Service
	journal  journal.Recorder

	machine *workflow.Machine
	chat    *chat.Service
	imaging *imaging.Service
	docList *sidebar.Controller
	medList *sidebar.Controller
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	client, err := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithMaxResponseSize(cfg.BackendMaxResponse),
		backend.WithLogger(logger.With().Str("component", "backend").Logger()))
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, client: client}

	switch {
	case cfg.JournalEnabled():
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect journal database: %w", err)
		}
		logger.Info().Msg("connected to journal database")
		a.pool = pool
		a.journal = journal.NewPGRecorder(pool)
	case cfg.IsDev():
		a.journal = journal.NewMemoryRecorder()
	default:
		a.journal = journal.Nop{}
	}

	a.convs = conversation.NewBackendHTTP(client)
	a.patients = patient.NewService(patient.NewRepoHTTP(client), logger)

	docStore := conversation.NewStore(conversation.KindDocument, a.convs, logger)
	medStore := conversation.NewStore(conversation.KindMedical, a.convs, logger)

	a.machine = workflow.NewMachine(docStore, a.patients, workflow.NewAnalyzerHTTP(client), logger,
		workflow.WithJournal(a.journal),
		workflow.OnCreated(func(id string) { a.docList.Tracked(id) }),
		workflow.OnDetached(func() { a.docList.Tracked("") }))
	a.chat = chat.NewService(medStore, chat.NewResponderHTTP(client), logger)
	a.imaging = imaging.NewService(client, logger)

	a.docList = sidebar.NewController(docStore, a.machine, cfg.PollInterval, cfg.SettleDelay, logger)
	a.medList = sidebar.NewController(medStore, a.chat, cfg.PollInterval, cfg.SettleDelay, logger)
	a.chat.OnCreated(a.medList.Tracked)
	a.chat.OnDetached(func() { a.medList.Tracked("") })

	return a, nil
}

func (a *app) close() {
	a.docList.Stop()
	a.medList.Stop()
	if a.pool != nil {
		a.pool.Close()
	}
}
