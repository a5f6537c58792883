package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/adamtc007/ob-poc-sub006/internal/config"
	"github.com/adamtc007/ob-poc-sub006/internal/entityresolve"
	"github.com/adamtc007/ob-poc-sub006/internal/gatewayclient"
	"github.com/adamtc007/ob-poc-sub006/internal/nlgen"
	"github.com/adamtc007/ob-poc-sub006/internal/runbook"
	"github.com/adamtc007/ob-poc-sub006/internal/runbookstore"
	"github.com/adamtc007/ob-poc-sub006/internal/session"
	"github.com/adamtc007/ob-poc-sub006/internal/verbexec"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// runtime bundles every component a CLI subcommand needs, built once per
// invocation the way the teacher's main.go builds one *datastore.DataStore
// per command rather than holding global state.
type runtime struct {
	db       *sqlx.DB
	registry *verbregistry.Registry
	orch     *session.Orchestrator
}

func connectDB() (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// openRuntime loads the verb registry from verbsDir and wires every
// downstream component (runbook store, entity resolver, executor,
// nlgen, session orchestrator) against a live database connection.
func openRuntime(verbsDir string) (*runtime, error) {
	reg, err := verbregistry.LoadDir(verbsDir)
	if err != nil {
		return nil, fmt.Errorf("loading verb definitions: %w", err)
	}

	db, err := connectDB()
	if err != nil {
		return nil, err
	}

	var resolver runbook.Resolver
	if addr := config.GatewayAddr(); addr != "" {
		resolver = runbook.NewGatewayResolver(gatewayclient.New(addr))
	} else {
		resolver = deferredResolver{}
	}

	handler := verbexec.New(db, reg)
	rbStore := runbookstore.New(db)
	rbService := runbook.New(rbStore, resolver, reg, handler)

	var gen *nlgen.Generator
	if config.AgentBackend() == "gemini" {
		gen, err = nlgen.New(context.Background(), config.APIKey())
		if err != nil {
			return nil, fmt.Errorf("initializing nlgen: %w", err)
		}
	}

	orch := session.NewOrchestrator(reg, rbService, nil, gen)

	return &runtime{db: db, registry: reg, orch: orch}, nil
}

// deferredResolver answers every lookup as Deferred when no EntityGateway
// address is configured, matching the resolver's own Deferred outcome
// rather than failing staging outright (spec §4.7).
type deferredResolver struct{}

func (deferredResolver) Resolve(_ context.Context, _, _, rawValue string, _ []string) (*entityresolve.Result, error) {
	return &entityresolve.Result{Outcome: entityresolve.Deferred, FailureReason: "no GATEWAY_ADDR configured"}, nil
}
