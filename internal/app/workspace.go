package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/engine"
	"riskline/internal/explain"
	"riskline/internal/logging"
	"riskline/internal/repo"
)

// Options override parts of the workspace configuration.
type Options struct {
	Workspace string
	// DBPath replaces the database location inside the workspace.
	DBPath    string
	LogWriter io.Writer
	LogLevel  string
	Seed      *int64
	Trials    int
}

// Workspace is an opened riskline workspace: config, database and engine.
type Workspace struct {
	Dir    string
	Config *config.Config
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Logger *slog.Logger
}

// Open loads riskline.yml when present, bootstraps the database and wires
// the engine against it.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.Seed != nil {
		cfg.Simulation.Seed = opts.Seed
	}
	if opts.Trials > 0 {
		cfg.Simulation.Trials = opts.Trials
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	logger := logging.New(w, level, cfg.Log.Format)

	conn, err := db.Bootstrap(ctx, db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
	if err != nil {
		return nil, err
	}
	r := repo.Repo{DB: conn}
	eng := engine.New(cfg, r)
	eng.Logger = logger
	eng.Explainer = NewExplainer(cfg, os.Getenv)
	return &Workspace{Dir: opts.Workspace, Config: cfg, DB: conn, Repo: r, Engine: eng, Logger: logger}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// NewExplainer builds the configured explanation provider. A missing API key
// yields an explainer that always reports itself unavailable.
func NewExplainer(cfg *config.Config, getenv func(string) string) explain.Explainer {
	if cfg.Explain.Provider != "openai" {
		return explain.Disabled{}
	}
	keyEnv := cfg.Explain.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	key := getenv(keyEnv)
	if key == "" {
		reason := fmt.Sprintf("%s not set", keyEnv)
		return explain.Func(func(context.Context, string) explain.Result { return explain.Unavailable(reason) })
	}
	return explain.NewOpenAI(key, cfg.Explain.BaseURL, cfg.Explain.Model, cfg.ExplainTimeout())
}
