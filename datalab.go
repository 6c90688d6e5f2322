// Package datalab provides a high-level façade over the conversation
// manager, the worker agents, and their shared services. Most applications
// interact with this package by:
//  1. Creating a DataLab via New() (optionally overriding defaults)
//  2. Creating or resuming conversations
//  3. Processing turns with ProcessTurn
//
// The façade wires settings, model construction, the kernel-backed agents,
// the tool orchestrator, and the broadcast hub. All defaults are safe for
// local development; production deployments typically supply a settings file
// path, a chat directory, and a structured logger.
package datalab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/oss-labs/datalab/agent"
	"github.com/oss-labs/datalab/broadcast"
	"github.com/oss-labs/datalab/chat"
	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/model"
	"github.com/oss-labs/datalab/model/anthropic"
	"github.com/oss-labs/datalab/model/openai"
	"github.com/oss-labs/datalab/notebook"
	"github.com/oss-labs/datalab/orchestrator"
	"github.com/oss-labs/datalab/settings"
)

// groqBaseURL is the OpenAI-compatible endpoint of the Groq platform.
const groqBaseURL = "https://api.groq.com/openai/v1"

// Options configures the DataLab instance.
type Options struct {
	// SettingsPath is the JSON settings file location. Defaults to
	// settings.json under DataDir.
	SettingsPath string

	// DataDir is the root folder for conversations, notebooks, and run
	// artifacts. Defaults to ./data.
	DataDir string

	// SearchBaseURL points at a SearXNG instance. Empty disables web search.
	SearchBaseURL string

	// Retriever backs the knowledge retrieval agent. Nil disables it.
	Retriever agent.Retriever

	// MaxSteps bounds the analysis directive loop. Zero keeps the default.
	MaxSteps int

	// ExecTimeout bounds each kernel cell execution. Zero keeps the default.
	ExecTimeout time.Duration

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// DataLab is the high-level façade aggregating the conversation manager and
// its supporting services.
type DataLab struct {
	opts     Options
	settings *settings.Service
	manager  *chat.Manager
	hub      *broadcast.Hub
	logger   logging.Logger
}

// New creates a new DataLab instance with optional overrides.
func New(optFns ...func(o *Options)) (*DataLab, error) {
	opts := Options{
		DataDir: "data",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SettingsPath == "" {
		opts.SettingsPath = filepath.Join(opts.DataDir, "settings.json")
	}

	chatDir := filepath.Join(opts.DataDir, "chats")
	if err := os.MkdirAll(chatDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create chat directory: %w", err)
	}

	sv, err := settings.New(opts.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load settings: %w", err)
	}

	logger := opts.Logger
	models := newModelFactory(sv)
	sessions := kernel.NewSessionFactory(logger)
	hub := broadcast.NewHub(logger)

	analysisOpts := []agent.AnalysisOption{
		agent.WithRunObserver(func(state agent.RunState) {
			hub.Publish(broadcast.Event{
				Topic:   "chat:" + state.ParentID,
				Type:    "run_checkpoint",
				Payload: state,
			})
		}),
	}
	if opts.MaxSteps > 0 {
		analysisOpts = append(analysisOpts, agent.WithMaxSteps(opts.MaxSteps))
	}
	if opts.ExecTimeout > 0 {
		analysisOpts = append(analysisOpts, agent.WithExecTimeout(opts.ExecTimeout))
	}

	var webSearch orchestrator.Processor
	if opts.SearchBaseURL != "" {
		webSearch = agent.NewWebSearchAgent(models, opts.SearchBaseURL, chatDir, logger)
	}
	var retrieval orchestrator.Processor
	if opts.Retriever != nil {
		retrieval = agent.NewRetrievalAgent(models, opts.Retriever, logger)
	}

	orch := orchestrator.New(orchestrator.Options{
		Metadata:  agent.NewMetadataAgent(models, sessions, chatDir, logger),
		Analysis:  agent.NewAnalysisAgent(models, sessions, chatDir, logger, analysisOpts...),
		WebSearch: webSearch,
		Retrieval: retrieval,
		Logger:    logger,
	})

	manager := chat.NewManager(sv, chat.ModelFactory(models), orch, hub, chatDir, logger)

	return &DataLab{
		opts:     opts,
		settings: sv,
		manager:  manager,
		hub:      hub,
		logger:   logger,
	}, nil
}

// Settings exposes the runtime settings service.
func (d *DataLab) Settings() *settings.Service { return d.settings }

// Chat exposes the conversation manager.
func (d *DataLab) Chat() *chat.Manager { return d.manager }

// Hub exposes the broadcast hub for progress subscriptions.
func (d *DataLab) Hub() *broadcast.Hub { return d.hub }

// ProcessTurn is a convenience wrapper over the conversation manager.
func (d *DataLab) ProcessTurn(ctx context.Context, chatID, text string) chat.TurnResult {
	return d.manager.ProcessTurn(ctx, chatID, text)
}

// ReexecuteNotebook replays every code cell of a saved notebook in order in
// a fresh kernel session, refreshing its recorded outputs.
func (d *DataLab) ReexecuteNotebook(ctx context.Context, path string) error {
	store, err := notebook.Create(path, d.logger)
	if err != nil {
		return err
	}
	timeout := d.opts.ExecTimeout
	if timeout <= 0 {
		timeout = kernel.DefaultExecTimeout
	}
	return notebook.ReexecuteAll(ctx, store, kernel.NewSessionFactory(d.logger), d.logger, timeout)
}

// newModelFactory builds completion models from the current settings on
// every call, so settings changes take effect without restarts.
func newModelFactory(sv *settings.Service) agent.ModelFactory {
	return func() (model.Model, error) {
		cfg := sv.ModelConfig()
		if !sv.IsValidAPIKey(cfg.APIKey) {
			return nil, fmt.Errorf("no valid API key configured")
		}
		switch cfg.Provider {
		case "anthropic":
			return anthropic.NewModel(func(o *anthropic.Options) {
				o.APIKey = cfg.APIKey
				if cfg.Model != "" {
					o.Model = anthropicsdk.Model(cfg.Model)
				}
				o.Temperature = cfg.Temperature
			}), nil
		case "groq":
			return openai.NewModel(func(o *openai.Options) {
				o.APIKey = cfg.APIKey
				o.BaseURL = groqBaseURL
				o.Model = cfg.Model
				o.Temperature = cfg.Temperature
				o.TopP = cfg.TopP
			}), nil
		case "openai", "":
			return openai.NewModel(func(o *openai.Options) {
				o.APIKey = cfg.APIKey
				o.Model = cfg.Model
				o.Temperature = cfg.Temperature
				o.TopP = cfg.TopP
			}), nil
		default:
			return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
		}
	}
}
