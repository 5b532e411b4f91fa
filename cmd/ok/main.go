// Package main wires the ok adapters and services and runs the CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/openkl/internal/adapters/driven/ai"
	"github.com/custodia-labs/openkl/internal/adapters/driven/config/file"
	"github.com/custodia-labs/openkl/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/openkl/internal/adapters/driven/watcher"
	"github.com/custodia-labs/openkl/internal/adapters/driving/cli"
	"github.com/custodia-labs/openkl/internal/core/services"
	"github.com/custodia-labs/openkl/internal/logger"
	"github.com/custodia-labs/openkl/internal/normalisers"
	"github.com/custodia-labs/openkl/internal/normalisers/html"
	"github.com/custodia-labs/openkl/internal/normalisers/markdown"
	"github.com/custodia-labs/openkl/internal/normalisers/plaintext"
	"github.com/custodia-labs/openkl/internal/postprocessors"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = ""

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	store, err := sqlite.NewStore(settings.Store.Dir, sqlite.WithLockTimeout(settings.Store.LockTimeout))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("closing store: %v", cerr)
		}
	}()

	registry := normalisers.NewRegistry(plaintext.New(), markdown.New(), html.New())

	processors := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(processors)
	pipeline, err := postprocessors.Build(processors, settings.Pipeline)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	embedding := ai.Init(&settings.Embedding)
	defer embedding.Close()
	// The logger is silent until flags are parsed.
	for _, w := range embedding.Warnings {
		fmt.Fprintln(os.Stderr, "Warning:", w)
	}

	prompts, err := file.NewPromptStore("")
	if err != nil {
		return fmt.Errorf("opening prompts: %w", err)
	}

	ingest := services.NewIngestService(store, registry, pipeline, embedding.EmbeddingService, nil)
	if err := ingest.SetFilters(settings.Ingest.Include, settings.Ingest.Exclude); err != nil {
		return fmt.Errorf("ingest filters: %w", err)
	}
	ingest.SetWatcher(watcher.New())

	memory := services.NewMemoryService(store, embedding.EmbeddingService, nil,
		services.WithDeterministicIDs(settings.Memory.DeterministicIDs))

	cli.SetServices(cli.Services{
		Ingest:         ingest,
		Search:         services.NewSearchService(store, embedding.EmbeddingService, registry),
		Citation:       services.NewCitationService(store, registry, nil),
		Distill:        services.NewDistillService(store, memory, prompts),
		Memory:         memory,
		Graph:          services.NewGraphService(store),
		Settings:       settingsService,
		EmbeddingCheck: ai.ValidateEmbeddingConfig,
	})
	cli.SetVersion(version)

	return cli.Execute(ctx)
}
