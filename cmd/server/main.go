package main

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/docrank/internal/api"
	"github.com/dgallion1/docrank/internal/classify"
	"github.com/dgallion1/docrank/internal/config"
	"github.com/dgallion1/docrank/internal/embed"
	"github.com/dgallion1/docrank/internal/highlight"
	"github.com/dgallion1/docrank/internal/pipeline"
	"github.com/dgallion1/docrank/internal/stats"
	"github.com/dgallion1/docrank/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	files, err := store.New(cfg.UploadDir)
	if err != nil {
		log.Error("open upload dir", "error", err)
		os.Exit(1)
	}

	// Initialize capabilities.
	var models []api.ModelStats

	var classifier classify.Classifier
	switch cfg.ClassifierBackend {
	case "rules":
		classifier = classify.NewRuleClassifier(classify.DefaultRuleConfig())
		models = append(models, api.ModelStats{Name: "classifier", Model: "rules"})
	default:
		latency := stats.NewLatencyStats(cfg.StatsWindow)
		hc := classify.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout, latency, log)
		defer hc.Close()
		classifier = hc
		models = append(models, api.ModelStats{Name: "classifier", Model: cfg.ClassifierURL, Stats: latency})
	}

	var embedder embed.Embedder
	switch cfg.EmbedderBackend {
	case "hash":
		embedder = embed.NewHashEmbedder(cfg.HashDimension)
		models = append(models, api.ModelStats{Name: "embedder", Model: "hash"})
	default:
		latency := stats.NewLatencyStats(cfg.StatsWindow)
		oe, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:    cfg.EmbedderAPIKey,
			BaseURL:   cfg.EmbedderURL,
			Model:     cfg.EmbedderModel,
			MaxTokens: cfg.EmbedderMaxTokens,
			Timeout:   cfg.EmbedderTimeout,
		}, latency, log)
		if err != nil {
			// Uploads still work; role queries report the embedder as unavailable.
			log.Error("embedder unavailable", "error", err)
		} else {
			embedder = oe
			models = append(models, api.ModelStats{Name: "embedder", Model: oe.ModelInfo(), Stats: latency})
		}
	}
	if embedder != nil && cfg.EmbedderRPS > 0 {
		embedder = embed.NewLimited(embedder, cfg.EmbedderRPS, int(math.Max(1, math.Ceil(cfg.EmbedderRPS))))
	}

	// Initialize pipelines.
	analyzer := pipeline.NewAnalyzer(files, classifier, pipeline.AnalyzerConfig{
		Headings:    classify.NewLabelSet(cfg.HeadingLabels),
		Timeout:     cfg.ClassifierTimeout,
		Concurrency: cfg.MaxConcurrentParse,
	}, nil, log)
	locator := highlight.NewLocator(files, nil, log)
	ranker := pipeline.NewRanker(embedder, locator, pipeline.RankerConfig{
		Lambda:      cfg.Lambda,
		K:           cfg.TopK,
		Timeout:     cfg.EmbedderTimeout,
		Concurrency: cfg.MaxConcurrentEmbed,
	}, log)

	// Initialize HTTP server.
	srv := api.NewServer(analyzer, ranker, files, models, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting docrank",
		"port", cfg.Port,
		"upload_dir", files.Root(),
		"classifier", cfg.ClassifierBackend,
		"embedder", cfg.EmbedderBackend,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
