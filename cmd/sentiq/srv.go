package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"sentiq/internal/blobstore"
	"sentiq/internal/classify"
	"sentiq/internal/config"
	"sentiq/internal/metrics"
	"sentiq/internal/pipeline"
	"sentiq/internal/server"
	"sentiq/internal/store"
	"sentiq/internal/worker"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the sentiq API server and processing workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, err := blobstore.NewLocalCAS(cfg.BlobRoot)
			if err != nil {
				return err
			}

			classifier, themes, err := buildClassifier(cfg)
			if err != nil {
				return err
			}

			m := metrics.New()
			progress := pipeline.NewProgress()
			proc := pipeline.New(st, blobs, classifier, progress, slog.Default().With("component", "pipeline"), pipeline.Options{
				CommentColumn: cfg.Processing.CommentColumn,
				LabelColumn:   cfg.Processing.LabelColumn,
				Themes:        themes,
			})

			pool := worker.NewPool(cfg.Processing.Workers, proc.Process, slog.Default().With("component", "worker"), m)
			pool.Start()
			defer pool.Shutdown()

			uploads := server.NewUploadService(st, blobs, pool, progress, logger, m)
			srv := server.New(addr, uploads, logger, m, server.Options{
				MaxUploadBytes:     cfg.Upload.MaxUploadBytes,
				MultipartMaxMemory: cfg.Upload.MultipartMaxMemory,
			})
			return srv.ListenAndServe()
		},
	}
}

func buildClassifier(cfg *config.Config) (classify.Classifier, *classify.ThemeMapping, error) {
	var themes *classify.ThemeMapping
	if path := cfg.Classifier.ThemeMapPath; path != "" {
		loaded, err := classify.LoadThemeMapping(path)
		if err != nil {
			return nil, nil, err
		}
		themes = loaded
	}

	switch cfg.Classifier.Mode {
	case config.ClassifierModeRemote:
		remote, err := classify.NewRemote(cfg.Classifier.Endpoint, time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return remote, themes, nil
	default:
		if path := cfg.Classifier.LexiconPath; path != "" {
			lexicon, err := classify.LoadLexicon(path)
			if err != nil {
				return nil, nil, err
			}
			return lexicon, themes, nil
		}
		return classify.NewLexicon(), themes, nil
	}
}
