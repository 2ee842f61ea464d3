package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mapengrave/internal/bootstrap"
	"mapengrave/internal/export"
	"mapengrave/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		inFlag   string
		outFlag  string
		metaFlag bool
	)
	flag.StringVar(&inFlag, "in", "-", "Order JSON file, - for stdin")
	flag.StringVar(&outFlag, "out", ".", "Directory the print file is written to")
	flag.BoolVar(&metaFlag, "meta", false, "Also write <file>.json with the export metadata")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg).With().Str("cmd", "export").Logger()

	req, err := readRequest(inFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read order")
	}

	cat, err := bootstrap.Catalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}
	pipeline, err := bootstrap.Exporter(cfg, cat, nil, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build export pipeline")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("export failed")
	}

	if err := os.MkdirAll(outFlag, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create output directory")
	}
	path := filepath.Join(outFlag, res.Filename)
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("failed to write print file")
	}
	if metaFlag {
		meta, err := json.MarshalIndent(res, "", "  ")
		if err == nil {
			err = os.WriteFile(strings.TrimSuffix(path, filepath.Ext(path))+".json", meta, 0o644)
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to write metadata")
		}
	}

	logger.Info().
		Str("path", path).
		Str("export_id", res.ExportID).
		Int("bytes", res.Bytes).
		Int("quality", res.Quality).
		Msgf("%dx%d @ %d dpi", res.Width, res.Height, res.DPI)
}

func readRequest(path string) (export.Request, error) {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return export.Request{}, err
		}
		defer f.Close()
		in = f
	}
	var req export.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return export.Request{}, fmt.Errorf("decode order: %w", err)
	}
	return req, nil
}
