// Command upload-file pushes local files through the storage pipeline
// without the HTTP server, using the same configuration the service reads.
// Videos are transcoded to HLS exactly as they would be for an API upload;
// multiple files share one aggregate budget like parts of one request.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"coursemedia/internal/config"
	"coursemedia/internal/objectstore"
	"coursemedia/internal/observability/logging"
	"coursemedia/internal/pipeline"
	"coursemedia/internal/transcoder"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	field := flag.String("field", "file", "upload field name selecting the storage category")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: upload-file [flags] <path> [path ...]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "text"})

	store, err := objectstore.NewS3(context.Background(), objectstore.S3Config{
		Region:        cfg.S3.Region,
		Bucket:        cfg.S3.Bucket,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		Endpoint:      cfg.S3.Endpoint,
		PublicBaseURL: cfg.S3.PublicBaseURL,
		PartSizeMB:    cfg.S3.PartSizeMB,
	})
	if err != nil {
		logger.Error("configure object storage", "error", err)
		os.Exit(1)
	}

	engine, err := pipeline.NewEngine(pipeline.EngineConfig{
		Store:            store,
		Transcoder:       transcoder.NewFFmpeg(cfg.Transcode.Binary, logger),
		Policies:         cfg.Policies,
		PerFileMax:       cfg.Limits.PerFileMax,
		AggregateMax:     cfg.Limits.AggregateMax,
		SegmentSeconds:   cfg.Transcode.SegmentSeconds,
		TranscodeTimeout: cfg.Transcode.Timeout,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("configure pipeline", "error", err)
		os.Exit(1)
	}

	parts := make([]pipeline.Part, 0, flag.NArg())
	for _, sourcePath := range flag.Args() {
		file, err := os.Open(sourcePath)
		if err != nil {
			logger.Error("open source file", "path", sourcePath, "error", err)
			os.Exit(1)
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			logger.Error("stat source file", "path", sourcePath, "error", err)
			os.Exit(1)
		}
		parts = append(parts, pipeline.Part{
			FieldName:    *field,
			FileName:     filepath.Base(sourcePath),
			DeclaredSize: info.Size(),
			Body:         file,
		})
	}

	failed := 0
	for _, outcome := range engine.ProcessParts(context.Background(), parts) {
		if outcome.Err != nil {
			failed++
			logger.Error("upload failed", "file", outcome.FileName, "error", outcome.Err)
			continue
		}
		result := outcome.Result
		fmt.Printf("stored %s\n  key:      %s\n  location: %s\n  size:     %d\n  segmented: %t\n",
			result.OriginalName, result.Key, result.Location, result.Size, result.Segmented)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
