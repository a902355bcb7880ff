// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/openai"
	"github.com/poiesic/recall/backfill"
	"github.com/urfave/cli/v2"
)

// newProvider creates the embedding provider. Tests replace it.
var newProvider = func(cfg *ai.Config) (ai.Provider, error) {
	return openai.NewProvider(cfg)
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	dbFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			EnvVars:  []string{"RECALL_DB"},
			Required: true,
		},
		&cli.IntFlag{
			Name:     "dimensions",
			Usage:    "Embedding vector dimension",
			EnvVars:  []string{"RECALL_DIMENSIONS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:  "index-kind",
			Usage: "Approximate index family (ivf, hnsw)",
			Value: "ivf",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Serve Prometheus metrics on this address while the command runs",
			EnvVars: []string{"RECALL_METRICS_ADDR"},
		},
	}
	embeddingFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			EnvVars: []string{"RECALL_EMBEDDING_HOST"},
			Value:   ai.DefaultConfig().EmbeddingHost,
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			EnvVars: []string{"RECALL_EMBEDDING_MODEL"},
			Value:   ai.DefaultConfig().EmbeddingModel,
		},
		&cli.StringFlag{
			Name:    "embedding-token",
			Usage:   "Embedding service API token",
			EnvVars: []string{"RECALL_EMBEDDING_TOKEN"},
		},
	}
	with := func(groups ...[]cli.Flag) []cli.Flag {
		var out []cli.Flag
		for _, g := range groups {
			out = append(out, g...)
		}
		return out
	}
	defaults := backfill.DefaultConfig()

	return &cli.App{
		Name:      "recall",
		Usage:     "Recency-weighted semantic ranking over embedded documents",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "import",
				Usage:  "Import JSONL documents, with optional vectors",
				Action: importCommand,
				Flags: with(dbFlags, embeddingFlags, []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSONL file to read, - for stdin",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "embed",
						Usage: "Embed documents that carry no vector",
					},
				}),
			},
			{
				Name:   "backfill",
				Usage:  "Embed documents that have no embedding record",
				Action: backfillCommand,
				Flags: with(dbFlags, embeddingFlags, []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Re-embed every active document, not only missing ones",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to embed per request",
						Value: defaults.BatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: defaults.ReportInterval,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: defaults.MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: defaults.RetryDelay,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: defaults.Workers,
					},
				}),
			},
			{
				Name:   "search",
				Usage:  "Rank an owner's documents against a query",
				Action: searchCommand,
				Flags: with(dbFlags, embeddingFlags, []cli.Flag{
					&cli.StringFlag{
						Name:  "request",
						Usage: "JSON query request file, - for stdin",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "Query text, embedded through the provider",
					},
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Owner whose documents are searched",
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "half-life",
						Usage: "Half-life in days, overriding the owner's setting",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Only documents carrying every given tag",
					},
					&cli.TimestampFlag{
						Name:   "from",
						Usage:  "Only documents created on or after this date",
						Layout: time.DateOnly,
					},
					&cli.TimestampFlag{
						Name:   "to",
						Usage:  "Only documents created on or before this date",
						Layout: time.DateOnly,
					},
				}),
			},
			{
				Name:   "forget",
				Usage:  "Forget a document",
				Action: forgetCommand,
				Flags: with(dbFlags, []cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "Owner of the document",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Document id",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "auto (owner preference), soft or hard",
						Value: "auto",
					},
				}),
			},
			{
				Name:   "rebuild",
				Usage:  "Build a new index snapshot from every active record",
				Action: rebuildCommand,
				Flags:  dbFlags,
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
				Flags:  dbFlags,
			},
			{
				Name:   "settings",
				Usage:  "Show or change an owner's settings",
				Action: settingsCommand,
				Flags: with(dbFlags, []cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "Owner whose settings are shown",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "half-life",
						Usage: "Set the half-life in days",
					},
					&cli.BoolFlag{
						Name:  "hard-delete",
						Usage: "Set whether forget erases documents",
					},
				}),
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
