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
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vectorload",
		Usage: "Resumable bulk import of embedded records into a relational store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"VECTORLOAD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write logs to this file, rotated by size",
			},
			&cli.StringFlag{
				Name:  "otlp-endpoint",
				Usage: "OTLP/HTTP collector for traces, e.g. localhost:4318",
			},
			&cli.StringFlag{
				Name:    "db-password",
				Usage:   "Database password",
				EnvVars: []string{"VECTORLOAD_DB_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "embedding-api-key",
				Usage:   "Bearer token for the embedding service",
				EnvVars: []string{"VECTORLOAD_EMBEDDING_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "s3-access-key",
				Usage:   "Access key for object checkpoints",
				EnvVars: []string{"VECTORLOAD_S3_ACCESS_KEY"},
			},
			&cli.StringFlag{
				Name:    "s3-secret-key",
				Usage:   "Secret key for object checkpoints",
				EnvVars: []string{"VECTORLOAD_S3_SECRET_KEY"},
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import one stream from its source file",
				ArgsUsage: "<stream>",
				Action:    importCommand,
				Flags: append(runFlags(),
					&cli.IntFlag{
						Name:  "start",
						Usage: "Explicit start offset; overrides the checkpoint",
						Value: -1,
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Source file, overriding the configured one",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Source format (csv, jsonl, json); defaults to the file extension",
					},
				),
			},
			{
				Name:   "import-all",
				Usage:  "Import every stream with a configured source, concurrently",
				Action: importAllCommand,
				Flags:  runFlags(),
			},
			{
				Name:   "serve",
				Usage:  "Serve the import API and metrics",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "HTTP listen address",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Metrics listen address; metrics are off when empty",
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Create the target tables if they do not exist",
				Action: migrateCommand,
			},
			{
				Name:  "checkpoint",
				Usage: "Inspect stream checkpoints",
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Print the stored offset of each stream",
						ArgsUsage: "[stream...]",
						Action:    checkpointShowCommand,
					},
				},
			},
		},
	}
}

// runFlags are shared by the import commands.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of records in each batch",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Retries per batch stage after the first attempt",
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "Start from the stored checkpoint",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Stop after consuming this many records",
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Print a progress line to stderr",
			Value: true,
		},
	}
}
