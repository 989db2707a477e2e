package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dbanon/internal/anonymize"
	"dbanon/internal/config"
	"dbanon/internal/store"
)

// main is the entrypoint for the inspection CLI. It reads a SQLite results
// database, prints every table with its columns and classification
// eligibility, and emits a starter pipeline configuration as JSON.
//
// The resulting config is intended to be hand-edited and then used with
// cmd/dbanon.
func main() {
	var (
		flagDB = flag.String(
			"db",
			"",
			"Path to the SQLite database to inspect",
		)
		flagJob = flag.String(
			"job",
			"dbanon",
			"Logical job name written into the generated config",
		)
		flagPretty = flag.Bool(
			"pretty",
			true,
			"Pretty-print JSON output",
		)
	)
	flag.Parse()

	if *flagDB == "" {
		fmt.Fprintln(os.Stderr, "missing -db")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	src, closeSrc, err := store.OpenSource(ctx, *flagDB)
	if err != nil {
		log.Fatalf("inspect: %v", err)
	}
	defer closeSrc()

	cfg, err := starterConfig(ctx, src, *flagJob)
	if err != nil {
		log.Fatalf("inspect: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(cfg); err != nil {
		log.Fatalf("encode config: %v", err)
	}
}

// starterConfig builds a pipeline config skeleton from the database: one
// table rule per table with an explicit column rule for every eligible
// column, so operators can see and prune exactly what would be classified.
func starterConfig(ctx context.Context, src *store.Source, job string) (config.Pipeline, error) {
	tables, err := src.Catalog().Tables(ctx)
	if err != nil {
		return config.Pipeline{}, err
	}

	cfg := config.Default()
	cfg.Job = job
	cfg.Tables = map[string]config.TableRule{}

	for _, name := range tables {
		tbl, err := src.Catalog().Describe(ctx, name)
		if err != nil {
			return config.Pipeline{}, err
		}

		rule := config.TableRule{Columns: map[string]config.ColumnRule{}}
		for _, col := range tbl.Columns {
			eligible := anonymize.EligibleColumn(col, tbl.Type(col))
			log.Printf("inspect: table=%s column=%s type=%s eligible=%v",
				name, col, tbl.Type(col), eligible)
			if eligible {
				rule.Columns[col] = config.ColumnRule{}
			}
		}
		cfg.Tables[name] = rule
	}
	return cfg, nil
}
