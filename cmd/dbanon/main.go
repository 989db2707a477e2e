package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dbanon/internal/anonymize"
	"dbanon/internal/anonymize/pattern"
	"dbanon/internal/config"
	"dbanon/internal/metrics"
	"dbanon/internal/metrics/prompush"
	"dbanon/internal/pipeline"
	"dbanon/internal/queryengine"
)

// Exit codes follow the container worker contract: 1 means bad
// configuration or parameters, 2 means the query execution failed, and
// 3 means the streaming run itself failed.
const (
	exitParams = 1
	exitQuery  = 2
	exitRun    = 3
)

// main loads parameters and the pipeline config, optionally executes the
// remote query to produce the input database, then runs the streaming
// anonymization pass and writes the stats report.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "pipeline config JSON path (empty uses built-in defaults)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (e.g. pushgateway, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	params, err := config.ParamsFromEnv()
	if err != nil {
		fatalf(exitParams, "params: %v", err)
	}

	p := config.Default()
	if cfgPath != "" {
		p, err = config.Load(cfgPath)
		if err != nil {
			fatalf(exitParams, "config: %v", err)
		}
	}

	issues := config.ValidatePipeline(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fatalf(exitParams, "configuration is invalid: %v", cfgPath)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	setupMetrics(p, metricsBackendFlg, pushGatewayURLFlg, *verbose)

	ctx := context.Background()
	start := time.Now()

	// In dev mode the input database is already mounted; in production the
	// query engine produces it first.
	if params.DevMode {
		log.Printf("dev mode: using existing database at %s", params.DBPath())
	} else {
		if err := params.ValidateProduction(); err != nil {
			fatalf(exitParams, "params: %v", err)
		}
		if err := executeQuery(ctx, params); err != nil {
			fatalf(exitQuery, "query: %v", err)
		}
	}

	if _, err := os.Stat(params.DBPath()); err != nil {
		fatalf(exitRun, "input database: %v", err)
	}

	transformer, anonStats := buildTransformer(p)
	runner := pipeline.NewRunner(p, params.DBPath(), params.OutputDBPath(), transformer)

	snap, runErr := runner.Run(ctx)
	if runErr != nil {
		var tErr *pipeline.TableError
		if errors.As(runErr, &tErr) {
			log.Printf("run: table %s failed: %v", tErr.Table, tErr.Err)
		}
	}

	report := pipeline.NewReport(p, snap, anonStats.Snapshot())
	if err := report.Save(params.StatsPath()); err != nil {
		log.Printf("report: save failed: %v", err)
	}

	if runErr != nil {
		fatalf(exitRun, "run: %v", runErr)
	}

	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush error: %v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// buildTransformer wires the anonymization dispatcher, or a passthrough when
// anonymization is disabled. The returned stats are shared with the report.
func buildTransformer(p config.Pipeline) (pipeline.RowTransformer, *anonymize.Stats) {
	stats := anonymize.NewStats()
	if !p.Anonymize.Enabled {
		log.Printf("anonymize: disabled, rows pass through unchanged")
		return pipeline.Passthrough{}, stats
	}
	classifier := pattern.New(p.Anonymize)
	policy := anonymize.NewPolicy(p)
	return anonymize.NewDispatcher(classifier, policy, stats), stats
}

// executeQuery runs the configured query through the remote engine and
// downloads the result database to the input mount.
func executeQuery(ctx context.Context, params config.Params) error {
	client := queryengine.NewClient(queryengine.Config{
		Signature:   params.QuerySignature,
		ResultsPath: params.DBPath(),
	})
	res, err := client.Execute(ctx, queryengine.Job{
		Query:     params.Query,
		Params:    params.QueryParams,
		JobID:     params.ComputeJobID,
		RefinerID: params.DataRefinerID,
	})
	if err != nil {
		return err
	}
	log.Printf("query: completed id=%s results=%s", res.QueryID, res.FilePath)
	return nil
}

// setupMetrics decides the metrics backend: flag, then env, then default.
func setupMetrics(p config.Pipeline, backendName, gwURLFlag string, verbose bool) {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "pushgateway":
		gwURL := gwURLFlag
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := p.Job
		if jobName == "" {
			jobName = "anonymize_job"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func fatalf(code int, format string, a ...any) {
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush error: %v", err)
	}
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(code)
}
