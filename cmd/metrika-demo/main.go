// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// metrika-demo drives one of the three workflows interactively: it
// prints each suspend payload as JSON and reads the resume payload as a
// JSON line from stdin, until the run completes or fails.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/metrikahq/metrika/internal/app"
	"github.com/metrikahq/metrika/pkg/config"
	"github.com/metrikahq/metrika/pkg/flows"
	"github.com/metrikahq/metrika/pkg/workflow"
)

var flowIDs = map[string]string{
	"kpi":      flows.KPIBuilderID,
	"kpi-name": flows.KPIBuilderByNameID,
	"insight":  flows.InsightBuilderID,
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	choice := "kpi"
	if args := flag.Args(); len(args) > 0 {
		choice = args[0]
	}
	workflowID, ok := flowIDs[choice]
	if !ok {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.Close(context.Background())

	if err := drive(ctx, a.Engine, workflowID, os.Stdin, os.Stdout); err != nil {
		fatal(err)
	}
}

// drive runs one workflow to termination, round-tripping suspend and
// resume payloads as JSON lines.
func drive(ctx context.Context, engine *workflow.Engine, workflowID string, in *os.File, out *os.File) error {
	run, err := engine.Start(ctx, workflowID, nil)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for run.Status == workflow.StatusSuspended {
		payload, err := json.MarshalIndent(map[string]any{
			"run_id":  run.ID,
			"step":    run.StepID,
			"suspend": run.SuspendPayload,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(payload))
		fmt.Fprint(out, "resume> ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return fmt.Errorf("stdin closed while run %s was suspended", run.ID)
		}

		resume := map[string]any{}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			if err := json.Unmarshal([]byte(line), &resume); err != nil {
				return fmt.Errorf("resume payload must be a JSON object: %w", err)
			}
		}

		run, err = engine.Resume(ctx, run.ID, resume)
		if err != nil {
			return err
		}
	}

	final, err := json.MarshalIndent(map[string]any{
		"run_id": run.ID,
		"status": run.Status,
		"output": run.Output,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(final))
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: metrika-demo [-config path] [kpi|kpi-name|insight]")
	fmt.Fprintln(os.Stderr, "  kpi       build a KPI picking tables and columns by index (default)")
	fmt.Fprintln(os.Stderr, "  kpi-name  build a KPI naming the table directly")
	fmt.Fprintln(os.Stderr, "  insight   derive an insight from an existing KPI")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "metrika-demo: %v\n", err)
	os.Exit(1)
}
