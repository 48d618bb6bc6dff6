package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"datasync/internal/integrate"
	"datasync/internal/metrics"
	"datasync/internal/metrics/datadog"
	"datasync/internal/service"

	_ "datasync/internal/store/clickhouse"
	_ "datasync/internal/store/mssql"
	_ "datasync/internal/store/postgres"
	_ "datasync/internal/store/sqlite"
)

// requestDoc is the JSON document the CLI reads. One document carries enough
// for every op; each op uses the fields it needs.
type requestDoc struct {
	service.TransferRequest

	// PreviewSource selects the side previewed by -op preview:
	// "store", "file" or "html".
	PreviewSource string `json:"preview_source,omitempty"`
}

func main() {
	// Exit code decided after realMain's deferred cleanup (Datadog flush)
	// has run; os.Exit here would skip it.
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(args []string, stdout, stderr io.Writer) int {
	var (
		cfgPath   string
		op        string
		useDD     bool
		ddJobName string
	)
	fs := flag.NewFlagSet("datasync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfgPath, "config", "", "path to request JSON")
	fs.StringVar(&op, "op", "", "operation: test | tables | columns | preview | transfer")
	fs.BoolVar(&useDD, "datadog", false, "submit transfer metrics to Datadog (credentials from DD_API_KEY env)")
	fs.StringVar(&ddJobName, "datadog-job", "datasync", "job tag for Datadog metrics")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if cfgPath == "" || op == "" {
		fmt.Fprintln(stderr, "usage: datasync -op test|tables|columns|preview|transfer -config path/to/request.json")
		return 2
	}

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}

	var req requestDoc
	if err := json.Unmarshal(raw, &req); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}

	ctx := context.Background()

	backend := metrics.Backend(metrics.Nop())
	if useDD {
		dd, err := datadog.NewBackend(ctx, datadog.Options{JobName: ddJobName})
		if err != nil {
			fmt.Fprintf(stderr, "datadog: %v\n", err)
			return 1
		}
		defer func() {
			if err := dd.Close(); err != nil {
				fmt.Fprintf(stderr, "datadog flush: %v\n", err)
			}
		}()
		backend = dd
	}

	svc := &service.Service{
		Logger:  integrate.NewStderrLogger(),
		Metrics: backend,
	}

	out, err := run(ctx, svc, op, req)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", op, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, svc *service.Service, op string, req requestDoc) (any, error) {
	switch op {
	case "test":
		return svc.TestStoreConnection(ctx, req.Store), nil

	case "tables":
		return svc.ListStoreTables(ctx, req.Store)

	case "columns":
		return svc.DescribeStoreTable(ctx, req.Store, req.Table)

	case "preview":
		src := req.PreviewSource
		if src == "" {
			src = "store"
		}
		return svc.PreviewSource(ctx, service.PreviewRequest{
			Source:  src,
			Store:   req.Store,
			File:    req.File,
			Table:   req.Table,
			Columns: req.Columns,
			Join:    req.Join,
		})

	case "transfer":
		return svc.RunTransfer(ctx, req.TransferRequest), nil

	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}
