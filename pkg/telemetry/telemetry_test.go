package telemetry

import (
	"context"
	"io"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit(t *testing.T) {
	shutdown, err := Init(context.Background(), "test-service", "v0.0.1", Config{Exporter: "stdout"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

// The daemon multiplexes the MCP protocol on stdout, so span and metric
// batches from the default exporter must never land there.
func TestInitStdoutExporterKeepsStdoutClean(t *testing.T) {
	origOut, origErr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout, os.Stderr = outW, errW
	defer func() { os.Stdout, os.Stderr = origOut, origErr }()

	shutdown, err := Init(context.Background(), "test-service", "v0.0.1", Config{Exporter: "stdout"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, span := otel.Tracer("test-service").Start(context.Background(), "stdio-check")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	outW.Close()
	errW.Close()
	stdout, _ := io.ReadAll(outR)
	stderr, _ := io.ReadAll(errR)
	if len(stdout) != 0 {
		t.Errorf("exporter wrote %d bytes to stdout", len(stdout))
	}
	if len(stderr) == 0 {
		t.Error("expected span output on stderr")
	}
}

func TestInitNoneExporter(t *testing.T) {
	shutdown, err := Init(context.Background(), "test-service", "v0.0.1", Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), "test-service", "v0.0.1", Config{Exporter: "bogus"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), "test-service", "v0.0.1", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected error when otlp endpoint is missing")
	}
}
