package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"annosync/internal/annotation"
	"annosync/internal/config"
	"annosync/internal/protocol"
	"annosync/internal/stomp"
	"annosync/internal/telemetry"

	"github.com/docopt/docopt-go"
)

const ClientVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

const usage = `Annotation sync client.

Defaults are read from the environment (ANNOSYNC_URL, ANNOSYNC_USER,
ANNOSYNC_PROJECT_ID, ANNOSYNC_DOCUMENT_ID, ANNOSYNC_VIEWPORT).

Usage:
    annoclient watch
        [--url=<url>] [--user=<user>]
        [--project=<project>] [--document=<document>]
        [--viewport=<viewport>]
    annoclient create-span --begin=<begin> --end=<end> --type=<type>
        [--feature=<feature>]
        [--url=<url>] [--user=<user>]
        [--project=<project>] [--document=<document>]
        [--viewport=<viewport>]
    annoclient delete-span --span=<span>
        [--url=<url>] [--user=<user>]
        [--project=<project>] [--document=<document>]
        [--viewport=<viewport>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --url=<url>              Broker websocket url.
    --user=<user>            User name sent with every request.
    --project=<project>      Project id.
    --document=<document>    Document id.
    --viewport=<viewport>    Visible lines, e.g. 0-9 or 0-2,10-12.
    --begin=<begin>          Span begin offset.
    --end=<end>              Span end offset.
    --type=<type>            Span type.
    --feature=<feature>      Span feature value.
    --span=<span>            Span address.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], ClientVersion)
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		Err.Fatalf("❌ Failed to load config: %v", err)
	}
	applyOverrides(opts, cfg)

	jaegerShutdown, err := telemetry.InitJaeger("annoclient", cfg.JaegerEndpoint)
	if err != nil {
		Err.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		jaegerShutdown(ctx)
	}()

	if watch_, _ := opts.Bool("watch"); watch_ {
		watch(cfg)
	} else if create_, _ := opts.Bool("create-span"); create_ {
		createSpan(cfg, opts)
	} else if delete_, _ := opts.Bool("delete-span"); delete_ {
		deleteSpan(cfg, opts)
	}
}

func applyOverrides(opts docopt.Opts, cfg *config.Config) {
	if url, err := opts.String("--url"); err == nil {
		cfg.ServerURL = url
	}
	if user, err := opts.String("--user"); err == nil {
		cfg.UserName = user
	}
	if viewport, err := opts.String("--viewport"); err == nil {
		cfg.Viewport = viewport
	}
	if project, err := opts.String("--project"); err == nil {
		if cfg.ProjectID, err = numberOption("--project", project); err != nil {
			Err.Fatalf("❌ %v", err)
		}
	}
	if document, err := opts.String("--document"); err == nil {
		if cfg.DocumentID, err = numberOption("--document", document); err != nil {
			Err.Fatalf("❌ %v", err)
		}
	}
}

func numberOption(name, value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %q", name, value)
	}
	return n, nil
}

// spanOffsets reads --begin and --end
func spanOffsets(opts docopt.Opts) (int, int, error) {
	var offsets [2]int
	for i, name := range []string{"--begin", "--end"} {
		value, err := opts.String(name)
		if err != nil {
			return 0, 0, fmt.Errorf("%s is required", name)
		}
		n, err := numberOption(name, value)
		if err != nil {
			return 0, 0, err
		}
		offsets[i] = int(n)
	}
	return offsets[0], offsets[1], nil
}

// open connects an engine and requests the configured document
func open(cfg *config.Config, onChange func(client *annotation.Client, kind annotation.ChangeKind)) *annotation.Client {
	viewport, err := protocol.ParseViewport(cfg.Viewport)
	if err != nil {
		Err.Fatalf("❌ Invalid viewport: %v", err)
	}

	settings := stomp.DefaultSettings()
	settings.SendBufferSize = cfg.SendBufferSize
	settings.HandshakeTimeout = cfg.HandshakeTimeout

	transport := stomp.NewClient(cfg.ServerURL, settings, func(message, detail string) {
		Err.Printf("⚠️  %s: %s", message, detail)
	})

	var client *annotation.Client
	client = annotation.NewClient(transport, annotation.Options{
		UserName:           cfg.UserName,
		ProjectID:          cfg.ProjectID,
		DocumentID:         cfg.DocumentID,
		ViewportType:       cfg.ViewportType,
		RecommenderEnabled: cfg.RecommenderEnabled,
		OnChange: func(kind annotation.ChangeKind) {
			if onChange != nil {
				onChange(client, kind)
			}
		},
		OnError: func(err error) {
			Err.Printf("❌ %v", err)
		},
	})

	if err := client.Connect(context.Background()); err != nil {
		Err.Fatalf("❌ %v", err)
	}
	if err := client.OpenDocument(cfg.ProjectID, cfg.DocumentID, viewport); err != nil {
		client.Disconnect()
		Err.Fatalf("❌ Failed to open document: %v", err)
	}
	return client
}

func watch(cfg *config.Config) {
	client := open(cfg, func(client *annotation.Client, kind annotation.ChangeKind) {
		printChange(client.State(), kind)
	})
	defer client.Disconnect()

	Out.Printf("👀 Watching document %d of project %d (lines %s), Ctrl-C to stop", cfg.DocumentID, cfg.ProjectID, cfg.Viewport)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func printChange(state annotation.State, kind annotation.ChangeKind) {
	switch kind {
	case annotation.ChangeDocument, annotation.ChangeViewport:
		Out.Printf("[%s] viewport %s", kind, state.Viewport)
		for i, line := range state.Text {
			Out.Printf("  %3d | %s", i, line)
		}
		Out.Printf("  %d spans, %d relations", len(state.Spans), len(state.Relations))
	case annotation.ChangeSelection:
		if state.SelectedSpan != nil {
			Out.Printf("[%s] span %s (%s)", kind, state.SelectedSpan.ID, state.SelectedSpan.Type)
		}
		if state.SelectedRelation != nil {
			Out.Printf("[%s] relation %s (%s)", kind, state.SelectedRelation.ID, state.SelectedRelation.Type)
		}
	case annotation.ChangeSpans:
		for _, span := range state.Spans {
			Out.Printf("[%s] %s %s %q", kind, span.ID, span.Type, span.CoveredText)
		}
	case annotation.ChangeRelations:
		for _, relation := range state.Relations {
			Out.Printf("[%s] %s %s -> %s (%s)", kind, relation.ID, relation.GovernorID, relation.DependentID, relation.Type)
		}
	}
}

// oneShot opens the document, runs a single request and disconnects
func oneShot(cfg *config.Config, request func(client *annotation.Client) error) {
	client := open(cfg, nil)
	defer client.Disconnect()

	if err := request(client); err != nil {
		Err.Fatalf("❌ %v", err)
	}
	// Learning: Disconnect flushes queued requests before the DISCONNECT frame
}

func createSpan(cfg *config.Config, opts docopt.Opts) {
	begin, end, err := spanOffsets(opts)
	if err != nil {
		Err.Fatalf("❌ %v", err)
	}
	spanType, _ := opts.String("--type")
	feature, _ := opts.String("--feature")

	oneShot(cfg, func(client *annotation.Client) error {
		return client.CreateSpan(begin, end, spanType, feature)
	})
	Out.Printf("✓ Requested span %d-%d (%s)", begin, end, spanType)
}

func deleteSpan(cfg *config.Config, opts docopt.Opts) {
	span, _ := opts.String("--span")

	oneShot(cfg, func(client *annotation.Client) error {
		return client.DeleteSpan(protocol.Address(span))
	})
	Out.Printf("✓ Requested deletion of span %s", span)
}
