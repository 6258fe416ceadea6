package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/doconv/convertd/internal/api"
	"github.com/doconv/convertd/internal/client"
	"github.com/doconv/convertd/internal/config"
	"github.com/doconv/convertd/internal/convert"
	"github.com/doconv/convertd/internal/job"
	"github.com/doconv/convertd/internal/spool"
	"github.com/doconv/convertd/internal/ws"
)

func main() {
	submit := flag.Bool("submit", false, "Run as batch client submitting the given files")
	server := flag.String("server", "http://localhost:8000", "Server URL for batch client mode")
	format := flag.String("format", "markdown", "Output format for batch client mode")
	images := flag.Bool("images", true, "Include images (batch client mode)")
	tables := flag.Bool("tables", true, "Include tables (batch client mode)")
	flag.Parse()

	if *submit {
		runBatch(*server, *format, *images, *tables, flag.Args())
		return
	}

	runServer()
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Printf("Starting convertd on %s (workers: %d)", cfg.Addr(), cfg.MaxWorkers)

	uploads, err := spool.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Spool error: %v", err)
	}
	defer uploads.Close()

	engine := convert.NewExecEngine(cfg.DoclingBin)
	if !engine.Available() {
		log.Printf("Warning: %s not found on PATH, conversions will fail", cfg.DoclingBin)
	}

	store := job.NewStore()
	hub := ws.NewHub()

	dispatcher := job.NewDispatcher(store, engine, uploads, cfg.MaxWorkers)
	dispatcher.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepLoop(ctx, store, cfg.SweepInterval, cfg.JobTTL)

	router := api.NewRouter(cfg, store, dispatcher, engine, uploads, hub)

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 5 * time.Minute, // large uploads
		IdleTimeout: 60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop intake and give in-flight conversions a moment to finish.
	dispatcher.Stop()
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		log.Println("Workers drained")
	case <-time.After(30 * time.Second):
		log.Println("Workers still busy, exiting anyway")
	}

	log.Println("Server stopped")
}

func sweepLoop(ctx context.Context, store *job.Store, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(ttl); n > 0 {
				log.Printf("Evicted %d expired jobs", n)
			}
		}
	}
}

var outputExt = map[convert.Format]string{
	convert.FormatMarkdown: ".md",
	convert.FormatHTML:     ".html",
	convert.FormatJSON:     ".json",
	convert.FormatText:     ".txt",
	convert.FormatDoctags:  ".doctags",
}

func runBatch(serverURL, formatValue string, images, tables bool, paths []string) {
	if len(paths) == 0 {
		log.Fatal("No files to submit; usage: convertd --submit [flags] file...")
	}

	format, err := convert.ParseFormat(formatValue)
	if err != nil {
		log.Fatalf("Invalid format: %v", err)
	}

	var files []client.BatchFile
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Read %s: %v", path, err)
		}
		files = append(files, client.BatchFile{Name: filepath.Base(path), Data: data})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Aborting, no further polling...")
		cancel()
	}()

	c := client.New(serverURL)
	opts := convert.Options{IncludeImages: images, IncludeTables: tables}

	results := c.ConvertBatch(ctx, files, format, opts, func(name string, progress int) {
		log.Printf("%s: %d%%", name, progress)
	})

	failures := 0
	for _, res := range results {
		if res.Result == nil || !res.Result.Success {
			failures++
			errMsg := "no result"
			if res.Result != nil {
				errMsg = res.Result.Error
			}
			log.Printf("%s: FAILED: %s", res.Filename, errMsg)
			continue
		}
		out := res.Filename + outputExt[format]
		if err := os.WriteFile(out, []byte(res.Result.Content), 0644); err != nil {
			log.Fatalf("Write %s: %v", out, err)
		}
		log.Printf("%s: OK -> %s", res.Filename, out)
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "convertd - document conversion service\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [flags] [file...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Modes:\n")
		fmt.Fprintf(os.Stderr, "  Server (default): serve the conversion API\n")
		fmt.Fprintf(os.Stderr, "  Batch client: --submit file... submits files and polls to completion\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                        # Run the server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --submit --format html report.pdf      # Convert one file\n", os.Args[0])
	}
}
