package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pigcharles06/remote-course-system/internal/docx"
	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/pigcharles06/remote-course-system/internal/placeholder"
	"github.com/pigcharles06/remote-course-system/internal/server"
	"github.com/pigcharles06/remote-course-system/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	extractJSON bool

	formPath      string
	outPath       string
	reportPath    string
	applicationID string

	historyLimit int
)

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Print keys as a JSON array")

	generateCmd.Flags().StringVarP(&formPath, "form", "f", "", "Path to the form data JSON file")
	generateCmd.Flags().StringVarP(&outPath, "out", "o", "generated.docx", "Where to write the generated document")
	generateCmd.Flags().StringVar(&reportPath, "report", "", "Optional path for the JSON generation report")
	generateCmd.Flags().StringVar(&applicationID, "application", "", "Application ID recorded in the history")
	_ = generateCmd.MarkFlagRequired("form")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of records to show")
}

var extractCmd = &cobra.Command{
	Use:   "extract <file.docx>",
	Short: "List the placeholder keys of a template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pkg, err := docx.Open(args[0])
		if err != nil {
			log.Fatalf("Failed to open document: %v", err)
		}
		keys, err := placeholder.Extract(pkg)
		if err != nil {
			log.Fatalf("Failed to extract placeholders: %v", err)
		}

		if extractJSON {
			printJSON(keys)
			return
		}
		fmt.Printf("🔎 Found %d placeholders in %s\n", len(keys), args[0])
		for i, k := range keys {
			fmt.Printf("%3d. %s\n", i+1, k)
		}
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Fill the configured template from a form data file",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}
		logger, err := newLogger(cfg)
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		defer logger.Sync()

		form, err := readForm(formPath)
		if err != nil {
			log.Fatalf("Failed to read form data: %v", err)
		}

		asm, err := initAssembler(ctx, cfg, logger)
		if err != nil {
			log.Fatal(err)
		}

		store, err := initStore(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		fmt.Printf("🚀 Generating from template %s...\n", cfg.Template.Path)
		start := time.Now()
		out, err := asm.Generate(ctx, form)
		if err != nil {
			if auditErr := store.SaveGeneration(ctx, &storage.Generation{
				ApplicationID: applicationID,
				Template:      cfg.Template.Path,
				Status:        storage.StatusFailed,
				Error:         err.Error(),
			}); auditErr != nil {
				logger.Error("failed to record generation", zap.Error(auditErr))
			}
			log.Fatalf("Generation failed: %v", err)
		}

		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			log.Fatalf("Failed to create output dir: %v", err)
		}
		if err := os.WriteFile(outPath, out.Document, 0644); err != nil {
			log.Fatalf("Failed to write document: %v", err)
		}

		r := out.Report
		status := storage.StatusComplete
		if !r.Complete() {
			status = storage.StatusPartial
		}
		rec := &storage.Generation{
			ApplicationID: applicationID,
			Template:      cfg.Template.Path,
			OutputPath:    outPath,
			SizeBytes:     int64(len(out.Document)),
			Requested:     r.Requested,
			Resolved:      r.Resolved,
			Missing:       r.Missing,
			Rounds:        r.Rounds,
			Batches:       r.Batches,
			Status:        status,
		}
		if err := store.SaveGeneration(ctx, rec); err != nil {
			fmt.Printf("⚠️ Failed to record generation: %v\n", err)
		}

		if reportPath != "" {
			if err := r.Save(reportPath); err != nil {
				fmt.Printf("⚠️ Failed to write report: %v\n", err)
			} else {
				fmt.Printf("📊 Report: %s\n", reportPath)
			}
		}

		fmt.Printf("✅ Wrote %s (%d bytes) in %v. Resolved %d/%d placeholders.\n",
			outPath, len(out.Document), time.Since(start).Round(time.Millisecond), r.Resolved, r.Requested)
		if len(r.Missing) > 0 {
			fmt.Printf("⚠️ %d placeholders left as markers:\n", len(r.Missing))
			for _, k := range r.Missing {
				fmt.Printf("   - %s\n", k)
			}
		}
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <generated.docx>",
	Short: "Show markers still present in a generated document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pkg, err := docx.Open(args[0])
		if err != nil {
			log.Fatalf("Failed to open document: %v", err)
		}
		occ, err := placeholder.Locate(pkg)
		if err != nil {
			log.Fatalf("Failed to scan document: %v", err)
		}
		if len(occ) == 0 {
			fmt.Println("✅ No unreplaced placeholders.")
			return
		}

		fmt.Printf("⚠️ Found %d unreplaced placeholders:\n\n", len(occ))
		for i, o := range occ {
			fmt.Printf("%d. %s\n", i+1, o.Raw)
			fmt.Printf("   key:      %s\n", o.Key)
			fmt.Printf("   location: %s\n", o.Where)
			fmt.Printf("   context:  %s\n\n", o.Context)
		}
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <template.docx> <generated.docx>",
	Short: "Compare template placeholders with what remains in a generated document",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		tmpl, err := docx.Open(args[0])
		if err != nil {
			log.Fatalf("Failed to open template: %v", err)
		}
		gen, err := docx.Open(args[1])
		if err != nil {
			log.Fatalf("Failed to open generated document: %v", err)
		}
		diff, err := placeholder.Compare(tmpl, gen)
		if err != nil {
			log.Fatalf("Compare failed: %v", err)
		}

		replaced := len(diff.TemplateKeys) - len(diff.Unreplaced)
		fmt.Printf("📄 Template placeholders: %d\n", len(diff.TemplateKeys))
		fmt.Printf("✅ Replaced: %d\n", replaced)
		if len(diff.Unreplaced) > 0 {
			fmt.Printf("⚠️ Still present (%d):\n", len(diff.Unreplaced))
			for _, k := range diff.Unreplaced {
				fmt.Printf("   - %s\n", k)
			}
		}
		if len(diff.Foreign) > 0 {
			fmt.Printf("❓ Markers not in template (%d):\n", len(diff.Foreign))
			for _, k := range diff.Foreign {
				fmt.Printf("   - %s\n", k)
			}
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent generation runs",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}
		store, err := initStore(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		gens, err := store.ListGenerations(context.Background(), historyLimit)
		if err != nil {
			log.Fatalf("Failed to list generations: %v", err)
		}
		if len(gens) == 0 {
			fmt.Println("No generations recorded yet.")
			return
		}
		for _, g := range gens {
			fmt.Printf("%s  %-8s  %3d/%-3d  %s  %s\n",
				g.CreatedAt.Local().Format("2006-01-02 15:04:05"), g.Status, g.Resolved, g.Requested, g.ID[:8], g.OutputPath)
			if g.Error != "" {
				fmt.Printf("    error: %s\n", g.Error)
			}
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP document generation server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			log.Fatal(err)
		}
		logger, err := newLogger(cfg)
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		defer logger.Sync()

		asm, err := initAssembler(ctx, cfg, logger)
		if err != nil {
			log.Fatal(err)
		}
		store, err := initStore(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer store.Close()

		srv := server.NewServer(&server.Options{
			Address:   cfg.Server.Addr,
			Generator: asm,
			Store:     store,
			OutputDir: cfg.Storage.OutputDir,
			Logger:    logger,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Server failed: %v", err)
			}
		case <-ctx.Done():
			fmt.Println("🛑 Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				fmt.Printf("⚠️ Shutdown error: %v\n", err)
			}
		}
	},
}

func readForm(path string) (llm.FormData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var form llm.FormData
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	// accept a whole application record as well as bare form data
	if inner, ok := form["form_data"].(map[string]any); ok {
		form = inner
	}
	if len(form) == 0 {
		return nil, fmt.Errorf("%s contains no form data", path)
	}
	return form, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
