package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"paper-rag/internal/analyzer"
	"paper-rag/internal/archive"
	"paper-rag/internal/chunker"
	"paper-rag/internal/cleaner"
	"paper-rag/internal/config"
	"paper-rag/internal/embedding"
	"paper-rag/internal/export"
	"paper-rag/internal/helper"
	"paper-rag/internal/llmservice"
	"paper-rag/internal/models"
	"paper-rag/internal/parser"
	"paper-rag/internal/rag"
	"paper-rag/internal/server"
	"paper-rag/internal/session"
	"paper-rag/internal/tui"
	"paper-rag/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

type app struct {
	store    vectorstore.Store
	service  *rag.Service
	session  *session.Session
	insights *analyzer.Insights
	archive  *archive.Archive
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	files := flag.String("file", "", "Comma separated paths of documents to ingest ("+strings.Join(parser.SupportedExtensions, " ")+")")
	query := flag.String("query", "", "Question to be answered")
	dryRun := flag.Bool("dry-run", false, "Extract, clean and chunk only, do not embed")
	analyze := flag.Bool("analyze", false, "Print an analysis of each document")
	useTUI := flag.Bool("tui", false, "Start the interactive chat")
	serve := flag.Bool("serve", false, "Start the HTTP server")
	exportFormat := flag.String("export", "", "Export the conversation as json, md, html or pdf")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.Log.Level)
	log.Debug().Interface("config", cfg.RAG).Msg("Loaded config")

	paths := splitPaths(*files)

	if *dryRun {
		if len(paths) == 0 {
			log.Fatal().Msg("Please provide documents using the -file flag")
		}
		dryRunFiles(cfg, paths)
		return
	}

	if *analyze && len(paths) > 0 && *query == "" && !*useTUI && !*serve {
		analyzeFiles(paths)
		return
	}

	for _, key := range cfg.MissingKeys() {
		log.Warn().Str("env", key).Msg("Missing API key")
	}

	a, err := setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing")
	}
	defer a.close()

	if len(paths) > 0 {
		if err := a.ingest(ctx, paths); err != nil {
			log.Fatal().Err(err).Msg("Error ingesting documents")
		}
	} else if !a.service.Restore(a.session) {
		log.Warn().Msg("No documents loaded, provide some with -file")
	}

	if *analyze {
		a.printAnalysis(ctx)
	}

	switch {
	case *serve:
		if err := server.New(a.service, a.session, a.insights, a.archive).Run(ctx, cfg.Server.Addr); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	case *useTUI:
		if err := a.runTUI(ctx); err != nil {
			log.Fatal().Err(err).Msg("TUI error")
		}
	case *query != "":
		if err := a.ask(ctx, *query); err != nil {
			log.Fatal().Err(err).Msg("Error querying")
		}
	}

	if *exportFormat != "" {
		if err := a.export(*exportFormat); err != nil {
			log.Fatal().Err(err).Msg("Error exporting conversation")
		}
	}
}

func setLogLevel(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setup(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	store, err := vectorstore.New(ctx, cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	chat, err := llmservice.NewChatModel(ctx, &cfg.ChatLLM)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("chat model: %w", err)
	}
	service, err := rag.NewService(&cfg.RAG, store, chat)
	if err != nil {
		store.Close()
		return nil, err
	}
	sess, err := session.New(models.ExplanationLevel(cfg.RAG.ExplanationLevel))
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		store:    store,
		service:  service,
		session:  sess,
		insights: analyzer.NewInsights(chat),
	}
	if cfg.Archive.Enabled {
		arc, err := archive.Open(cfg.Archive.Path, false)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.archive = arc
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing vector store")
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing archive")
		}
	}
}

func (a *app) ingest(ctx context.Context, paths []string) error {
	uploads := make([]rag.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Error().Err(err).Str("path", p).Msg("Error reading file")
			continue
		}
		uploads = append(uploads, rag.Upload{Filename: filepath.Base(p), Data: data})
	}

	report, err := a.service.Ingest(ctx, a.session, uploads)
	if report != nil {
		for _, f := range report.Failed {
			log.Warn().Str("filename", f.Filename).Str("error", f.Error).Msg("File skipped")
		}
		for _, f := range report.Processed {
			log.Info().
				Str("filename", f.Filename).
				Int("pages", f.Pages).
				Int("chunks", f.Chunks).
				Float64("reduction", f.Stats.ReductionPercent).
				Msg("File processed")
		}
	}
	return err
}

func (a *app) ask(ctx context.Context, question string) error {
	turn, err := a.service.Ask(ctx, a.session, question)
	if err != nil {
		return err
	}

	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Printf("%s %s\n\n", boldCyan("Question:"), question)
	fmt.Printf("%s %s\n\n", boldGreen("Answer:"), turn.Answer)
	if len(turn.Sources) > 0 {
		fmt.Println(boldCyan("Sources:"))
		for _, s := range turn.Sources {
			fmt.Printf("  %s %s\n", boldGreen(fmt.Sprintf("[%s #%d %.2f]", s.Chunk.Source, s.Chunk.ChunkID, s.Score)),
				faint(strings.Join(strings.Fields(s.Chunk.Content), " ")))
		}
		fmt.Println()
	}
	return nil
}

func (a *app) runTUI(ctx context.Context) error {
	summary := fmt.Sprintf("%d documents, %d chunks indexed", len(a.session.Documents()), a.store.Count())
	m := tui.New(ctx, tui.NewSessionPort(a.service, a.session), summary)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (a *app) export(format string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(a.session.Documents()))
	for _, d := range a.session.Documents() {
		names = append(names, d.Filename)
	}
	t := export.NewTranscript(a.session.ID, names, a.session.History())
	if a.archive != nil {
		if err := a.archive.Save(t); err != nil {
			return err
		}
	}
	data, err := export.Render(t, f)
	if err != nil {
		return err
	}
	filename := t.Filename(f)
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return err
	}
	log.Info().Str("file", filename).Int("turns", len(t.Conversations)).Msg("Conversation exported")
	return nil
}

func (a *app) printAnalysis(ctx context.Context) {
	for _, d := range a.session.Documents() {
		fmt.Printf("== %s ==\n", d.Filename)
		helper.PrettyPrint(a.insights.Report(ctx, d.RawText(), true))
	}
}

// analyzeFiles prints the deterministic analysis without contacting any model
func analyzeFiles(paths []string) {
	for _, p := range paths {
		doc, err := parser.ExtractFile(p)
		if err != nil {
			log.Error().Err(err).Str("path", p).Msg("Error parsing document")
			continue
		}
		fmt.Printf("== %s ==\n", doc.Filename)
		helper.PrettyPrint(analyzer.Analyze(doc.RawText()))
	}
}

func dryRunFiles(cfg *config.Config, paths []string) {
	cl, err := cleaner.New(cfg.RAG.ExtraCleaningPatterns...)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building cleaner")
	}
	ch := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.SectionMarkers)

	for _, p := range paths {
		doc, err := parser.ExtractFile(p)
		if err != nil {
			log.Error().Err(err).Str("path", p).Msg("Error parsing document")
			continue
		}
		raw := doc.RawText()
		chunks := ch.Chunk(doc.Filename, cl.Clean(raw))
		log.Info().
			Str("filename", doc.Filename).
			Int("pages", len(doc.Pages)).
			Int("chunks", len(chunks)).
			Msg("Parsed document")
		helper.PrettyPrint(cl.Stats(raw))
		helper.PrettyPrint(chunks)
	}
}
