package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"docuchat/api"
	"docuchat/config"
	"docuchat/db"
	"docuchat/engine"
	"docuchat/logger"
	"docuchat/models"
	"docuchat/store"
	"docuchat/ui"
)

const version = "1.0.0"

// app holds everything a command needs
type app struct {
	cfg      *config.Config
	log      logger.Logger
	db       *db.DB
	client   *api.Client
	projects *store.ProjectStore
	files    *store.FileStore
	engine   *engine.Engine
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--version", "-v":
			fmt.Printf("DocuChat v%s\n", version)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tui := len(args) == 0
	a, err := setup(tui)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if tui {
		err = runTUI(ctx, a)
	} else {
		err = runCommand(ctx, a, args[0], args[1:])
	}
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, opens the database and builds the stores. In TUI mode
// logs only go to the log file so they do not corrupt the screen.
func setup(tui bool) (*app, error) {
	cfg, err := config.Load(os.Getenv("DOCUCHAT_CONFIG"))
	if err != nil {
		return nil, err
	}

	outputs := []string{cfg.Log.File}
	if !tui {
		outputs = append(outputs, "stderr")
	}
	l, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(outputs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	database, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	storeLog := l.Named("store")
	projects, err := store.NewProjectStore(database, storeLog)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	files, err := store.NewFileStore(database, storeLog)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load files: %w", err)
	}

	client := api.NewClient(cfg.API, l)
	l.Info("docuchat starting",
		logger.String("version", version),
		logger.String("api", client.BaseURL()),
		logger.String("db", cfg.Storage.DBPath),
	)

	return &app{
		cfg:      cfg,
		log:      l,
		db:       database,
		client:   client,
		projects: projects,
		files:    files,
		engine:   engine.New(client, projects, files, cfg.Processing, l),
	}, nil
}

// close flushes the stores and releases the database
func (a *app) close() error {
	var errs []error
	if err := a.projects.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.files.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func runTUI(ctx context.Context, a *app) error {
	m, err := ui.NewModel(ctx, a.engine)
	if err != nil {
		return fmt.Errorf("failed to create UI model: %w", err)
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, a *app, name string, args []string) error {
	switch name {
	case "health":
		return handleHealth(ctx, a)
	case "projects":
		return handleProjects(a)
	case "new":
		return handleNew(a, args)
	case "delete":
		return handleDelete(a, args)
	case "files":
		return handleFiles(a, args)
	case "upload":
		return handleUpload(ctx, a, args)
	case "process":
		return handleProcess(ctx, a, args)
	case "status":
		return handleStatus(ctx, a, args)
	case "ask":
		return handleAsk(ctx, a, args)
	}
	printHelp()
	return fmt.Errorf("unknown command %q", name)
}

func handleHealth(ctx context.Context, a *app) error {
	h, err := a.client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Backend %s is %s\n", a.client.BaseURL(), h.Status)
	for _, key := range []string{"app_name", "app_version"} {
		if v, ok := h.Fields[key]; ok {
			fmt.Printf("  %s: %v\n", key, v)
		}
	}
	return nil
}

func handleProjects(a *app) error {
	projects := a.projects.List()
	if len(projects) == 0 {
		fmt.Println("No projects yet. Create one with 'docuchat new <name>'.")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%4d  %-30s %3d docs  %s\n", p.ID, p.Name, p.DocumentCount, p.Description)
	}
	return nil
}

func handleNew(a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: docuchat new <name> [description]")
	}
	p, err := a.engine.CreateProject(args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("Created project %d: %s\n", p.ID, p.Name)
	return nil
}

func handleDelete(a *app, args []string) error {
	p, err := projectArg(a, args, "usage: docuchat delete <project-id>")
	if err != nil {
		return err
	}
	if err := a.engine.DeleteProject(p.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted project %d: %s\n", p.ID, p.Name)
	return nil
}

func handleFiles(a *app, args []string) error {
	p, err := projectArg(a, args, "usage: docuchat files <project-id>")
	if err != nil {
		return err
	}
	files := a.files.ListByProject(p.ID)
	if len(files) == 0 {
		fmt.Println("No documents in this project.")
		return nil
	}
	for _, f := range files {
		line := fmt.Sprintf("%-28s %-10s %10s  %s", f.ID, f.Status, f.Size, f.Name)
		if f.Error != "" {
			line += "  (" + f.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func handleUpload(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: docuchat upload <project-id> <path>...")
	}
	p, err := projectArg(a, args[:1], "")
	if err != nil {
		return err
	}
	results, err := a.engine.UploadFiles(ctx, p.ID, args[1:])
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Printf("✓ %s (%s) -> %s [%s]\n", r.File.Name, r.File.Size, r.File.FileID, r.File.Status)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	return nil
}

func handleProcess(ctx context.Context, a *app, args []string) error {
	p, err := projectArg(a, args, "usage: docuchat process <project-id>")
	if err != nil {
		return err
	}
	params := a.engine.ProcessParams()
	processed, failed := 0, 0
	for _, f := range a.files.ListByProject(p.ID) {
		if !f.Uploaded() || f.Status == models.StatusIndexed {
			continue
		}
		if err := a.engine.ProcessFile(ctx, f.ID, params); err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", f.Name, err)
			continue
		}
		processed++
		fmt.Printf("✓ %s indexed\n", f.Name)
	}
	if processed == 0 && failed == 0 {
		fmt.Println("Nothing to process.")
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed to process", failed)
	}
	return nil
}

func handleStatus(ctx context.Context, a *app, args []string) error {
	p, err := projectArg(a, args, "usage: docuchat status <project-id>")
	if err != nil {
		return err
	}
	info, ok, err := a.engine.IndexStatus(ctx, p.ID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s: nothing indexed yet\n", p.Name)
		return nil
	}
	fmt.Printf("%s: %s documents, %s chunks\n", p.Name, countOrUnknown(info.TotalDocuments), countOrUnknown(info.TotalChunks))
	return nil
}

func handleAsk(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: docuchat ask <project-id> <question>")
	}
	p, err := projectArg(a, args[:1], "")
	if err != nil {
		return err
	}
	msg, err := a.engine.NewChat(p.ID).Send(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Println(msg.Content)
	if len(msg.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range msg.Sources {
			if s.Score != nil {
				fmt.Printf("  - %s (%.2f)\n", s.Label, *s.Score)
			} else {
				fmt.Printf("  - %s\n", s.Label)
			}
		}
	}
	return nil
}

// projectArg resolves the first argument to an existing project
func projectArg(a *app, args []string, usage string) (models.Project, error) {
	if len(args) == 0 {
		return models.Project{}, errors.New(usage)
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return models.Project{}, fmt.Errorf("invalid project id %q", args[0])
	}
	p, ok := a.projects.Get(uint(id))
	if !ok {
		return models.Project{}, fmt.Errorf("%w: %d", engine.ErrUnknownProject, id)
	}
	return p, nil
}

func countOrUnknown(n *int) string {
	if n == nil {
		return "?"
	}
	return strconv.Itoa(*n)
}

func printHelp() {
	fmt.Printf(`DocuChat v%s - Chat with your documents

USAGE:
    docuchat [command]

COMMANDS:
    health                          Check that the RAG backend is reachable
    projects                        List projects
    new <name> [description]        Create a project
    delete <project-id>             Delete a project and its local file records
    files <project-id>              List a project's documents
    upload <project-id> <path>...   Upload .pdf, .docx or .txt files (folders are scanned)
    process <project-id>            Index every uploaded document not yet indexed
    status <project-id>             Show what the backend has indexed
    ask <project-id> <question>     Ask a question about a project's documents
    --help, -h                      Show this help message
    --version, -v                   Show version information

INTERACTIVE MODE (default):
    When no command is provided, DocuChat starts in interactive mode.

KEYBOARD SHORTCUTS:
    enter           Open project
    n               New project
    d               Delete project (type DELETE to confirm)
    /               Filter projects
    tab             Switch between the Files and Chat tabs
    u / p / x       Upload, process or remove documents (Files tab)
    ctrl+n          Insert a suggested question (Chat tab)
    esc             Back
    q, ctrl+c       Quit

CONFIGURATION:
    DOCUCHAT_CONFIG        Path to a YAML config file
    DOCUCHAT_API_URL       Backend base URL (default %s)
    DOCUCHAT_DB_PATH       Local database path
    DOCUCHAT_LOG_LEVEL     debug, info, warn or error
    DOCUCHAT_LOG_FILE      Log file path
    DOCUCHAT_API_TIMEOUT   Request timeout, e.g. 30s (default none)
    DOCUCHAT_AUTO_INDEX    Index documents right after upload
`, version, config.DefaultAPIURL)
}
