package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
	"github.com/tendant/content-lifecycle/pkg/lifecycle/config"
)

const usage = `Content Lifecycle Admin CLI

Inspects and repairs a repository directly against its database and storage.

USAGE:
  admin <command> [options]

COMMANDS:
  archives             List archived objects
  restore <archive>    Restore an archived object into its folder
  destroy <archive>    Permanently remove an archive and its stream
  changes              Page through the change log
  token                Print the latest change token

ENVIRONMENT VARIABLES:
  Run the server with -help for the full list. DATABASE_URL, STORAGE_URL
  and REPOSITORY_ID are the ones that matter here.

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

OPTIONS:
  --skip=<n>           Archives to skip (archives only, default: 0)
  --limit=<n>          Maximum archives (archives only, default: 100)
  --desc               Newest archives first
  --since=<token>      Read changes after this token (changes only)
  --max=<n>            Maximum changes (changes only, default: 100)
  --principal=<id>     Act as this user (default: system)
  --json               Output as JSON
`

type options struct {
	skip      int
	limit     int
	desc      bool
	since     string
	max       int
	principal string
	json      bool
	args      []string
}

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage, "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage, "\n")
		os.Exit(0)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Keep the table output readable
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()
	svc, cleanup, err := cfg.BuildService(ctx, logger)
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}
	defer cleanup()

	opts := parseOptions(os.Args[2:])
	if opts.principal != "" {
		ctx = lifecycle.WithPrincipal(ctx, opts.principal)
	}
	repositoryID := cfg.RepositoryID

	switch command {
	case "archives":
		handleArchives(ctx, svc, repositoryID, opts)
	case "restore":
		handleRestore(ctx, svc, repositoryID, opts)
	case "destroy":
		handleDestroy(ctx, svc, repositoryID, opts)
	case "changes":
		handleChanges(ctx, svc, repositoryID, opts)
	case "token":
		token, err := svc.LatestChangeToken(ctx, repositoryID)
		if err != nil {
			log.Fatalf("Failed to read change token: %v", err)
		}
		fmt.Println(token)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage, "\n")
		os.Exit(1)
	}
}

func parseOptions(args []string) options {
	opts := options{limit: lifecycle.DefaultArchivePageSize, max: lifecycle.DefaultMaxChanges}
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			opts.args = append(opts.args, arg)
			continue
		}
		key, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !found {
			value = "true"
		}
		switch key {
		case "skip":
			if n, err := strconv.Atoi(value); err == nil {
				opts.skip = n
			}
		case "limit":
			if n, err := strconv.Atoi(value); err == nil {
				opts.limit = n
			}
		case "max":
			if n, err := strconv.Atoi(value); err == nil {
				opts.max = n
			}
		case "desc":
			opts.desc = value == "true"
		case "since":
			opts.since = value
		case "principal":
			opts.principal = value
		case "json":
			opts.json = value == "true"
		}
	}
	return opts
}

func requireArg(opts options, name string) string {
	if len(opts.args) == 0 {
		log.Fatalf("Missing %s argument", name)
	}
	return opts.args[0]
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func handleArchives(ctx context.Context, svc lifecycle.Service, repositoryID string, opts options) {
	archives, err := svc.ListArchives(ctx, repositoryID, opts.skip, opts.limit, opts.desc)
	if err != nil {
		log.Fatalf("Failed to list archives: %v", err)
	}
	if opts.json {
		printJSON(archives)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tORIGINAL\tNAME\tTYPE\tWITH PARENT\tCREATED\n")
	for _, a := range archives {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			a.ID,
			a.OriginalID,
			truncate(a.Name, 30),
			a.Type,
			a.DeletedWithParent,
			a.Created.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d", len(archives))
	if len(archives) == opts.limit {
		fmt.Printf(" (may have more, use --skip=%d to continue)", opts.skip+opts.limit)
	}
	fmt.Println()
}

func handleRestore(ctx context.Context, svc lifecycle.Service, repositoryID string, opts options) {
	archiveID := requireArg(opts, "archive")
	restored, err := svc.RestoreArchive(ctx, repositoryID, archiveID)
	if err != nil {
		log.Fatalf("Failed to restore archive %s: %v", archiveID, err)
	}
	if opts.json {
		printJSON(restored)
		return
	}
	path, err := svc.CalculatePath(ctx, repositoryID, restored)
	if err != nil {
		path = "-"
	}
	fmt.Printf("Restored %s as %s (%s)\n", archiveID, restored.ID, path)
}

func handleDestroy(ctx context.Context, svc lifecycle.Service, repositoryID string, opts options) {
	archiveID := requireArg(opts, "archive")
	if err := svc.DestroyArchive(ctx, repositoryID, archiveID); err != nil {
		log.Fatalf("Failed to destroy archive %s: %v", archiveID, err)
	}
	fmt.Printf("Destroyed %s\n", archiveID)
}

func handleChanges(ctx context.Context, svc lifecycle.Service, repositoryID string, opts options) {
	changes, next, err := svc.LatestChanges(ctx, repositoryID, opts.since, opts.max)
	if err != nil {
		log.Fatalf("Failed to list changes: %v", err)
	}
	if opts.json {
		printJSON(map[string]interface{}{"changes": changes, "next_token": next})
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TOKEN\tTYPE\tOBJECT\tNAME\tBY\tTIME\n")
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Token,
			c.ChangeType,
			c.ObjectID,
			truncate(c.Name, 30),
			c.Creator,
			c.Time.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	fmt.Printf("\nNext token: %s\n", next)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
