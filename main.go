// localehero — keeps translation files in sync with the LocalHero backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/localheroai/cli-sub002/api"
	"github.com/localheroai/cli-sub002/codec"
	"github.com/localheroai/cli-sub002/config"
	"github.com/localheroai/cli-sub002/diff"
	"github.com/localheroai/cli-sub002/i18n"
	"github.com/localheroai/cli-sub002/langmeta"
	"github.com/localheroai/cli-sub002/syncpull"
	"github.com/localheroai/cli-sub002/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "localehero",
		Short: i18n.T("Keep translation files in sync with LocalHero"),
		Long: `localehero — translation file synchronization for LocalHero projects.

Reads localehero.yaml, diffs source files against their per-locale
targets, submits missing keys as translation jobs, and merges completed
translations back while preserving each file's formatting.

Commands:
  status      Show per-locale translation coverage
  init        Create a starter localehero.yaml
  translate   Submit missing keys for translation and merge results
  pull        Apply pending updates from the backend
  auth        Manage the API key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newInitCmd(),
		newTranslateCmd(),
		newPullCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// signalContext installs an interrupt handler so a long run can stop
// between operations with whatever has been merged so far intact.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning(i18n.T("Interrupted, stopping after the current operation..."))
		cancel()
	}()

	return ctx, cancel
}

func loadConfig() *config.Config {
	cfg, err := config.Load(rootDir)
	if err != nil {
		logError("%v", err)
		logInfo("Run 'localehero init' to create a starter config")
		os.Exit(1)
	}
	return cfg
}

func newClient() *api.Client {
	key := config.APIKey()
	if key == "" {
		logError("No API key found. Set LOCALEHERO_API_KEY or run 'localehero auth login'")
		os.Exit(1)
	}
	client := api.New(api.DefaultBaseURL, key)
	client.OnLog = logWarning
	return client
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("localehero version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// status (read-only: config + per-locale coverage)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-locale translation coverage",
		Long: `Show the configured targets and how many keys each output locale
is missing relative to its source file. Does not modify any files.`,
		Run: func(cmd *cobra.Command, args []string) {
			runStatus()
		},
	}

	return cmd
}

func runStatus() {
	cfg := loadConfig()

	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	absRoot, _ := filepath.Abs(rootDir)
	fmt.Fprintf(os.Stderr, "  Root:           %s\n", absRoot)
	fmt.Fprintf(os.Stderr, "  Source locale:  %s\n", cfg.SourceLocale)
	fmt.Fprintf(os.Stderr, "  Output locales: %s\n", strings.Join(cfg.OutputLocales, ", "))
	if cfg.BaseBranch != "" {
		fmt.Fprintf(os.Stderr, "  Base branch:    %s\n", cfg.BaseBranch)
	}
	if key := config.APIKey(); key != "" {
		fmt.Fprintf(os.Stderr, "  API key:        %s\n", config.MaskKey(key))
	} else {
		fmt.Fprintf(os.Stderr, "  API key:        not set\n")
	}
	fmt.Fprintln(os.Stderr)

	fmt.Fprintf(os.Stderr, "%sTranslation Coverage%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	for i, target := range cfg.Targets {
		sourcePath := cfg.SourcePaths()[i]

		name := target.Name
		if name == "" {
			name = target.Source
		}
		fmt.Fprintf(os.Stderr, "\n  %s (%s)\n", name, target.Source)

		src, err := codec.Open(sourcePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "    %ssource unreadable:%s %v\n", colorRed, colorReset, err)
			continue
		}
		sourceEntries := src.Flatten()
		total := len(sourceEntries)
		fmt.Fprintf(os.Stderr, "    source keys: %d\n", total)

		for _, locale := range cfg.OutputLocales {
			targetPath, err := cfg.TargetPath(sourcePath, locale)
			if err != nil {
				continue
			}
			label := locale
			if meta := langmeta.Resolve(locale); meta.Flag != "" {
				label = meta.Flag + " " + locale
			}

			doc, err := codec.OpenTarget(targetPath, sourcePath, locale)
			if err != nil {
				fmt.Fprintf(os.Stderr, "    %-10s %serror:%s %v\n", label, colorRed, colorReset, err)
				continue
			}

			res := diff.FindMissing(sourceEntries, doc.Flatten(), nil)
			translated := total - len(res.Missing) - len(res.Skipped)
			percent := 0
			if total > 0 {
				percent = translated * 100 / total
			}

			statusColor := colorGreen
			if percent < 50 {
				statusColor = colorRed
			} else if percent < 100 {
				statusColor = colorYellow
			}

			fmt.Fprintf(os.Stderr, "    %-10s %s%d%%%s (%d/%d translated",
				label, statusColor, percent, colorReset, translated, total)
			if len(res.Missing) > 0 {
				fmt.Fprintf(os.Stderr, ", %d missing", len(res.Missing))
			}
			if len(res.Skipped) > 0 {
				fmt.Fprintf(os.Stderr, ", %d in progress", len(res.Skipped))
			}
			fmt.Fprintf(os.Stderr, ")\n")
		}
	}

	fmt.Fprintln(os.Stderr)
}

// ---------------------------------------------------------------------------
// init (write starter config)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter localehero.yaml",
		Long: `Write a starter localehero.yaml into the project root.

Refuses to overwrite an existing config. Edit the generated file to
declare your source files and output locales, then run
'localehero translate'.`,
		Run: func(cmd *cobra.Command, args []string) {
			runInit()
		},
	}

	return cmd
}

func runInit() {
	path := filepath.Join(rootDir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		logError("%s already exists", path)
		os.Exit(1)
	}

	if err := config.Starter().Save(rootDir); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	logSuccess("Created %s", path)
	logInfo("Edit it to declare your translation files, then run 'localehero translate'")
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		changedOnly bool
		batchSize   int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Submit missing keys for translation and merge results",
		Long: `Diff each source file against its per-locale targets, submit the
missing keys as translation jobs, and merge completed translations back
into the target files.

Examples:
  # Translate everything that is missing
  localehero translate

  # Only keys changed relative to the base branch
  localehero translate --changed-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(changedOnly, batchSize, timeout)
		},
	}

	cmd.Flags().BoolVar(&changedOnly, "changed-only", false, "Restrict to keys changed vs. the base branch (requires git)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Maximum keys per job batch (0 = default)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-batch wall-clock timeout (0 = default)")

	return cmd
}

func runTranslate(changedOnly bool, batchSize int, timeout time.Duration) error {
	cfg := loadConfig()
	client := newClient()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := translate.Run(ctx, translate.Options{
		Config:       cfg,
		Client:       client,
		ChangedOnly:  changedOnly,
		MaxBatchSize: batchSize,
		Timeout:      timeout,
		OnLog:        logInfo,
		OnResults: func(url string) {
			logInfo("Review results at %s", url)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			logWarning(i18n.T("Interrupted, partial progress saved"))
			os.Exit(0)
		}
		return err
	}

	if summary.SkippedWIP > 0 {
		logInfo("Skipped %d work-in-progress keys", summary.SkippedWIP)
	}
	if summary.MissingKeys == 0 {
		logSuccess(i18n.T("All translations are up to date!"))
		return nil
	}
	logSuccess("Translated %d keys across %d locales", summary.MissingKeys, len(summary.Locales))
	return nil
}

// ---------------------------------------------------------------------------
// pull
// ---------------------------------------------------------------------------

func newPullCmd() *cobra.Command {
	var syncID string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Apply pending updates from the backend",
		Long: `Fetch the pending sync feed, merge updated translations and key
renames into the local files, delete removed keys, and acknowledge the
applied version.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(syncID)
		},
	}

	cmd.Flags().StringVar(&syncID, "sync", "current", "Sync feed to apply")

	return cmd
}

func runPull(syncID string) error {
	cfg := loadConfig()
	client := newClient()

	ctx, cancel := signalContext()
	defer cancel()

	applier := &syncpull.Applier{
		TargetPath: cfg.TargetPath,
		OnLog:      logInfo,
	}
	for _, sourcePath := range cfg.SourcePaths() {
		for _, locale := range cfg.OutputLocales {
			applier.Targets = append(applier.Targets, syncpull.Target{
				SourcePath: sourcePath,
				Locale:     locale,
			})
		}
	}

	stats, err := syncpull.Pull(ctx, client, syncID, applier)
	if err != nil {
		return err
	}

	if stats.TotalUpdates == 0 && stats.TotalDeleted == 0 {
		logSuccess(i18n.T("Already up to date"))
		return nil
	}
	logSuccess("Applied %d updates, removed %d keys", stats.TotalUpdates, stats.TotalDeleted)
	return nil
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API key",
		Long: `Manage the stored LocalHero API key.

The key is read from the LOCALEHERO_API_KEY environment variable first,
then from the credentials file under the user config directory.`,
	}

	cmd.AddCommand(newAuthLoginCmd(), newAuthShowCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "API key: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading key: %w", err)
			}
			key := strings.TrimSpace(line)
			if key == "" {
				return fmt.Errorf("empty API key")
			}
			if err := config.SaveAPIKey(key); err != nil {
				return err
			}
			logSuccess("Stored API key %s", config.MaskKey(key))
			return nil
		},
	}

	return cmd
}

func newAuthShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active API key (masked)",
		Run: func(cmd *cobra.Command, args []string) {
			key := config.APIKey()
			if key == "" {
				logInfo("No API key configured")
				return
			}
			fmt.Println(config.MaskKey(key))
		},
	}

	return cmd
}
