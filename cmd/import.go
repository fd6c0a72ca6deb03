package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/creativeprojects/mailarchive/archive"
	"github.com/creativeprojects/mailarchive/cfg"
	"github.com/creativeprojects/mailarchive/importer"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/mdir"
	"github.com/creativeprojects/mailarchive/source/mbox"
	"github.com/creativeprojects/mailarchive/source/remote"
	"github.com/creativeprojects/mailarchive/term"
	"github.com/spf13/cobra"
)

type importFlags struct {
	mboxes    []string
	accounts  []string
	recursive bool
	dryRun    bool
	check     bool
	workers   int
	throttle  float64
	bwlimit   int
}

var importOptions importFlags

var importCmd = &cobra.Command{
	Use:   "import [maildir...]",
	Short: "Import messages into the archive",
	Long: "\nImport messages from maildirs, mbox files and IMAP accounts into the archive.\n" +
		"Messages already in the archive are only updated when their flags changed.",
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	flag := importCmd.Flags()
	flag.StringArrayVar(&importOptions.mboxes, "mbox", nil, "mbox file to import (can be repeated)")
	flag.StringArrayVar(&importOptions.accounts, "account", nil, "IMAP account from the configuration file to import (can be repeated)")
	flag.BoolVarP(&importOptions.recursive, "recursive", "r", false, "import the subfolders of the maildirs too")
	flag.BoolVarP(&importOptions.dryRun, "dry-run", "n", false, "display what would be done without changing anything")
	flag.BoolVarP(&importOptions.check, "check", "f", false, "check and repair the archive before importing")
	flag.IntVarP(&importOptions.workers, "jobs", "j", 0, "number of concurrent workers (default from the configuration, or 1)")
	flag.Float64Var(&importOptions.throttle, "throttle", 0, "maximum number of messages imported per second")
	flag.IntVar(&importOptions.bwlimit, "bwlimit", 0, "maximum bandwidth used to read local messages, in KiB per second")
}

func runImport(cmd *cobra.Command, args []string) error {
	options := mergeImportFlags(config, importOptions, cmd)
	if len(args) == 0 && len(options.mboxes) == 0 && len(options.accounts) == 0 {
		return errors.New("nothing to import: give a maildir, an mbox file or an account")
	}

	into, opener, err := openArchive(config)
	if err != nil {
		return err
	}
	defer into.Close()

	token := lib.NewCancelToken()
	stop := cancelOnInterrupt(token)
	defer stop()

	if options.check && !options.dryRun {
		term.Infof("checking archive %q", into.Name())
		if err = backupIndex(into); err != nil {
			return err
		}
		report, err := into.Check(token, archive.CheckOptions{Repair: true, Progress: newProgress()})
		if err != nil {
			return err
		}
		displayReport(report)
		if report.Cancelled {
			return lib.ErrCancelled
		}
	}

	layout, _ := mdir.ParseLayout(config.Layout)
	sources := maildirSources(token.Context(), args, layout, options.recursive, into, float64(options.bwlimit)*1024)
	sources = append(sources, mboxSources(options.mboxes)...)

	accounts, err := openAccounts(config, options.accounts)
	if err != nil {
		return err
	}
	defer closeAccounts(accounts)
	for _, account := range accounts {
		mailboxes, err := account.Mailboxes()
		if err != nil {
			return err
		}
		for _, folder := range mailboxes {
			sources = append(sources, folder)
		}
	}
	if len(sources) == 0 {
		return errors.New("no valid source to import")
	}

	if options.workers > 1 && !into.SupportConcurrentHandles() {
		term.Warnf("the %s index doesn't support concurrent writers: importing with one worker", config.Store)
	}
	if options.dryRun {
		term.Info("dry run: the archive is left untouched")
	}
	start := time.Now()
	imp := importer.New(into, opener, importer.Options{
		DryRun:   options.dryRun,
		Workers:  options.workers,
		Throttle: options.throttle,
		Progress: newProgress(),
		Logger:   debugLogger(),
		OnError: func(source, key string, err error) {
			term.Verbosef("error importing %s/%s: %s", source, key, err)
		},
	})
	summary, err := imp.Import(token, sources)
	if err != nil {
		return err
	}
	term.Printf("%d messages in %s: %d added, %d updated, %d existing, %d errors",
		summary.Total(), time.Since(start).Round(time.Millisecond),
		summary.Added, summary.Updated, summary.Existing, summary.Errors)

	if !options.dryRun {
		err = mailbox.AddToHistory(into.HistoryFile(), mailbox.HistoryAction{
			Date:      start,
			Action:    mailbox.ActionImport,
			Sources:   sourceNames(sources),
			Added:     summary.Added,
			Updated:   summary.Updated,
			Existing:  summary.Existing,
			Errors:    summary.Errors,
			Cancelled: summary.Cancelled,
		})
		if err != nil {
			term.Warn(err)
		}
	}
	if summary.Cancelled {
		term.Warn("import cancelled")
		return lib.ErrCancelled
	}
	return nil
}

// mergeImportFlags fills in the values not given on the command line from the configuration
func mergeImportFlags(config *cfg.Config, flags importFlags, cmd *cobra.Command) importFlags {
	if !cmd.Flags().Changed("jobs") {
		flags.workers = config.Workers
	}
	if !cmd.Flags().Changed("throttle") {
		flags.throttle = config.Throttle
	}
	if !cmd.Flags().Changed("bwlimit") {
		flags.bwlimit = config.BWLimit
	}
	return flags
}

// maildirSources opens the maildirs, skipping the invalid ones and the archive itself
func maildirSources(ctx context.Context, paths []string, layout mdir.Layout, recursive bool, into *archive.Archive, readLimit float64) []mailbox.Reader {
	exclude := ""
	if tree, ok := into.Tree().(*mdir.Maildir); ok {
		exclude = tree.Root()
	}
	sources := make([]mailbox.Reader, 0, len(paths))
	for _, path := range paths {
		tree, err := mdir.Open(cfg.CleanPath(path), layout)
		if err != nil {
			term.Warnf("skipping %s: %s", path, err)
			continue
		}
		tree.DebugLogger(debugLogger())
		tree.SetReadLimit(readLimit)
		tree.SetContext(ctx)
		names := []string{tree.Name()}
		if recursive {
			names, err = tree.ListFolders()
			if err != nil {
				term.Warnf("skipping %s: %s", path, err)
				continue
			}
		}
		for _, name := range names {
			folder, err := tree.GetFolder(name)
			if err != nil {
				term.Warnf("skipping %s: %s", name, err)
				continue
			}
			if isInside(folder.Path(), exclude) {
				term.Debugf("skipping %s: inside the archive", name)
				continue
			}
			sources = append(sources, folder)
		}
	}
	return sources
}

func mboxSources(paths []string) []mailbox.Reader {
	sources := make([]mailbox.Reader, 0, len(paths))
	for _, path := range paths {
		reader, err := mbox.NewWithLogger(cfg.CleanPath(path), debugLogger())
		if err != nil {
			term.Warnf("skipping %s: %s", path, err)
			continue
		}
		sources = append(sources, reader)
	}
	return sources
}

func openAccounts(config *cfg.Config, names []string) ([]*remote.Imap, error) {
	accounts := make([]*remote.Imap, 0, len(names))
	for _, name := range names {
		account, ok := config.Accounts[name]
		if !ok {
			closeAccounts(accounts)
			return nil, fmt.Errorf("account not found: %s", name)
		}
		client, err := remote.NewImap(remote.Config{
			ServerURL:           account.ServerURL,
			Username:            account.Username,
			Password:            account.Password,
			NoTLS:               account.NoTLS,
			SkipTLSVerification: account.SkipTLSVerification,
			Compress:            account.Compress,
			DebugLogger:         debugLogger(),
		})
		if err != nil {
			closeAccounts(accounts)
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		accounts = append(accounts, client)
	}
	return accounts, nil
}

func closeAccounts(accounts []*remote.Imap) {
	for _, account := range accounts {
		_ = account.Close()
	}
}

func sourceNames(sources []mailbox.Reader) []string {
	names := make([]string, len(sources))
	for i, source := range sources {
		names[i] = source.Name()
	}
	return names
}

// isInside returns true when path is dir or one of its subdirectories
func isInside(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
