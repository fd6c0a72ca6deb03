package cmd

import (
	"errors"
	"os"

	"github.com/creativeprojects/mailarchive/cfg"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mdir"
	"github.com/creativeprojects/mailarchive/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mailarchive",
	Short: "Archive mail into a de-duplicated maildir",
	Long: "\nArchive mail into a de-duplicated maildir.\n" +
		"Messages are filed into one folder per year and indexed by the hash of their content.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig, initLog)
	flag := rootCmd.PersistentFlags()
	flag.StringVarP(&global.configFile, "config", "c", cfg.DefaultFilename, "configuration file")
	flag.BoolVarP(&global.quiet, "quiet", "q", false, "only display warnings and errors")
	flag.BoolVarP(&global.verbose, "verbose", "v", false, "display every message and finding")
	flag.BoolVarP(&global.debug, "debug", "d", false, "display debugging information")
	flag.StringVarP(&global.maildir, "maildir", "m", "", "maildir receiving the archive (default $MAILDIR or ~/Maildir)")
	flag.StringVarP(&global.archive, "archive", "a", "", "name of the archive folder (default \"Archive\")")
	flag.BoolVarP(&global.fsLayout, "fs", "l", false, "use the nested directory layout instead of maildir++")
	flag.StringVar(&global.store, "store", "", "index backend: bolt, sqlite, symlink or memory (default \"bolt\")")
}

func initConfig() {
	var err error
	config, err = cfg.LoadFromFile(global.configFile)
	if err != nil {
		term.Errorf("cannot open or read configuration file: %s", err)
		os.Exit(1)
	}
	applyFlags(config, global)
	if err = config.Validate(); err != nil {
		term.Errorf("invalid configuration: %s", err)
		os.Exit(1)
	}
}

// applyFlags overrides the configuration with the flags set on the command line
func applyFlags(config *cfg.Config, flags GlobalFlags) {
	if flags.maildir != "" {
		config.Maildir = flags.maildir
	}
	if flags.archive != "" {
		config.Archive = flags.archive
	}
	if flags.fsLayout {
		config.Layout = string(mdir.LayoutFS)
	}
	if flags.store != "" {
		config.Store = flags.store
	}
}

func initLog() {
	switch {
	case global.debug:
		term.SetLevel(term.LevelDebug)
	case global.verbose:
		term.SetLevel(term.LevelVerbose)
	case global.quiet:
		term.SetLevel(term.LevelWarn)
	}
}

// debugLogger returns the logger given to the components
func debugLogger() lib.Logger {
	if global.debug {
		return term.Logger()
	}
	return &lib.NoLog{}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, lib.ErrCancelled) {
			term.Error(err)
		}
		os.Exit(1)
	}
}
