package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/creativeprojects/mailarchive/term"
	"github.com/spf13/cobra"
)

const (
	repositoryOwner = "creativeprojects"
	repositoryName  = "mailarchive"
	detectTimeout   = 30 * time.Second
)

var (
	appVersion = ""
	appCommit  = ""
	appDate    = ""
	appBuiltBy = ""
)

var checkOnly bool

var selfUpdateCmd = &cobra.Command{
	Use:   "selfupdate",
	Short: "Download the latest release from GitHub and replace the running binary",
	RunE:  runSelfUpdate,
}

func init() {
	rootCmd.AddCommand(selfUpdateCmd)
	selfUpdateCmd.Flags().BoolVar(&checkOnly, "check", false, "only display the latest version available")
}

// SetVersion is called by main with the values set at build time
func SetVersion(version, commit, date, builtBy string) {
	appVersion = version
	appCommit = commit
	appDate = date
	appBuiltBy = builtBy
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built on %s by %s)", version, commit, date, builtBy)
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	if global.debug {
		selfupdate.SetLogger(debugLogger())
	}
	// the error is only returned for invalid filters
	updater, _ := selfupdate.NewUpdater(selfupdate.Config{
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"},
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), detectTimeout)
	defer cancel()
	latest, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(repositoryOwner, repositoryName))
	if err != nil {
		return fmt.Errorf("unable to detect latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release for %s/%s in the github repository", runtime.GOOS, runtime.GOARCH)
	}

	if isDevelopmentVersion(appVersion) {
		term.Warnf("Development build %q: the latest release is %s", appVersion, latest.Version())
		return nil
	}
	if latest.LessOrEqual(appVersion) {
		term.Infof("Current version (%s) is the latest", appVersion)
		return nil
	}
	if checkOnly {
		term.Infof("Version %s is available (current version is %s)", latest.Version(), appVersion)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return errors.New("could not locate executable path")
	}
	if err := updater.UpdateTo(cmd.Context(), latest, exe); err != nil {
		return fmt.Errorf("unable to update binary: %w", err)
	}
	term.Infof("Successfully updated to version %s", latest.Version())
	return nil
}

// isDevelopmentVersion is true for a binary that wasn't built by the release process
func isDevelopmentVersion(version string) bool {
	return version == "" || strings.HasSuffix(version, "-dev")
}
