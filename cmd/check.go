package cmd

import (
	"fmt"
	"time"

	"github.com/creativeprojects/mailarchive/archive"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/term"
	"github.com/spf13/cobra"
)

var repair bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the archive index against the archive folders",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&repair, "repair", false, "repair the inconsistencies found")
}

func runCheck(cmd *cobra.Command, args []string) error {
	into, _, err := openArchive(config)
	if err != nil {
		return err
	}
	defer into.Close()

	token := lib.NewCancelToken()
	stop := cancelOnInterrupt(token)
	defer stop()

	if repair {
		if err = backupIndex(into); err != nil {
			return err
		}
	}
	start := time.Now()
	report, err := into.Check(token, archive.CheckOptions{Repair: repair, Progress: newProgress()})
	if err != nil {
		return err
	}
	displayReport(report)

	action := mailbox.ActionCheck
	if repair {
		action = mailbox.ActionRepair
	}
	err = mailbox.AddToHistory(into.HistoryFile(), mailbox.HistoryAction{
		Date:      start,
		Action:    action,
		Added:     report.Added,
		Updated:   report.Updated,
		Deleted:   report.Deleted,
		Findings:  len(report.Findings),
		Cancelled: report.Cancelled,
	})
	if err != nil {
		term.Warn(err)
	}

	if report.Cancelled {
		term.Warn("check cancelled")
		return lib.ErrCancelled
	}
	if unresolved := len(report.Unresolved()); unresolved > 0 {
		return fmt.Errorf("%d unresolved findings", unresolved)
	}
	return nil
}

func displayReport(report *archive.Report) {
	for _, finding := range report.Findings {
		term.Verbose(finding.String())
	}
	term.Printf("%d records, %d messages: %d findings, %d added, %d updated, %d moved, %d deleted",
		report.Records, report.Messages, len(report.Findings),
		report.Added, report.Updated, report.Moved, report.Deleted)
}
