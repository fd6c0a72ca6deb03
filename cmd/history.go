package cmd

import (
	"strconv"
	"strings"

	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const dateFormat = "2006-01-02 15:04:05 MST"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display the history of the runs against the archive",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	into, _, err := openArchive(config)
	if err != nil {
		return err
	}
	defer into.Close()

	history, err := mailbox.GetHistoryFromFile(into.HistoryFile())
	if err != nil {
		return err
	}
	if len(history.Actions) == 0 {
		term.Warn("No history for this archive")
		return nil
	}
	err = historyTable(history).Render()
	if err != nil {
		return err
	}
	if last := mailbox.FindLastAction(history, mailbox.ActionRepair); last != nil {
		term.Infof("last repair on %s", last.Date.Format(dateFormat))
	} else if last := mailbox.FindLastAction(history, mailbox.ActionCheck); last != nil {
		term.Infof("last check on %s (never repaired)", last.Date.Format(dateFormat))
	}
	return nil
}

func historyTable(history *mailbox.History) *pterm.TablePrinter {
	table := pterm.DefaultTable.WithBoxed(true).WithHasHeader().WithData(pterm.TableData{
		{"Date", "Action", "Added", "Updated", "Existing", "Deleted", "Errors", "Findings", "Sources"},
	})
	for _, action := range history.Actions {
		name := action.Action
		if action.Cancelled {
			name += " (cancelled)"
		}
		table.Data = append(table.Data, []string{
			action.Date.Format(dateFormat),
			name,
			strconv.Itoa(action.Added),
			strconv.Itoa(action.Updated),
			strconv.Itoa(action.Existing),
			strconv.Itoa(action.Deleted),
			strconv.Itoa(action.Errors),
			strconv.Itoa(action.Findings),
			strings.Join(action.Sources, ", "),
		})
	}
	return table
}
