package cmd

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Display the folders of the archive",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	into, _, err := openArchive(config)
	if err != nil {
		return err
	}
	defer into.Close()

	names, err := into.Tree().ListFolders()
	if err != nil {
		return fmt.Errorf("cannot list archive folders: %w", err)
	}
	table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Folder", "Messages"},
	})
	total := 0
	for _, name := range names {
		var messages string
		folder, err := into.Tree().GetFolder(name)
		if err == nil {
			keys, err := folder.Keys()
			if err == nil {
				messages = strconv.Itoa(len(keys))
				total += len(keys)
			}
		}
		table.Data = append(table.Data, []string{name, messages})
	}
	records, err := into.Store().Keys()
	if err != nil {
		return fmt.Errorf("cannot read archive index: %w", err)
	}
	table.Data = append(table.Data,
		[]string{"Total", strconv.Itoa(total)},
		[]string{"Index (" + config.Store + ")", strconv.Itoa(len(records))},
	)
	return table.Render()
}
