package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

const HistoryFilename = "history.json"

const (
	ActionImport = "IMPORT"
	ActionCheck  = "CHECK"
	ActionRepair = "REPAIR"
)

// History of the runs against an archive. It is informative only:
// runs always start again from the top.
type History struct {
	Actions []HistoryAction
}

type HistoryAction struct {
	Date      time.Time
	Action    string
	Sources   []string `json:",omitempty"`
	Added     int
	Updated   int
	Existing  int
	Deleted   int
	Errors    int
	Findings  int
	Cancelled bool
}

func GetHistoryFromFile(filename string) (*History, error) {
	history := &History{}
	file, err := os.Open(filename)
	if err != nil {
		// return an empty history instead
		return history, nil
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(history)
	if err != nil {
		return nil, fmt.Errorf("error reading history file: %w", err)
	}

	sort.SliceStable(history.Actions, func(i, j int) bool {
		return history.Actions[i].Date.Before(history.Actions[j].Date)
	})
	return history, nil
}

func SaveHistoryToFile(filename string, history *History) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot save history: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(history)
	if err != nil {
		return fmt.Errorf("cannot encode history: %w", err)
	}
	return nil
}

// AddToHistory appends the actions to the history file, creating it if needed
func AddToHistory(filename string, actions ...HistoryAction) error {
	history, err := GetHistoryFromFile(filename)
	if err != nil {
		// just create a new file instead of failing
		history = &History{}
	}
	history.Actions = append(history.Actions, actions...)
	return SaveHistoryToFile(filename, history)
}

// FindLastAction returns the latest action of that kind, or nil
func FindLastAction(history *History, action string) *HistoryAction {
	if history == nil {
		return nil
	}
	var last *HistoryAction
	for i := range history.Actions {
		if history.Actions[i].Action != action {
			continue
		}
		if last == nil || history.Actions[i].Date.After(last.Date) {
			last = &history.Actions[i]
		}
	}
	return last
}
