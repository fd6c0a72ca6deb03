package mailbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEmptyHistory(t *testing.T) {
	history, err := GetHistoryFromFile("/file_really_should_not_exist_here")
	assert.NoError(t, err)
	assert.Equal(t, &History{}, history) // empty history
}

func TestGetInvalidHistory(t *testing.T) {
	filename := filepath.Join(t.TempDir(), HistoryFilename)
	require.NoError(t, os.WriteFile(filename, []byte("{not json"), 0600))

	_, err := GetHistoryFromFile(filename)
	assert.Error(t, err)
}

func TestSaveAndLoadHistory(t *testing.T) {
	history := &History{
		Actions: []HistoryAction{
			{
				Date:     time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC),
				Action:   ActionImport,
				Sources:  []string{"INBOX", "Sent"},
				Added:    10,
				Updated:  2,
				Existing: 3,
			},
			{
				Date:      time.Date(2022, 1, 2, 10, 0, 0, 0, time.UTC),
				Action:    ActionCheck,
				Findings:  1,
				Cancelled: true,
			},
		},
	}
	filename := filepath.Join(t.TempDir(), HistoryFilename)
	err := SaveHistoryToFile(filename, history)
	require.NoError(t, err)

	loaded, err := GetHistoryFromFile(filename)
	require.NoError(t, err)

	assert.Equal(t, history, loaded)
}

func TestAddToHistoryKeepsOrder(t *testing.T) {
	filename := filepath.Join(t.TempDir(), HistoryFilename)
	later := HistoryAction{Date: time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC), Action: ActionImport, Added: 2}
	earlier := HistoryAction{Date: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), Action: ActionImport, Added: 1}

	require.NoError(t, AddToHistory(filename, later))
	require.NoError(t, AddToHistory(filename, earlier))

	history, err := GetHistoryFromFile(filename)
	require.NoError(t, err)
	require.Len(t, history.Actions, 2)
	assert.Equal(t, 1, history.Actions[0].Added)
	assert.Equal(t, 2, history.Actions[1].Added)
}

func TestFindLastAction(t *testing.T) {
	history := &History{
		Actions: []HistoryAction{
			{Date: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), Action: ActionImport, Added: 1},
			{Date: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), Action: ActionCheck},
			{Date: time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC), Action: ActionImport, Added: 2},
		},
	}
	last := FindLastAction(history, ActionImport)
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Added)

	assert.Nil(t, FindLastAction(history, ActionRepair))
	assert.Nil(t, FindLastAction(nil, ActionImport))
}
