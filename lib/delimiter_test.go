package lib

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelimiter(t *testing.T) {
	fixtures := []struct {
		name             string
		currentDelimiter string
		newDelimiter     string
		expected         string
	}{
		{"name", "", "", "name"},
		{"name", "n", "", "name"},
		{"name", "", "n", "name"},
		{"name", "n", "n", "name"},
		{"name", ".", "/", "name"},
		{"name", "/", ".", "name"},
		{"folder/name", "/", ".", "folder.name"},
		{"folder.name", ".", "/", "folder/name"},
		{"folder/na.me", "/", ".", "folder.na\\.me"},
		{"folder.na/me", ".", "/", "folder/na\\/me"},
		{"2021/To Do", "/", ".", "2021.To Do"},
	}

	for _, fixture := range fixtures {
		result := VerifyDelimiter(fixture.name, fixture.currentDelimiter, fixture.newDelimiter)
		assert.Equal(t, fixture.expected, result)
	}
}

func TestSplitDelimited(t *testing.T) {
	fixtures := []struct {
		name      string
		delimiter string
		expected  []string
	}{
		{"", ".", []string{""}},
		{"name", ".", []string{"name"}},
		{"name", "", []string{"name"}},
		{"folder.name", ".", []string{"folder", "name"}},
		{"2021.Sent", ".", []string{"2021", "Sent"}},
		{"folder.na\\.me", ".", []string{"folder", "na.me"}},
		{"a::b::c", "::", []string{"a", "b", "c"}},
	}

	for _, fixture := range fixtures {
		assert.Equal(t, fixture.expected, SplitDelimited(fixture.name, fixture.delimiter))
	}
}

func TestDelimiterRoundTrip(t *testing.T) {
	for _, name := range []string{"2021/Sent", "Drafts", "folder/na.me/sub"} {
		converted := VerifyDelimiter(name, "/", ".")
		assert.Equal(t, name, strings.Join(SplitDelimited(converted, "."), "/"))
	}
}
