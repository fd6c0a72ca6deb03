package mailbox

import (
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-maildir"
)

// Flags is a canonical set of single character maildir flags:
// sorted, without duplicates.
type Flags string

const (
	FlagDraft   = 'D'
	FlagFlagged = 'F'
	FlagPassed  = 'P'
	FlagReplied = 'R'
	FlagSeen    = 'S'
	FlagTrashed = 'T'
)

// NewFlags returns the canonical form of any string of flags
func NewFlags(source string) Flags {
	if len(source) == 0 {
		return ""
	}
	chars := []byte(source)
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	output := chars[:1]
	for _, char := range chars[1:] {
		if char != output[len(output)-1] {
			output = append(output, char)
		}
	}
	return Flags(output)
}

func (f Flags) String() string {
	return string(f)
}

// Has returns true when the flag is in the set
func (f Flags) Has(flag byte) bool {
	return strings.IndexByte(string(f), flag) >= 0
}

// Includes returns true when other is a subset of f
func (f Flags) Includes(other Flags) bool {
	for i := 0; i < len(other); i++ {
		if !f.Has(other[i]) {
			return false
		}
	}
	return true
}

// Union returns the canonical union of both sets
func (f Flags) Union(other Flags) Flags {
	return NewFlags(string(f) + string(other))
}

// FlagsFromIMAP converts IMAP system flags. Flags without maildir equivalent are dropped.
func FlagsFromIMAP(source []string) Flags {
	output := make([]byte, 0, len(source))
	for _, flag := range source {
		switch flag {
		case imap.SeenFlag:
			output = append(output, FlagSeen)
		case imap.AnsweredFlag:
			output = append(output, FlagReplied)
		case imap.FlaggedFlag:
			output = append(output, FlagFlagged)
		case imap.DeletedFlag:
			output = append(output, FlagTrashed)
		case imap.DraftFlag:
			output = append(output, FlagDraft)
		}
	}
	return NewFlags(string(output))
}

// IMAP converts the set into IMAP system flags. The passed flag has no IMAP equivalent.
func (f Flags) IMAP() []string {
	output := make([]string, 0, len(f))
	for i := 0; i < len(f); i++ {
		switch f[i] {
		case FlagSeen:
			output = append(output, imap.SeenFlag)
		case FlagReplied:
			output = append(output, imap.AnsweredFlag)
		case FlagFlagged:
			output = append(output, imap.FlaggedFlag)
		case FlagTrashed:
			output = append(output, imap.DeletedFlag)
		case FlagDraft:
			output = append(output, imap.DraftFlag)
		}
	}
	return output
}

func FlagsFromMaildir(source []maildir.Flag) Flags {
	output := make([]byte, 0, len(source))
	for _, flag := range source {
		output = append(output, byte(flag))
	}
	return NewFlags(string(output))
}

func (f Flags) Maildir() []maildir.Flag {
	output := make([]maildir.Flag, len(f))
	for i := 0; i < len(f); i++ {
		output[i] = maildir.Flag(f[i])
	}
	return output
}
