// Package record is the textual codec of the archive index entries.
//
// A record is serialized as folder::key::flags::mtime where mtime is a
// decimal number of seconds since the epoch, with nanoseconds.
package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
)

const (
	Delimiter = "::"
	// NoValueKey can be found in old indexes with an unreadable value; it is ignored.
	NoValueKey = "None"

	fields = 4
)

// Record describes where a content hash is filed and what is known about it
type Record struct {
	Folder    string
	MessageID string
	Flags     mailbox.Flags
	Mtime     time.Time
}

func New(folder, messageID string, flags mailbox.Flags, mtime time.Time) *Record {
	return &Record{
		Folder:    folder,
		MessageID: messageID,
		Flags:     mailbox.NewFlags(string(flags)),
		Mtime:     mtime,
	}
}

// FromMessage records msg as filed under that key in folder
func FromMessage(folder, key string, msg *mailbox.Message) *Record {
	return New(folder, key, msg.Flags, msg.Mtime)
}

// Parse returns lib.ErrMalformedRecord when value is not a serialized record
func Parse(value string) (*Record, error) {
	parts := strings.Split(value, Delimiter)
	if len(parts) != fields {
		return nil, fmt.Errorf("%w: expected %d fields but found %d in %q", lib.ErrMalformedRecord, fields, len(parts), value)
	}
	mtime, err := parseMtime(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", lib.ErrMalformedRecord, err)
	}
	return &Record{
		Folder:    parts[0],
		MessageID: parts[1],
		Flags:     mailbox.NewFlags(parts[2]),
		Mtime:     mtime,
	}, nil
}

// ValidField is false for a folder name or a key that would not read back:
// it contains the delimiter, or starts or ends with a colon.
func ValidField(value string) bool {
	return !strings.Contains(value, Delimiter) &&
		!strings.HasPrefix(value, ":") &&
		!strings.HasSuffix(value, ":")
}

// Format serializes the record. It returns lib.ErrMalformedRecord when a field
// would make the value unreadable.
func (r *Record) Format() (string, error) {
	for _, field := range []string{r.Folder, r.MessageID} {
		if !ValidField(field) {
			return "", fmt.Errorf("%w: %q cannot be saved in a record", lib.ErrMalformedRecord, field)
		}
	}
	return r.String(), nil
}

func (r *Record) String() string {
	return strings.Join([]string{r.Folder, r.MessageID, string(r.Flags), formatMtime(r.Mtime)}, Delimiter)
}

// MergeFlags adds the flags to the record
func (r *Record) MergeFlags(flags mailbox.Flags) {
	r.Flags = r.Flags.Union(flags)
}

// MergeMtime keeps the earliest time
func (r *Record) MergeMtime(mtime time.Time) {
	r.Mtime = mailbox.MinTime(r.Mtime, mtime)
}

// ShouldUpdate is true when merging the message would change the record:
// an earlier time (a zero time is unknown) or some new flags.
func (r *Record) ShouldUpdate(msg *mailbox.Message) bool {
	return !mailbox.MinTime(r.Mtime, msg.Mtime).Equal(r.Mtime) || !r.Flags.Includes(msg.Flags)
}

func formatMtime(mtime time.Time) string {
	if mtime.IsZero() {
		return "0.0"
	}
	nano := mtime.UnixNano()
	sign := ""
	if nano < 0 {
		sign = "-"
		nano = -nano
	}
	return fmt.Sprintf("%s%d.%09d", sign, nano/int64(time.Second), nano%int64(time.Second))
}

func parseMtime(value string) (time.Time, error) {
	if value == "0.0" || value == "0" {
		return time.Time{}, nil
	}
	seconds, fraction, found := strings.Cut(value, ".")
	if found && len(fraction) == 9 {
		sec, err := strconv.ParseInt(seconds, 10, 64)
		if err == nil {
			nsec, err := strconv.ParseInt(fraction, 10, 64)
			if err == nil && nsec >= 0 {
				if strings.HasPrefix(seconds, "-") {
					nsec = -nsec
				}
				return time.Unix(sec, nsec), nil
			}
		}
	}
	// anything else a float can express
	float, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(float) || math.IsInf(float, 0) {
		return time.Time{}, fmt.Errorf("invalid mtime %q", value)
	}
	sec, frac := math.Modf(float)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))), nil
}
