package lib

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

const charset = "abcdefghijklmnopqrstuvwxyz " +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 " +
	",./;'\\ \" []{}<>?:|!@£$%^&*()_+-= " +
	"\r\n\r\n\r\n "

const flagset = "DFPRST"

var seededRand *rand.Rand = rand.New(
	rand.NewSource(time.Now().UnixMilli()))

func stringWithCharset(length int, charset string) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// Email describes a message built by GenerateEmail.
// An empty Body is replaced by some random text.
type Email struct {
	From    string
	To      string
	Subject string
	Date    time.Time
	Headers map[string]string
	Body    string
}

// GenerateEmail returns the raw RFC 5322 content of a test message.
func GenerateEmail(email Email) []byte {
	if email.From == "" {
		email.From = "contact@example.org"
	}
	if email.To == "" {
		email.To = "contact@example.org"
	}
	if email.Subject == "" {
		email.Subject = "A little message, just for you"
	}
	if email.Date.IsZero() {
		email.Date = time.Date(2016, 5, 11, 14, 31, 59, 0, time.UTC)
	}
	if email.Body == "" {
		email.Body = stringWithCharset(seededRand.Intn(3000)+1, charset)
	}
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "From: %s\r\n", email.From)
	fmt.Fprintf(builder, "To: %s\r\n", email.To)
	fmt.Fprintf(builder, "Subject: %s\r\n", email.Subject)
	fmt.Fprintf(builder, "Date: %s\r\n", email.Date.Format(time.RFC1123Z))
	fmt.Fprintf(builder, "Message-ID: <%d@localhost/>\r\n", seededRand.Int63())

	names := make([]string, 0, len(email.Headers))
	for name := range email.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(builder, "%s: %s\r\n", name, email.Headers[name])
	}
	builder.WriteString("Content-Type: text/plain\r\n\r\n")
	builder.WriteString(email.Body)
	return []byte(builder.String())
}

// GenerateFlags returns between 0 and max-1 distinct maildir flags
func GenerateFlags(max int) string {
	if max > len(flagset) {
		max = len(flagset)
	}
	count := seededRand.Intn(max)
	flags := []byte(flagset)
	seededRand.Shuffle(len(flags), func(i, j int) { flags[i], flags[j] = flags[j], flags[i] })
	return string(flags[:count])
}

// GenerateDateFrom returns a random date between from and now
func GenerateDateFrom(from time.Time) time.Time {
	span := time.Since(from)
	if span <= 0 {
		return from
	}
	return from.Add(time.Duration(seededRand.Int63n(int64(span)-1) + 1))
}
