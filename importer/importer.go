// Package importer feeds the messages of some sources into an archive.
package importer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/creativeprojects/mailarchive/archive"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"golang.org/x/time/rate"
)

// MarkError is the progress mark of a message that could not be imported
const MarkError = "!"

// Opener returns a new handle on the archive. It is called once per worker.
type Opener func() (*archive.Archive, error)

type Options struct {
	// DryRun reports what would be done without changing anything
	DryRun bool
	// Workers is the number of concurrent workers; 0 or 1 imports synchronously
	Workers int
	// Throttle is the maximum number of messages per second, 0 is no limit
	Throttle float64
	Progress lib.Progress
	Logger   lib.Logger
	// OnError is called for every message that failed to import
	OnError func(source, key string, err error)
}

type Summary struct {
	Added     int
	Updated   int
	Existing  int
	Errors    int
	Cancelled bool
}

func (s *Summary) count(outcome archive.Outcome, err error) string {
	if err != nil {
		s.Errors++
		return MarkError
	}
	switch outcome {
	case archive.Added:
		s.Added++
	case archive.Updated:
		s.Updated++
	default:
		s.Existing++
	}
	return outcome.String()
}

// Total number of messages processed
func (s Summary) Total() int {
	return s.Added + s.Updated + s.Existing + s.Errors
}

type Importer struct {
	archive *archive.Archive
	open    Opener
	options Options
	log     lib.Logger
	limiter *rate.Limiter
}

// New importer into the archive. The opener is only needed with more than one worker.
func New(into *archive.Archive, open Opener, options Options) *Importer {
	if options.Progress == nil {
		options.Progress = &lib.NoProgress{}
	}
	importer := &Importer{
		archive: into,
		open:    open,
		options: options,
		log:     lib.OrNoLog(options.Logger),
	}
	if options.Throttle > 0 {
		importer.limiter = rate.NewLimiter(rate.Limit(options.Throttle), 1)
	}
	return importer
}

// Import the sources one after the other, in name order.
// Failing messages are counted and skipped; a source that cannot be listed stops the import.
func (i *Importer) Import(token *lib.CancelToken, sources []mailbox.Reader) (Summary, error) {
	summary := Summary{}
	sources = sortSources(sources)

	var workers *pool
	if i.options.Workers > 1 {
		if i.archive.SupportConcurrentHandles() && i.open != nil {
			var err error
			workers, err = i.startPool(i.options.Workers)
			if err != nil {
				return summary, err
			}
			defer workers.close()
		} else {
			i.log.Printf("the archive index doesn't support concurrent writers: importing with one worker")
		}
	}

	for _, source := range sources {
		if token.Requested() {
			summary.Cancelled = true
			break
		}
		keys, err := source.Keys()
		if err != nil {
			return summary, fmt.Errorf("cannot list messages of %q: %w", source.Name(), err)
		}
		sort.Strings(keys)
		i.log.Printf("importing %d messages from %q", len(keys), source.Name())

		i.options.Progress.Start(source.Name(), len(keys))
		if workers != nil {
			i.importPooled(token, workers, source, keys, &summary)
		} else {
			i.importSynchronously(token, source, keys, &summary)
		}
		i.options.Progress.Stop()
	}
	if token.Requested() {
		summary.Cancelled = true
	}
	return summary, nil
}

func (i *Importer) importSynchronously(token *lib.CancelToken, source mailbox.Reader, keys []string, summary *Summary) {
	for _, key := range keys {
		if !i.wait(token) {
			summary.Cancelled = true
			return
		}
		outcome, err := i.importMessage(i.archive, source, key)
		i.report(source, key, err)
		i.options.Progress.Increment(summary.count(outcome, err))
	}
}

func (i *Importer) importMessage(into *archive.Archive, source mailbox.Reader, key string) (archive.Outcome, error) {
	msg, err := source.Get(key, false)
	if err != nil {
		return "", err
	}
	return i.process(into, msg)
}

// process files one message: the dry run only looks at the index
func (i *Importer) process(into *archive.Archive, msg *mailbox.Message) (archive.Outcome, error) {
	rec, err := into.Lookup(msg.Hash)
	if errors.Is(err, lib.ErrNotFound) {
		if i.options.DryRun {
			return archive.Added, nil
		}
		return into.Add(msg)
	}
	if err != nil {
		return "", err
	}
	if !rec.ShouldUpdate(msg) {
		return archive.Existing, nil
	}
	if i.options.DryRun {
		return archive.Updated, nil
	}
	return into.Update(msg)
}

// wait for the throttle. It returns false once the import is cancelled.
func (i *Importer) wait(token *lib.CancelToken) bool {
	if token.Requested() {
		return false
	}
	if i.limiter == nil {
		return true
	}
	return i.limiter.Wait(token.Context()) == nil
}

func (i *Importer) report(source mailbox.Reader, key string, err error) {
	if err == nil {
		return
	}
	i.log.Printf("cannot import message %q from %q: %v", key, source.Name(), err)
	if i.options.OnError != nil {
		i.options.OnError(source.Name(), key, err)
	}
}

func sortSources(sources []mailbox.Reader) []mailbox.Reader {
	sorted := make([]mailbox.Reader, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Name() < sorted[b].Name()
	})
	return sorted
}
