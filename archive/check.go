package archive

import (
	"errors"
	"fmt"
	"sort"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
	"github.com/creativeprojects/mailarchive/record"
	"github.com/creativeprojects/mailarchive/storage"
)

type FindingKind string

const (
	FindingMalformedRecord FindingKind = "malformed record"
	FindingEmptyMessageID  FindingKind = "empty message id"
	FindingDangling        FindingKind = "dangling record"
	FindingFlagsDrift      FindingKind = "flags drift"
	FindingMtimeDrift      FindingKind = "mtime drift"
	FindingUntracked       FindingKind = "untracked message"
	FindingMisplaced       FindingKind = "misplaced message"
	FindingFolderDrift     FindingKind = "record folder drift"
)

// Progress marks of the records scan
const (
	MarkDeleted = "D"
	MarkUpdated = "U"
	MarkOK      = "."
)

// Finding is a divergence between the index and the archive folders
type Finding struct {
	Kind FindingKind
	// Key is the content hash for a record, the message key for a message
	Key    string
	Folder string
	Detail string
	// Err wraps lib.ErrMalformedRecord, lib.ErrDanglingReference or lib.ErrConsistencyDrift
	Err      error
	Repaired bool
}

func (f Finding) String() string {
	status := "found"
	if f.Repaired {
		status = "repaired"
	}
	location := f.Key
	if f.Folder != "" {
		location = f.Folder + "/" + f.Key
	}
	if f.Detail == "" {
		return fmt.Sprintf("%s %s: %s", status, f.Kind, location)
	}
	return fmt.Sprintf("%s %s: %s (%s)", status, f.Kind, location, f.Detail)
}

// Report of a check
type Report struct {
	Records   int
	Messages  int
	Added     int
	Updated   int
	Deleted   int
	Moved     int
	Findings  []Finding
	Cancelled bool
}

// Unresolved returns the findings that have not been repaired
func (r *Report) Unresolved() []Finding {
	unresolved := make([]Finding, 0, len(r.Findings))
	for _, finding := range r.Findings {
		if !finding.Repaired {
			unresolved = append(unresolved, finding)
		}
	}
	return unresolved
}

func (r *Report) add(finding Finding) {
	r.Findings = append(r.Findings, finding)
}

type CheckOptions struct {
	// Repair the findings, otherwise nothing is changed
	Repair   bool
	Progress lib.Progress
}

// Check scans the index against the folders, then the folders against the index.
// The scan stops between two records or two messages once the token is cancelled;
// what was repaired so far is kept.
func (a *Archive) Check(token *lib.CancelToken, options CheckOptions) (*Report, error) {
	if options.Progress == nil {
		options.Progress = &lib.NoProgress{}
	}
	report := &Report{}
	err := a.checkRecords(token, options, report)
	if err != nil {
		return report, fmt.Errorf("cannot check records of %q: %w", a.Name(), err)
	}
	if report.Cancelled {
		return report, nil
	}
	err = a.checkFolders(token, options, report)
	if err != nil {
		return report, fmt.Errorf("cannot check folders of %q: %w", a.Name(), err)
	}
	return report, nil
}

func (a *Archive) checkRecords(token *lib.CancelToken, options CheckOptions, report *Report) error {
	return a.store.Transaction(func(tx storage.KV) error {
		keys, err := tx.Keys()
		if err != nil {
			return err
		}
		a.log.Printf("checking %d records", len(keys))
		options.Progress.Start(a.Name()+" (records)", len(keys))
		defer options.Progress.Stop()

		for _, key := range keys {
			if token.Requested() {
				report.Cancelled = true
				return nil
			}
			mark, err := a.checkRecord(tx, key, options.Repair, report)
			if err != nil {
				return err
			}
			options.Progress.Increment(mark)
		}
		return nil
	})
}

func (a *Archive) checkRecord(tx storage.KV, key string, repair bool, report *Report) (string, error) {
	value, err := tx.Get(key)
	if errors.Is(err, lib.ErrNotFound) {
		// removed since the listing
		return MarkOK, nil
	}
	if err != nil {
		return "", err
	}
	report.Records++

	rec, err := record.Parse(value)
	if err != nil {
		if key == record.NoValueKey {
			return MarkOK, nil
		}
		return a.deleteRecord(tx, key, Finding{
			Kind:   FindingMalformedRecord,
			Key:    key,
			Detail: value,
			Err:    err,
		}, repair, report)
	}
	if rec.MessageID == "" {
		return a.deleteRecord(tx, key, Finding{
			Kind:   FindingEmptyMessageID,
			Key:    key,
			Folder: rec.Folder,
			Err:    fmt.Errorf("%w: empty message id", lib.ErrMalformedRecord),
		}, repair, report)
	}

	live, err := a.resolve(rec)
	if errors.Is(err, lib.ErrNotFound) || errors.Is(err, lib.ErrFolderNotFound) {
		return a.deleteRecord(tx, key, Finding{
			Kind:   FindingDangling,
			Key:    key,
			Folder: rec.Folder,
			Detail: rec.MessageID,
			Err:    fmt.Errorf("%w: %v", lib.ErrDanglingReference, err),
		}, repair, report)
	}
	if err != nil {
		return "", err
	}

	findings := make([]Finding, 0, 2)
	if !rec.Flags.Includes(live.Flags) {
		findings = append(findings, Finding{
			Kind:   FindingFlagsDrift,
			Key:    key,
			Folder: rec.Folder,
			Detail: fmt.Sprintf("record %q, message %q", rec.Flags, live.Flags),
			Err:    fmt.Errorf("%w: flags", lib.ErrConsistencyDrift),
		})
		rec.MergeFlags(live.Flags)
	}
	if live.Mtime.Before(rec.Mtime) {
		findings = append(findings, Finding{
			Kind:   FindingMtimeDrift,
			Key:    key,
			Folder: rec.Folder,
			Detail: fmt.Sprintf("record %s, message %s", rec.Mtime, live.Mtime),
			Err:    fmt.Errorf("%w: mtime", lib.ErrConsistencyDrift),
		})
		rec.Mtime = live.Mtime
	}
	if len(findings) == 0 {
		return MarkOK, nil
	}
	if repair {
		value, err := rec.Format()
		if err != nil {
			return "", err
		}
		err = tx.Set(key, value)
		if err != nil {
			return "", err
		}
		report.Updated++
		for i := range findings {
			findings[i].Repaired = true
		}
	}
	for _, finding := range findings {
		a.log.Printf("%s", finding)
		report.add(finding)
	}
	return MarkUpdated, nil
}

func (a *Archive) deleteRecord(tx storage.KV, key string, finding Finding, repair bool, report *Report) (string, error) {
	if repair {
		err := tx.Delete(key)
		if err != nil && !errors.Is(err, lib.ErrNotFound) {
			return "", err
		}
		report.Deleted++
		finding.Repaired = true
	}
	a.log.Printf("%s", finding)
	report.add(finding)
	return MarkDeleted, nil
}

// resolve loads the metadata of the message a record points to
func (a *Archive) resolve(rec *record.Record) (*mailbox.Message, error) {
	folder, err := a.getFolder(rec.Folder)
	if err != nil {
		return nil, err
	}
	return folder.Get(rec.MessageID, true)
}

// tracked is a record indexed by the message key it points to
type tracked struct {
	hash   string
	record *record.Record
}

func (a *Archive) checkFolders(token *lib.CancelToken, options CheckOptions, report *Report) error {
	return a.store.Transaction(func(tx storage.KV) error {
		records, err := loadRecords(tx)
		if err != nil {
			return err
		}
		names, err := a.tree.ListFolders()
		if err != nil {
			return err
		}
		sort.Strings(names)
		for _, name := range names {
			if token.Requested() {
				report.Cancelled = true
				return nil
			}
			folder, err := a.getFolder(name)
			if err != nil {
				return err
			}
			err = a.checkFolder(tx, token, folder, records, options, report)
			if err != nil {
				return err
			}
			if report.Cancelled {
				return nil
			}
		}
		return nil
	})
}

// loadRecords reads all the valid records, indexed by message key
func loadRecords(tx storage.KV) (map[string]*tracked, error) {
	keys, err := tx.Keys()
	if err != nil {
		return nil, err
	}
	records := make(map[string]*tracked, len(keys))
	for _, key := range keys {
		value, err := tx.Get(key)
		if errors.Is(err, lib.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rec, err := record.Parse(value)
		if err != nil || rec.MessageID == "" {
			continue
		}
		records[rec.MessageID] = &tracked{hash: key, record: rec}
	}
	return records, nil
}

func (a *Archive) checkFolder(tx storage.KV, token *lib.CancelToken, folder mailbox.Folder, records map[string]*tracked, options CheckOptions, report *Report) error {
	keys, err := folder.Keys()
	if err != nil {
		return err
	}
	sort.Strings(keys)
	a.log.Printf("checking %d messages in %q", len(keys), folder.Name())
	options.Progress.Start(folder.Name()+" (check)", len(keys))
	defer options.Progress.Stop()

	for _, key := range keys {
		if token.Requested() {
			report.Cancelled = true
			return nil
		}
		err = a.checkMessage(tx, folder, key, records, options.Repair, report)
		if err != nil {
			return err
		}
		options.Progress.Increment(MarkOK)
	}
	return nil
}

func (a *Archive) checkMessage(tx storage.KV, folder mailbox.Folder, key string, records map[string]*tracked, repair bool, report *Report) error {
	msg, err := folder.Get(key, false)
	if errors.Is(err, lib.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	report.Messages++

	entry, found := records[key]
	if !found {
		entry, err = a.untracked(tx, folder, msg, records, repair, report)
		if err != nil || entry == nil {
			return err
		}
		records[entry.record.MessageID] = entry
	}

	canonical := a.Classify(msg)
	misplaced := folder.Name() != canonical
	if misplaced {
		finding := Finding{
			Kind:   FindingMisplaced,
			Key:    key,
			Folder: folder.Name(),
			Detail: "belongs to " + canonical,
			Err:    fmt.Errorf("%w: folder", lib.ErrConsistencyDrift),
		}
		if repair {
			err = a.move(tx, folder, msg, canonical, entry, records)
			if err != nil {
				return err
			}
			report.Moved++
			finding.Repaired = true
		}
		a.log.Printf("%s", finding)
		report.add(finding)
	}

	if !misplaced && entry.record.Folder != canonical {
		finding := Finding{
			Kind:   FindingFolderDrift,
			Key:    entry.hash,
			Folder: entry.record.Folder,
			Detail: "message is in " + canonical,
			Err:    fmt.Errorf("%w: record folder", lib.ErrConsistencyDrift),
		}
		if repair {
			entry.record.Folder = canonical
			entry.record.MessageID = key
			err = setRecord(tx, entry)
			if err != nil {
				return err
			}
			report.Updated++
			finding.Repaired = true
		}
		a.log.Printf("%s", finding)
		report.add(finding)
	}
	return nil
}

// untracked handles a message no record points to. It returns the new record
// of the message when it is kept in the archive and indexed.
func (a *Archive) untracked(tx storage.KV, folder mailbox.Folder, msg *mailbox.Message, records map[string]*tracked, repair bool, report *Report) (*tracked, error) {
	finding := Finding{
		Kind:   FindingUntracked,
		Key:    msg.Key,
		Folder: folder.Name(),
		Err:    fmt.Errorf("%w: message not in the index", lib.ErrDanglingReference),
	}
	if !repair {
		a.log.Printf("%s", finding)
		report.add(finding)
		return nil, nil
	}

	if len(msg.Content) == 0 {
		finding.Detail = "empty message removed"
		err := folder.Remove(msg.Key)
		if err != nil && !errors.Is(err, lib.ErrNotFound) {
			return nil, err
		}
		report.Deleted++
		finding.Repaired = true
		a.log.Printf("%s", finding)
		report.add(finding)
		return nil, nil
	}

	_, err := tx.Get(msg.Hash)
	if err == nil {
		// duplicate of an archived message
		finding.Detail = "merged into " + msg.Hash
		outcome, err := a.update(tx, msg)
		if errors.Is(err, lib.ErrNotFound) || errors.Is(err, lib.ErrFolderNotFound) {
			finding.Detail = "archived copy of " + msg.Hash + " is missing"
			a.log.Printf("%s", finding)
			report.add(finding)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		err = folder.Remove(msg.Key)
		if err != nil && !errors.Is(err, lib.ErrNotFound) {
			return nil, err
		}
		report.Deleted++
		finding.Repaired = true
		a.log.Printf("%s", finding)
		report.add(finding)
		if outcome == Updated {
			report.Updated++
			err = a.replace(tx, msg.Hash, records, report)
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if !errors.Is(err, lib.ErrNotFound) {
		return nil, err
	}

	rec := record.FromMessage(folder.Name(), msg.Key, msg)
	value, err := rec.Format()
	if err != nil {
		return nil, err
	}
	err = tx.Create(msg.Hash, value)
	if err != nil {
		return nil, err
	}
	report.Added++
	finding.Detail = "indexed as " + msg.Hash
	finding.Repaired = true
	a.log.Printf("%s", finding)
	report.add(finding)
	return &tracked{hash: msg.Hash, record: rec}, nil
}

func (a *Archive) move(tx storage.KV, folder mailbox.Folder, msg *mailbox.Message, canonical string, entry *tracked, records map[string]*tracked) error {
	dest, err := a.createFolder(canonical)
	if err != nil {
		return err
	}
	newKey, err := folder.Move(msg.Key, dest)
	if err != nil {
		return err
	}
	delete(records, msg.Key)
	entry.record.Folder = canonical
	entry.record.MessageID = newKey
	records[newKey] = entry
	return setRecord(tx, entry)
}

// replace moves the archived copy of hash into its canonical folder after a merge changed its flags
func (a *Archive) replace(tx storage.KV, hash string, records map[string]*tracked, report *Report) error {
	rec, err := lookup(tx, hash)
	if err != nil {
		return err
	}
	folder, err := a.getFolder(rec.Folder)
	if err != nil {
		return err
	}
	archived, err := folder.Get(rec.MessageID, false)
	if err != nil {
		return err
	}
	entry, found := records[rec.MessageID]
	if !found || entry.hash != hash {
		entry = &tracked{hash: hash}
		records[rec.MessageID] = entry
	}
	entry.record = rec

	canonical := a.Classify(archived)
	if folder.Name() == canonical {
		return nil
	}
	err = a.move(tx, folder, archived, canonical, entry, records)
	if err != nil {
		return err
	}
	report.Moved++
	finding := Finding{
		Kind:     FindingMisplaced,
		Key:      archived.Key,
		Folder:   folder.Name(),
		Detail:   "belongs to " + canonical + " after merging a duplicate",
		Err:      fmt.Errorf("%w: folder", lib.ErrConsistencyDrift),
		Repaired: true,
	}
	a.log.Printf("%s", finding)
	report.add(finding)
	return nil
}

func setRecord(tx storage.KV, entry *tracked) error {
	value, err := entry.record.Format()
	if err != nil {
		return err
	}
	return tx.Set(entry.hash, value)
}
