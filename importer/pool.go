package importer

import (
	"sync"

	"github.com/creativeprojects/mailarchive/archive"
	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/mailbox"
)

type task struct {
	key string
	msg *mailbox.Message
}

type result struct {
	key     string
	outcome archive.Outcome
	err     error
}

// pool of workers, each one with its own archive handle for the whole import
type pool struct {
	tasks    chan task
	results  chan result
	archives []*archive.Archive
	wg       sync.WaitGroup
}

func (i *Importer) startPool(size int) (*pool, error) {
	p := &pool{
		tasks:    make(chan task),
		results:  make(chan result),
		archives: make([]*archive.Archive, 0, size),
	}
	for n := 0; n < size; n++ {
		handle, err := i.open()
		if err != nil {
			p.closeArchives()
			return nil, err
		}
		p.archives = append(p.archives, handle)
	}
	for _, handle := range p.archives {
		p.wg.Add(1)
		go func(handle *archive.Archive) {
			defer p.wg.Done()
			for t := range p.tasks {
				outcome, err := i.process(handle, t.msg)
				p.results <- result{key: t.key, outcome: outcome, err: err}
			}
		}(handle)
	}
	i.log.Printf("started %d workers", size)
	return p, nil
}

func (p *pool) close() {
	close(p.tasks)
	p.wg.Wait()
	p.closeArchives()
}

func (p *pool) closeArchives() {
	for _, handle := range p.archives {
		_ = handle.Close()
	}
}

// importPooled reads the source from a single goroutine and collects the results
// in completion order. It returns once every dispatched message has a result.
func (i *Importer) importPooled(token *lib.CancelToken, p *pool, source mailbox.Reader, keys []string, summary *Summary) {
	dispatched := make(chan int, 1)
	go func() {
		count := 0
		defer func() {
			dispatched <- count
		}()
		for _, key := range keys {
			if !i.wait(token) {
				return
			}
			msg, err := source.Get(key, false)
			count++
			if err != nil {
				p.results <- result{key: key, err: err}
				continue
			}
			p.tasks <- task{key: key, msg: msg}
		}
	}()

	received, total := 0, -1
	for total < 0 || received < total {
		select {
		case res := <-p.results:
			received++
			i.report(source, res.key, res.err)
			i.options.Progress.Increment(summary.count(res.outcome, res.err))
		case total = <-dispatched:
		}
	}
	if token.Requested() {
		summary.Cancelled = true
	}
}
