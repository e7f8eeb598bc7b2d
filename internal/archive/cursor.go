package archive

import (
	"context"
	"errors"
	"sync"
)

// Cursor pages through the records a source selects. One cursor belongs to
// exactly one archival run and is used from a single goroutine.
type Cursor interface {
	// Next fetches the next page. It returns false once the source has no
	// more records or the cursor is closed, without touching the backend.
	Next(ctx context.Context) (bool, error)
	// Batch returns the page fetched by the last successful Next.
	Batch() []Record
	// Close releases the cursor's resources. It is idempotent.
	Close() error
}

// Page describes one page request.
type Page struct {
	// Offset is the number of records already handed out.
	Offset int
	// Limit is the page size.
	Limit int
	// After is the key value of the last record of the previous page, or
	// nil for the first page. Keyset cursors use it instead of Offset.
	After any
}

// FetchFunc queries one page. An empty result means the source is drained.
type FetchFunc func(ctx context.Context, page Page) ([]Record, error)

// PagerConfig configures a Pager.
type PagerConfig struct {
	BatchSize int
	// KeyField names the field whose value feeds Page.After. Optional.
	KeyField string
	Fetch    FetchFunc
	// Release frees the connection or session the pager owns. It is called
	// at most once.
	Release func() error
}

// ErrInvalidPager is returned by NewPager for unusable settings.
var ErrInvalidPager = errors.New("archive: invalid pager config")

// Pager is the Cursor implementation shared by all adapters. Adapters supply
// the page query; the pager owns the offset and exhaustion bookkeeping.
type Pager struct {
	batchSize int
	keyField  string
	fetch     FetchFunc
	release   func() error

	offset    int
	after     any
	batch     []Record
	exhausted bool
	closed    bool

	closeOnce sync.Once
	closeErr  error
}

// NewPager returns a pager positioned before the first page.
func NewPager(cfg PagerConfig) (*Pager, error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.Join(ErrInvalidPager, ErrConfiguration)
	}
	if cfg.Fetch == nil {
		return nil, errors.Join(ErrInvalidPager, errors.New("archive: nil fetch func"))
	}
	return &Pager{
		batchSize: cfg.BatchSize,
		keyField:  cfg.KeyField,
		fetch:     cfg.Fetch,
		release:   cfg.Release,
	}, nil
}

// Next implements Cursor.
func (p *Pager) Next(ctx context.Context) (bool, error) {
	if p.exhausted || p.closed {
		return false, nil
	}

	records, err := p.fetch(ctx, Page{Offset: p.offset, Limit: p.batchSize, After: p.after})
	if err != nil {
		return false, err
	}
	p.offset += p.batchSize

	if len(records) == 0 {
		p.exhausted = true
		p.batch = nil
		return false, nil
	}

	p.batch = records
	if p.keyField != "" {
		if v, ok := records[len(records)-1].Get(p.keyField); ok {
			p.after = v
		}
	}
	return true, nil
}

// Batch implements Cursor.
func (p *Pager) Batch() []Record {
	return p.batch
}

// Offset returns the offset the next fetch will use.
func (p *Pager) Offset() int {
	return p.offset
}

// Close implements Cursor.
func (p *Pager) Close() error {
	p.closeOnce.Do(func() {
		p.closed = true
		p.exhausted = true
		p.batch = nil
		if p.release != nil {
			p.closeErr = p.release()
		}
	})
	return p.closeErr
}
