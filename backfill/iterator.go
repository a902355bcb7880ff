package backfill

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// Mode selects which documents a backfill embeds.
type Mode string

const (
	// ModeMissing embeds live documents that have no record.
	ModeMissing Mode = "missing"
	// ModeAll also re-embeds documents whose record is active.
	ModeAll Mode = "all"
)

// job is one document queued for embedding.
type job struct {
	id   core.DocumentID
	text string
}

// collect walks the document store and returns the documents mode selects,
// in id order. Deleted documents and inactive records are always skipped.
// empty counts selected documents with no text to embed.
func collect(ctx context.Context, documents storage.DocumentStore, records storage.RecordStore, mode Mode) (jobs []job, scanned, empty int, err error) {
	err = documents.ForEachDocument(ctx, func(doc *core.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned++
		if doc.Deleted {
			return nil
		}
		record, err := records.Get(ctx, doc.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		case !record.Active:
			return nil
		case mode != ModeAll:
			return nil
		}
		text := Text(doc)
		if text == "" {
			empty++
			return nil
		}
		jobs = append(jobs, job{id: doc.ID, text: text})
		return nil
	})
	return jobs, scanned, empty, err
}

// Text is the text embedded for doc: its title and content.
func Text(doc *core.Document) string {
	title := strings.TrimSpace(doc.Title)
	content := strings.TrimSpace(doc.Content)
	switch {
	case title == "":
		return content
	case content == "":
		return title
	default:
		return title + "\n\n" + content
	}
}

// batches splits jobs into consecutive chunks of at most size.
func batches(jobs []job, size int) [][]job {
	var out [][]job
	for start := 0; start < len(jobs); start += size {
		out = append(out, jobs[start:min(start+size, len(jobs))])
	}
	return out
}
