package retrieval

import (
	"context"
	"time"
)

// interDocumentDelay paces rebuild embedding calls so a full rebuild does
// not monopolize the provider's rate budget.
const interDocumentDelay = 200 * time.Millisecond

// DocumentReport summarizes one document's rebuild outcome.
type DocumentReport struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
	Indexed    int    `json:"indexed"`
	Error      string `json:"error,omitempty"`
}

// RebuildReport summarizes a full index rebuild.
type RebuildReport struct {
	Documents int              `json:"documents"`
	Indexed   int              `json:"indexed"`
	Failed    int              `json:"failed"`
	PerDoc    []DocumentReport `json:"per_document"`
}

// RebuildIndex re-embeds every stored document into a fresh index, replacing
// the persisted artifacts. Documents that fail to index are reported and
// skipped; the rebuild continues. Cached search results are dropped.
func (p *Pipeline) RebuildIndex(ctx context.Context) (*RebuildReport, error) {
	docs, err := p.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	p.index.Reset()
	if err := p.index.DeleteArtifacts(ctx); err != nil {
		p.logger.Warn("deleting index artifacts before rebuild", "error", err)
	}

	report := &RebuildReport{Documents: len(docs)}
	for i, doc := range docs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(interDocumentDelay):
			}
		}

		docReport := DocumentReport{DocumentID: doc.ID, Title: doc.Title}

		chunks, chunksErr := p.store.ChunksByDocument(ctx, doc.ID)
		if chunksErr != nil {
			docReport.Error = chunksErr.Error()
			report.Failed++
			report.PerDoc = append(report.PerDoc, docReport)
			continue
		}
		docReport.Chunks = len(chunks)

		added, addErr := p.index.AddChunks(ctx, chunks)
		docReport.Indexed = added
		report.Indexed += added
		if addErr != nil {
			docReport.Error = addErr.Error()
			report.Failed++
		} else if added < len(chunks) {
			report.Failed++
		}
		report.PerDoc = append(report.PerDoc, docReport)
	}

	if err := p.index.Save(ctx); err != nil {
		return report, err
	}
	p.invalidateSearchCache(ctx)

	p.logger.Info("index rebuilt",
		"documents", report.Documents,
		"indexed", report.Indexed,
		"failed", report.Failed)
	return report, nil
}
