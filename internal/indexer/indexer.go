// Package indexer prepares documents for retrieval-mode analysis: it chunks
// the text, embeds each chunk under the rate budget, and replaces the
// document's entry in the similarity index. Indexing is idempotent and only
// runs when explicitly requested or when retrieval mode is selected.
package indexer

import (
	"context"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/JGarfunkel/ordinizer-sub000/internal/budget"
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/internal/vecstore"
	"github.com/JGarfunkel/ordinizer-sub000/pkg/jina"
)

// truncationMarker is appended to chunks cut down to the soft token limit so
// retrieved context shows it is incomplete.
const truncationMarker = "\n[truncated]"

// Config holds indexing tunables.
type Config struct {
	// MaxChunkChars is the chunker's character ceiling per chunk.
	MaxChunkChars int `yaml:"max_chunk_chars" mapstructure:"max_chunk_chars"`
	// SoftTokenLimit triggers truncation with a marker.
	SoftTokenLimit int `yaml:"soft_token_limit" mapstructure:"soft_token_limit"`
	// HardTokenLimit triggers skipping the chunk entirely.
	HardTokenLimit int `yaml:"hard_token_limit" mapstructure:"hard_token_limit"`
	// EmbedModel is the budget key for embedding calls.
	EmbedModel string `yaml:"embed_model" mapstructure:"embed_model"`
}

// Indexer embeds document chunks and upserts them into the similarity index.
type Indexer struct {
	embedder jina.Client
	store    vecstore.Store
	budget   *budget.Manager
	cfg      Config
}

// New creates an Indexer.
func New(embedder jina.Client, store vecstore.Store, bm *budget.Manager, cfg Config) *Indexer {
	return &Indexer{embedder: embedder, store: store, budget: bm, cfg: cfg}
}

// Index chunks and embeds documentText, then replaces all stored chunks for
// the {jurisdiction, domain, documentType} key. Returns the number of chunks
// stored. Chunks over the embedding model's hard token limit are skipped and
// logged; chunks over the soft limit are truncated with a marker.
func (ix *Indexer) Index(ctx context.Context, documentText, jurisdictionID, domainID string, docType model.DocumentType) (int, error) {
	pieces := Chunker{MaxChars: ix.cfg.MaxChunkChars}.Split(documentText)
	if len(pieces) == 0 {
		return 0, eris.Errorf("indexer: document %s/%s/%s has no indexable text", jurisdictionID, domainID, docType)
	}

	chunks := make([]model.DocumentChunk, 0, len(pieces))
	skipped := 0
	for i, text := range pieces {
		est := budget.EstimateEmbeddingTokens(text)
		if ix.cfg.HardTokenLimit > 0 && est > ix.cfg.HardTokenLimit {
			skipped++
			zap.L().Warn("indexer: skipping chunk over hard token limit",
				zap.String("jurisdiction", jurisdictionID),
				zap.String("domain", domainID),
				zap.String("document_type", string(docType)),
				zap.Int("chunk_index", i),
				zap.Int("estimated_tokens", est),
				zap.Int("hard_limit", ix.cfg.HardTokenLimit),
			)
			continue
		}
		if ix.cfg.SoftTokenLimit > 0 && est > ix.cfg.SoftTokenLimit {
			text = truncateToTokens(text, ix.cfg.SoftTokenLimit) + truncationMarker
			est = budget.EstimateEmbeddingTokens(text)
			zap.L().Debug("indexer: truncated chunk to soft token limit",
				zap.String("jurisdiction", jurisdictionID),
				zap.Int("chunk_index", i),
				zap.Int("soft_limit", ix.cfg.SoftTokenLimit),
			)
		}

		if err := ix.budget.Reserve(ctx, ix.cfg.EmbedModel, est); err != nil {
			return 0, err
		}
		resp, err := ix.embedder.Embed(ctx, []string{text})
		if err != nil {
			return 0, eris.Wrapf(err, "indexer: embed chunk %d of %s/%s/%s", i, jurisdictionID, domainID, docType)
		}
		actual := resp.Usage.TotalTokens
		if actual == 0 {
			actual = est
		}
		ix.budget.Record(ix.cfg.EmbedModel, actual)

		chunks = append(chunks, model.DocumentChunk{
			JurisdictionID: jurisdictionID,
			DomainID:       domainID,
			DocumentType:   docType,
			ChunkIndex:     len(chunks),
			Text:           text,
			Embedding:      resp.Data[0].Embedding,
		})
	}

	if len(chunks) == 0 {
		return 0, eris.Errorf("indexer: all %d chunks of %s/%s/%s exceeded the hard token limit", len(pieces), jurisdictionID, domainID, docType)
	}

	// Replace, don't append: chunk counts shrink when documents do.
	if err := ix.store.DeleteDocument(ctx, jurisdictionID, domainID, docType); err != nil {
		return 0, err
	}
	if err := ix.store.Upsert(ctx, chunks); err != nil {
		return 0, err
	}

	zap.L().Info("indexer: document indexed",
		zap.String("jurisdiction", jurisdictionID),
		zap.String("domain", domainID),
		zap.String("document_type", string(docType)),
		zap.Int("chunks", len(chunks)),
		zap.Int("skipped", skipped),
	)
	return len(chunks), nil
}

// truncateToTokens cuts text on a rune boundary until its embedding-token
// estimate fits the limit. A single three-chars-per-token cut is not
// enough: the estimate pads digit and punctuation runs, so dense statute
// numbering can leave the first cut still over the limit.
func truncateToTokens(text string, limit int) string {
	cut := limit * 3
	for {
		if cut < len(text) {
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		est := budget.EstimateEmbeddingTokens(text)
		if est <= limit || len(text) == 0 {
			return text
		}
		cut = len(text) - (est-limit)*3
		if cut < 0 {
			cut = 0
		}
	}
}
