package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

var _ driven.VectorIndex = (*Store)(nil)

// resetHint tells the user how to recover from an embedding model change.
const resetHint = "run 'recall reset --yes' and re-ingest after changing the embedding model"

// Upsert writes a batch of chunks in one transaction, overwriting existing ids.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("upsert: %w: chunk without id", domain.ErrInvalidInput)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("upsert %s: %w: missing embedding", c.ID, domain.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr("upsert: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, text, metadata, embedding, dims)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dims = excluded.dims,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return indexErr("upsert: prepare", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata.Clone())
		if err != nil {
			return fmt.Errorf("upsert %s: marshalling metadata: %w", c.ID, err)
		}
		restored := domain.RestoreChunk(c.ID, c.Text, c.Metadata)
		if _, err := stmt.ExecContext(ctx,
			c.ID, restored.DocumentID, restored.Index, c.Text, string(metadataJSON),
			float32SliceToBytes(c.Embedding), len(c.Embedding)); err != nil {
			return indexErr("upsert "+c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return indexErr("upsert: commit", err)
	}
	return nil
}

// Get returns the chunks that exist among ids, without embeddings.
func (s *Store) Get(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	found := make(map[string]domain.Chunk, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT id, text, metadata FROM chunks WHERE id IN (" + placeholders(len(ids)) + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, indexErr("get", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		found[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("get", err)
	}
	return found, nil
}

// Search returns up to n nearest chunks matching filter by exact cosine scan.
func (s *Store) Search(
	ctx context.Context, query []float32, n int, filter domain.Filter,
) ([]domain.Candidate, error) {
	if n <= 0 {
		return []domain.Candidate{}, nil
	}

	where, args, err := filterClause(filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, text, metadata, embedding FROM chunks"+where, args...)
	if err != nil {
		return nil, indexErr("search", err)
	}
	defer rows.Close()

	var (
		candidates []domain.Candidate
		skipped    int
		storedDims int
	)
	for rows.Next() {
		var (
			id, text, metadataJSON string
			blob                   []byte
		)
		if err := rows.Scan(&id, &text, &metadataJSON, &blob); err != nil {
			return nil, indexErr("search: scan", err)
		}
		vec := bytesToFloat32Slice(blob)
		if len(vec) != len(query) {
			skipped++
			storedDims = len(vec)
			continue
		}
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("search: chunk %s: %w", id, err)
		}
		candidates = append(candidates, domain.Candidate{
			Chunk:    domain.RestoreChunk(id, text, meta),
			Distance: domain.CosineDistance(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("search", err)
	}
	if skipped > 0 {
		if len(candidates) == 0 {
			return nil, fmt.Errorf("search: %w: query has %d dimensions, index has %d; %s",
				domain.ErrInvalidInput, len(query), storedDims, resetHint)
		}
		logger.Warn("search: skipped %d chunks with %d dimensions (query has %d); %s",
			skipped, storedDims, len(query), resetHint)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	if candidates == nil {
		candidates = []domain.Candidate{}
	}
	return candidates, nil
}

// Delete removes every chunk matching filter.
func (s *Store) Delete(ctx context.Context, filter domain.Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("delete: %w: empty filter", domain.ErrInvalidInput)
	}
	where, args, err := filterClause(filter)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks"+where, args...)
	if err != nil {
		return 0, indexErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, indexErr("delete", err)
	}
	return int(n), nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, indexErr("count", err)
	}
	return n, nil
}

// Scan returns chunks matching filter ordered by document and position.
func (s *Store) Scan(ctx context.Context, filter domain.Filter) ([]domain.Chunk, error) {
	where, args, err := filterClause(filter)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, metadata FROM chunks"+where+" ORDER BY document_id, chunk_index, id", args...)
	if err != nil {
		return nil, indexErr("scan", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("scan", err)
	}
	return chunks, nil
}

// Reset removes every chunk.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return indexErr("reset", err)
	}
	return nil
}

// filterClause renders filter as a WHERE clause over the metadata JSON.
// Each pair checks the JSON type as well as the value, so the string "1"
// never matches the number 1 or the boolean true.
func filterClause(filter domain.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		if k == "" || strings.ContainsAny(k, "\"\\") {
			return "", nil, fmt.Errorf("%w: bad metadata key %q", domain.ErrInvalidInput, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		path := `$."` + k + `"`
		v := filter[k]
		switch v.Kind() {
		case domain.KindString:
			s, _ := v.Str()
			conds = append(conds, "(json_type(metadata, ?) = 'text' AND json_extract(metadata, ?) = ?)")
			args = append(args, path, path, s)
		case domain.KindNumber:
			n, _ := v.Number()
			conds = append(conds, "(json_type(metadata, ?) IN ('integer', 'real') AND json_extract(metadata, ?) = ?)")
			args = append(args, path, path, n)
		case domain.KindBool:
			b, _ := v.Bool()
			conds = append(conds, "json_type(metadata, ?) = ?")
			args = append(args, path, fmt.Sprint(b))
		default:
			return "", nil, fmt.Errorf("%w: invalid filter value for %q", domain.ErrInvalidInput, k)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanChunk(rows *sql.Rows) (domain.Chunk, error) {
	var id, text, metadataJSON string
	if err := rows.Scan(&id, &text, &metadataJSON); err != nil {
		return domain.Chunk{}, indexErr("scan chunk", err)
	}
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, err)
	}
	return domain.RestoreChunk(id, text, meta), nil
}

func decodeMetadata(raw string) (domain.Metadata, error) {
	meta := domain.Metadata{}
	if raw == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %w", domain.ErrIndexUnavailable, err)
	}
	return meta, nil
}
