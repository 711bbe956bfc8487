package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// searchVector ranks a task's entries by cosine similarity to the query.
// The cgo build pushes the distance computation into SQL via sqlite-vec;
// the pure Go build loads candidates and ranks in process. Both orderings
// are identical: similarity descending, then path ascending.
func searchVector(ctx context.Context, db *sql.DB, taskID string, query []float32, limit int) ([]VectorResult, error) {
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, taskID, query, limit)
	}
	return searchVectorFallback(ctx, db, taskID, query, limit)
}

// searchVectorOptimized computes distance at the database layer.
// vec_distance_cosine returns distance; 1 - distance is similarity.
func searchVectorOptimized(ctx context.Context, db *sql.DB, taskID string, query []float32, limit int) ([]VectorResult, error) {
	queryBlob := serializeVector(query)

	rows, err := db.QueryContext(ctx, `
		SELECT path, language, summary, preview,
		       1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM entries
		WHERE task_id = ?
		ORDER BY similarity DESC, path ASC
		LIMIT ?`, queryBlob, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.Path, &r.Language, &r.Summary, &r.Preview, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchVectorFallback ranks candidates with Go cosine similarity when the
// sqlite-vec extension is unavailable.
func searchVectorFallback(ctx context.Context, db *sql.DB, taskID string, query []float32, limit int) ([]VectorResult, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT path, language, summary, preview, vector
		FROM entries WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []VectorResult
	for rows.Next() {
		var r VectorResult
		var blob []byte
		if err := rows.Scan(&r.Path, &r.Language, &r.Summary, &r.Preview, &blob); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		r.Similarity = cosineSimilarity(query, deserializeVector(blob))
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Path < candidates[j].Path
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// serializeVector encodes a vector as little-endian float32 bytes, the
// format sqlite-vec expects for BLOB columns.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, val := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

// deserializeVector decodes little-endian float32 bytes.
func deserializeVector(data []byte) []float32 {
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
