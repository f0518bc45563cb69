package rag

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Chunk is one indexed slice of a source document.
type Chunk struct {
	Path    string
	Seq     int
	Kind    string // "code" or "docs"
	Content string
	Vector  []float32
}

// Match is a search hit.
type Match struct {
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
	Kind    string  `json:"kind"`
	Score   float64 `json:"score"`
}

const vectorSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	path TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	vector BLOB NOT NULL,
	indexed_at TEXT NOT NULL,
	PRIMARY KEY (path, seq)
);

CREATE TABLE IF NOT EXISTS chunk_meta (
	path TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	indexed_at TEXT NOT NULL
);
`

// VectorStore persists embeddings in their own SQLite database and
// answers similarity queries with a full scan plus cosine ranking. At
// the scale of one project's code and docs that is fast enough, and it
// keeps the driver pure Go.
type VectorStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewVectorStore opens (or creates) the vector database at dbPath.
func NewVectorStore(dbPath string) (*VectorStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create vector db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	if _, err := db.Exec(vectorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return &VectorStore{db: db}, nil
}

// Close closes the underlying database.
func (s *VectorStore) Close() error { return s.db.Close() }

// Checksum returns the stored checksum for a path, or "" if unindexed.
func (s *VectorStore) Checksum(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum string
	_ = s.db.QueryRow(`SELECT checksum FROM chunk_meta WHERE path = ?`, path).Scan(&sum)
	return sum
}

// Replace swaps all chunks of a path for the given set in one
// transaction and records the content checksum.
func (s *VectorStore) Replace(path, checksum string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks (path, seq, kind, content, vector, indexed_at) VALUES (?, ?, ?, ?, ?, ?)`,
			path, c.Seq, c.Kind, c.Content, encodeVector(c.Vector), now,
		); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO chunk_meta (path, checksum, indexed_at) VALUES (?, ?, ?)`,
		path, checksum, now,
	); err != nil {
		return fmt.Errorf("upsert chunk_meta: %w", err)
	}
	return tx.Commit()
}

// Remove deletes all chunks of a path.
func (s *VectorStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM chunk_meta WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete chunk_meta: %w", err)
	}
	return tx.Commit()
}

// Search scans all chunks (optionally filtered by kind) and returns the
// top limit matches above threshold, best first.
func (s *VectorStore) Search(query []float32, kind string, limit int, threshold float64) ([]Match, error) {
	if limit <= 0 {
		limit = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if kind != "" {
		rows, err = s.db.Query(`SELECT path, kind, content, vector FROM chunks WHERE kind = ?`, kind)
	} else {
		rows, err = s.db.Query(`SELECT path, kind, content, vector FROM chunks`)
	}
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.Path, &m.Kind, &m.Snippet, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			continue // skip rows written by an older dimensionality
		}
		m.Score = cosine(query, vec)
		if m.Score < threshold {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Partial selection sort: only the top limit entries matter.
	for i := 0; i < len(matches) && i < limit; i++ {
		best := i
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Score > matches[best].Score {
				best = j
			}
		}
		matches[i], matches[best] = matches[best], matches[i]
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Stats returns the number of indexed paths and chunks.
func (s *VectorStore) Stats() (paths, chunks int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunk_meta`).Scan(&paths); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return paths, chunks, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// cosine returns the cosine similarity of two vectors, 0 when lengths
// differ or either is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// checksumString computes a SHA-256 hex digest of a string.
func checksumString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
