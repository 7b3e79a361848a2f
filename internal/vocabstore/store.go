// Package vocabstore persists built vocabularies in SQLite, keyed by field
// name and guarded by the field's serializable configuration.
package vocabstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fractalmind-ai/matchvec/internal/vocab"
)

var (
	// ErrNotFound is returned when no vocabulary is stored under a name.
	ErrNotFound = errors.New("vocabulary not found")
	// ErrConfigMismatch is returned when the stored vocabulary was built with a
	// different field configuration.
	ErrConfigMismatch = errors.New("stored vocabulary has a different field config")
)

// Info summarizes a stored vocabulary.
type Info struct {
	Name      string
	Config    string
	Size      int
	Dim       int
	UpdatedAt time.Time
}

// Store persists vocabularies in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates a SQLite store at the given path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EncodeConfig returns the canonical form used to compare field configs.
func EncodeConfig(config map[string]any) (string, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to encode field config: %w", err)
	}
	return string(data), nil
}

// Save stores v under name, replacing any previous vocabulary of that name.
func (s *Store) Save(ctx context.Context, name string, config map[string]any, v *vocab.Vocab) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	if v == nil {
		return fmt.Errorf("vocabulary is nil")
	}
	cfg, err := EncodeConfig(config)
	if err != nil {
		return err
	}
	unk := ""
	if i := v.UnkIndex(); i >= 0 {
		unk = v.Token(i)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tokens WHERE vocab = ?", name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO vocabs(name,config,unk_token,dim,updated_at) VALUES(?,?,?,?,?)",
		name, cfg, unk, v.Dim(), time.Now().Unix()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to save vocabulary: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO tokens(vocab,idx,token,freq,vector) VALUES(?,?,?,?,?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, tok := range v.Tokens() {
		if _, err := stmt.ExecContext(ctx, name, i, tok, v.Freqs[tok], encodeVector(v.Vector(i))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert token: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load returns the vocabulary stored under name. A non-nil config must match
// the one it was saved with.
func (s *Store) Load(ctx context.Context, name string, config map[string]any) (*vocab.Vocab, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}
	var stored, unk string
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT config,unk_token,dim FROM vocabs WHERE name = ?", name).Scan(&stored, &unk, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	if config != nil {
		want, err := EncodeConfig(config)
		if err != nil {
			return nil, err
		}
		if want != stored {
			return nil, fmt.Errorf("%w: %s", ErrConfigMismatch, name)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT token,freq,vector FROM tokens WHERE vocab = ? ORDER BY idx", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var itos []string
	var data []float32
	freqs := vocab.Counter{}
	for rows.Next() {
		var tok string
		var freq int
		var blob []byte
		if err := rows.Scan(&tok, &freq, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		itos = append(itos, tok)
		if freq > 0 {
			freqs[tok] = freq
		}
		data = append(data, vec...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return vocab.Restore(itos, freqs, unk, dim, data)
}

// List returns every stored vocabulary.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT v.name, v.config, v.dim, v.updated_at, COUNT(t.idx)
FROM vocabs v LEFT JOIN tokens t ON t.vocab = v.name
GROUP BY v.name ORDER BY v.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabularies: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var updated int64
		if err := rows.Scan(&info.Name, &info.Config, &info.Dim, &updated, &info.Size); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary: %w", err)
		}
		info.UpdatedAt = time.Unix(updated, 0)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS vocabs (
	name TEXT PRIMARY KEY,
	config TEXT NOT NULL,
	unk_token TEXT NOT NULL,
	dim INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tokens (
	vocab TEXT NOT NULL,
	idx INTEGER NOT NULL,
	token TEXT NOT NULL,
	freq INTEGER NOT NULL,
	vector BLOB,
	PRIMARY KEY (vocab, idx)
);
`); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	data := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob")
	}
	vec := make([]float32, len(data)/4)
	for i := 0; i < len(vec); i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
