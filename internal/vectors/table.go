package vectors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Vectors is a loaded vector set.
type Vectors interface {
	// Dim returns the length of every vector in the set.
	Dim() int
	// Lookup returns the vector for token. Callers must not modify it.
	Lookup(token string) []float32
}

// Table is a token to vector table read from a plain-text vector file.
// Unknown tokens map to a zero vector.
type Table struct {
	dim  int
	stoi map[string]int
	itos []string
	data []float32
	zero []float32
}

// Dim returns the vector dimension.
func (t *Table) Dim() int {
	return t.dim
}

// Len returns the number of tokens in the table.
func (t *Table) Len() int {
	return len(t.itos)
}

// Contains reports whether the table has a vector for token.
func (t *Table) Contains(token string) bool {
	_, ok := t.stoi[token]
	return ok
}

// Tokens returns the tokens in file order.
func (t *Table) Tokens() []string {
	return t.itos
}

// Lookup returns the vector for token, or a zero vector when it is unknown.
func (t *Table) Lookup(token string) []float32 {
	i, ok := t.stoi[token]
	if !ok {
		return t.zero
	}
	return t.data[i*t.dim : (i+1)*t.dim]
}

// LoadTextFile reads a plain-text vector file from path.
func LoadTextFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vectors: %w", err)
	}
	defer f.Close()

	t, err := ReadText(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read vectors %s: %w", path, err)
	}
	return t, nil
}

// ReadText parses the word2vec/GloVe text layout: one token per line
// followed by its space-separated values. A "count dim" header, or any line
// with a single value, is skipped. Tokens that contain spaces are rejoined
// once the dimension is known.
func ReadText(r io.Reader) (*Table, error) {
	t := &Table{stoi: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(strings.TrimRight(scanner.Text(), " \r\n"), " ")
		if len(fields) < 2 {
			continue
		}
		values := fields[1:]
		token := fields[0]
		if t.dim == 0 {
			if len(values) == 1 {
				log.Printf("vectors: skipping token %q with 1-dimensional vector; likely a header", token)
				continue
			}
			t.dim = len(values)
		}
		if len(values) > t.dim {
			token = strings.Join(fields[:len(fields)-t.dim], " ")
			values = fields[len(fields)-t.dim:]
		}
		if len(values) != t.dim {
			return nil, fmt.Errorf("%w: line %d token %q has %d values, previous rows have %d",
				ErrDimensionMismatch, line, token, len(values), t.dim)
		}
		if !utf8.ValidString(token) {
			log.Printf("vectors: skipping non-UTF-8 token on line %d", line)
			continue
		}

		row := make([]float32, t.dim)
		for i, v := range values {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid value %q: %w", line, v, err)
			}
			row[i] = float32(f)
		}
		if i, ok := t.stoi[token]; ok {
			copy(t.data[i*t.dim:], row)
			continue
		}
		t.stoi[token] = len(t.itos)
		t.itos = append(t.itos, token)
		t.data = append(t.data, row...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if t.dim == 0 {
		return nil, fmt.Errorf("%w: file has no vectors", ErrVectorsNotFound)
	}
	t.zero = make([]float32, t.dim)
	return t, nil
}

// NewTable builds a table from explicit rows. All rows must share one length.
func NewTable(rows map[string][]float32) (*Table, error) {
	t := &Table{stoi: make(map[string]int, len(rows))}
	for token, row := range rows {
		if t.dim == 0 {
			t.dim = len(row)
		}
		if len(row) != t.dim || t.dim == 0 {
			return nil, fmt.Errorf("%w: token %q has %d values", ErrDimensionMismatch, token, len(row))
		}
		t.stoi[token] = len(t.itos)
		t.itos = append(t.itos, token)
		t.data = append(t.data, row...)
	}
	t.zero = make([]float32, t.dim)
	return t, nil
}
