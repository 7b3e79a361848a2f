// Package fasttext reads fastText binary (.bin) models and computes word
// vectors from them, including vectors for out-of-vocabulary words built from
// character n-grams.
package fasttext

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

const (
	fileFormatMagic int32 = 793712314
	fileVersion     int32 = 12

	bow = "<"
	eow = ">"
	eos = "</s>"
)

var (
	// ErrQuantized is returned for quantized (.ftz) models.
	ErrQuantized = errors.New("quantized fastText models are not supported")
	// ErrUnsupportedVersion is returned when the file was written by a newer fastText.
	ErrUnsupportedVersion = errors.New("unsupported fastText model version")
)

// Args holds the training arguments stored in the model header.
type Args struct {
	Dim          int32
	WS           int32
	Epoch        int32
	MinCount     int32
	Neg          int32
	WordNgrams   int32
	Loss         int32
	Model        int32
	Bucket       int32
	MinN         int32
	MaxN         int32
	LRUpdateRate int32
	T            float64
}

type entry struct {
	word     string
	count    int64
	kind     int8
	subwords []int32
}

// Model is a loaded fastText model. Only the input matrix is kept; the output
// matrix is not needed for word vectors.
type Model struct {
	Args Args

	words     []entry
	index     map[string]int32
	nwords    int32
	pruneSize int64
	pruneIdx  map[int32]int32

	rows int64
	cols int64
	data []float32
}

// LoadModel reads a fastText binary model from path.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	m, err := ReadModel(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return m, nil
}

// ReadModel decodes a fastText binary model from r.
func ReadModel(r io.Reader) (*Model, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := decoder{r: br}

	m := &Model{pruneSize: -1}
	first := d.int32()
	second := d.int32()
	if d.err != nil {
		return nil, d.err
	}

	// Models written before the magic header start directly with dim and ws.
	newFormat := first == fileFormatMagic
	if newFormat {
		if second > fileVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, second)
		}
		m.Args.Dim = d.int32()
		m.Args.WS = d.int32()
	} else {
		m.Args.Dim = first
		m.Args.WS = second
	}
	m.Args.Epoch = d.int32()
	m.Args.MinCount = d.int32()
	m.Args.Neg = d.int32()
	m.Args.WordNgrams = d.int32()
	m.Args.Loss = d.int32()
	m.Args.Model = d.int32()
	m.Args.Bucket = d.int32()
	m.Args.MinN = d.int32()
	m.Args.MaxN = d.int32()
	m.Args.LRUpdateRate = d.int32()
	m.Args.T = d.float64()
	if d.err != nil {
		return nil, fmt.Errorf("failed to read args: %w", d.err)
	}

	if err := m.readDictionary(&d, newFormat); err != nil {
		return nil, err
	}

	if newFormat {
		if d.bool() {
			return nil, ErrQuantized
		}
	}
	m.rows = d.int64()
	m.cols = d.int64()
	if d.err != nil {
		return nil, fmt.Errorf("failed to read matrix header: %w", d.err)
	}
	if m.cols != int64(m.Args.Dim) {
		return nil, fmt.Errorf("matrix has %d columns, args dim is %d", m.cols, m.Args.Dim)
	}
	if want := int64(m.nwords) + int64(m.Args.Bucket); m.rows < int64(m.nwords) || m.rows > want {
		return nil, fmt.Errorf("matrix has %d rows, expected at most %d", m.rows, want)
	}
	m.data = make([]float32, m.rows*m.cols)
	if err := binary.Read(br, binary.LittleEndian, m.data); err != nil {
		return nil, fmt.Errorf("failed to read input matrix: %w", err)
	}

	m.initSubwords()
	return m, nil
}

func (m *Model) readDictionary(d *decoder, newFormat bool) error {
	size := d.int32()
	m.nwords = d.int32()
	_ = d.int32() // nlabels
	_ = d.int64() // ntokens
	if newFormat {
		m.pruneSize = d.int64()
	}
	if d.err != nil {
		return fmt.Errorf("failed to read dictionary header: %w", d.err)
	}
	if size < 0 || m.nwords < 0 || m.nwords > size {
		return fmt.Errorf("invalid dictionary sizes: size=%d nwords=%d", size, m.nwords)
	}

	m.words = make([]entry, size)
	m.index = make(map[string]int32, size)
	for i := int32(0); i < size; i++ {
		e := entry{word: d.cstring(), count: d.int64(), kind: d.int8()}
		if d.err != nil {
			return fmt.Errorf("failed to read dictionary entry %d: %w", i, d.err)
		}
		m.words[i] = e
		m.index[e.word] = i
	}

	if m.pruneSize > 0 {
		m.pruneIdx = make(map[int32]int32, m.pruneSize)
		for i := int64(0); i < m.pruneSize; i++ {
			from := d.int32()
			to := d.int32()
			m.pruneIdx[from] = to
		}
		if d.err != nil {
			return fmt.Errorf("failed to read prune index: %w", d.err)
		}
	}
	return nil
}

func (m *Model) initSubwords() {
	for i := range m.words {
		sub := []int32{int32(i)}
		if m.words[i].word != eos {
			sub = m.computeSubwords(bow+m.words[i].word+eow, sub)
		}
		m.words[i].subwords = sub
	}
}

// computeSubwords appends the n-gram row ids of word, which must already be
// wrapped in the begin/end markers. N-grams are counted in runes.
func (m *Model) computeSubwords(word string, out []int32) []int32 {
	if m.Args.Bucket <= 0 {
		return out
	}
	n := len(word)
	for i := 0; i < n; i++ {
		if word[i]&0xC0 == 0x80 {
			continue
		}
		var b strings.Builder
		for j, size := i, 1; j < n && size <= int(m.Args.MaxN); size++ {
			b.WriteByte(word[j])
			j++
			for j < n && word[j]&0xC0 == 0x80 {
				b.WriteByte(word[j])
				j++
			}
			if size >= int(m.Args.MinN) && !(size == 1 && (i == 0 || j == n)) {
				h := int32(hash(b.String()) % uint32(m.Args.Bucket))
				out = m.pushHash(out, h)
			}
		}
	}
	return out
}

func (m *Model) pushHash(out []int32, id int32) []int32 {
	if m.pruneSize == 0 || id < 0 {
		return out
	}
	if m.pruneSize > 0 {
		mapped, ok := m.pruneIdx[id]
		if !ok {
			return out
		}
		id = mapped
	}
	return append(out, m.nwords+id)
}

// hash is fastText's FNV-1a variant, which sign-extends each byte.
func hash(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(int8(s[i]))
		h *= 16777619
	}
	return h
}

// Dim returns the vector dimension.
func (m *Model) Dim() int {
	return int(m.Args.Dim)
}

// WordCount returns the number of in-vocabulary words.
func (m *Model) WordCount() int {
	return int(m.nwords)
}

// Contains reports whether word is in the model dictionary.
func (m *Model) Contains(word string) bool {
	_, ok := m.index[word]
	return ok
}

// Subwords returns the input matrix rows that make up word.
func (m *Model) Subwords(word string) []int32 {
	if id, ok := m.index[word]; ok {
		return m.words[id].subwords
	}
	if word == eos {
		return nil
	}
	return m.computeSubwords(bow+word+eow, nil)
}

// GetWordVector returns the average of the rows for word and its n-grams.
// Unknown words without any n-gram produce a zero vector.
func (m *Model) GetWordVector(word string) []float32 {
	vec := make([]float32, m.cols)
	rows := m.Subwords(word)
	for _, r := range rows {
		if int64(r) >= m.rows {
			continue
		}
		row := m.data[int64(r)*m.cols : (int64(r)+1)*m.cols]
		for i, v := range row {
			vec[i] += v
		}
	}
	if len(rows) > 0 {
		scale := 1 / float32(len(rows))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

type decoder struct {
	r   *bufio.Reader
	err error
	buf [8]byte
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.err = err
	}
	return d.buf[:n]
}

func (d *decoder) int8() int8 {
	return int8(d.read(1)[0])
}

func (d *decoder) bool() bool {
	return d.read(1)[0] != 0
}

func (d *decoder) int32() int32 {
	return int32(binary.LittleEndian.Uint32(d.read(4)))
}

func (d *decoder) int64() int64 {
	return int64(binary.LittleEndian.Uint64(d.read(8)))
}

func (d *decoder) float64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(d.read(8)))
}

func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	s, err := d.r.ReadString(0)
	if err != nil {
		d.err = err
		return ""
	}
	return s[:len(s)-1]
}
