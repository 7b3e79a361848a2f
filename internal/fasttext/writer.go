package fasttext

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// NewModel builds an in-memory model from a word list and an input matrix of
// len(words)+args.Bucket rows. It is mainly used to produce small fixtures.
func NewModel(args Args, words []string, matrix []float32) (*Model, error) {
	if args.Dim <= 0 {
		return nil, fmt.Errorf("dim must be positive")
	}
	rows := int64(len(words)) + int64(args.Bucket)
	if int64(len(matrix)) != rows*int64(args.Dim) {
		return nil, fmt.Errorf("matrix has %d values, want %d", len(matrix), rows*int64(args.Dim))
	}
	m := &Model{
		Args:      args,
		words:     make([]entry, len(words)),
		index:     make(map[string]int32, len(words)),
		nwords:    int32(len(words)),
		pruneSize: -1,
		rows:      rows,
		cols:      int64(args.Dim),
		data:      matrix,
	}
	for i, w := range words {
		m.words[i] = entry{word: w, count: 1}
		m.index[w] = int32(i)
	}
	m.initSubwords()
	return m, nil
}

// Save writes the model in the current fastText binary layout with an empty
// output matrix.
func (m *Model) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	put := func(v any) {
		_ = binary.Write(bw, le, v)
	}

	put(fileFormatMagic)
	put(fileVersion)
	a := m.Args
	for _, v := range []int32{a.Dim, a.WS, a.Epoch, a.MinCount, a.Neg, a.WordNgrams, a.Loss, a.Model, a.Bucket, a.MinN, a.MaxN, a.LRUpdateRate} {
		put(v)
	}
	put(math.Float64bits(a.T))

	put(int32(len(m.words)))
	put(m.nwords)
	put(int32(len(m.words)) - m.nwords)
	var ntokens int64
	for _, e := range m.words {
		ntokens += e.count
	}
	put(ntokens)
	put(m.pruneSize)
	for _, e := range m.words {
		_, _ = bw.WriteString(e.word)
		_ = bw.WriteByte(0)
		put(e.count)
		put(e.kind)
	}
	for from, to := range m.pruneIdx {
		put(from)
		put(to)
	}

	put(uint8(0))
	put(m.rows)
	put(m.cols)
	put(m.data)

	put(uint8(0))
	put(int64(0))
	put(m.cols)
	return bw.Flush()
}
