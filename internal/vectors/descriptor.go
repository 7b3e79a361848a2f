package vectors

import (
	"context"
	"strings"
)

const (
	familyFastText = "fasttext"
	formatBinary   = "bin"
	formatText     = "vec"

	WikiNewsSuffix = "wiki-news-300d-1M.vec.zip"
	CrawlSuffix    = "crawl-300d-2M.vec.zip"
)

// Descriptor is the parsed form of a symbolic vector-set name. The set of
// variants is closed: BinaryFastText, TextFastText and Alias.
type Descriptor interface {
	Load(ctx context.Context, l *Loader, cacheDir string) (Vectors, error)
	isDescriptor()
}

// BinaryFastText is a fastText wiki subword model, "fasttext.<lang>.bin".
type BinaryFastText struct {
	Language string
}

// TextFastText is a fastText text vector file, "fasttext.wiki.vec" or
// "fasttext.crawl.vec".
type TextFastText struct {
	Suffix string
}

// Alias is any other name, resolved through the alias registry.
type Alias struct {
	Name string
}

func (BinaryFastText) isDescriptor() {}
func (TextFastText) isDescriptor()   {}
func (Alias) isDescriptor()          {}

// Load implements Descriptor.
func (d BinaryFastText) Load(ctx context.Context, l *Loader, cacheDir string) (Vectors, error) {
	s, err := l.LoadBinary(ctx, d.Language, cacheDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Load implements Descriptor.
func (d TextFastText) Load(ctx context.Context, l *Loader, cacheDir string) (Vectors, error) {
	t, err := l.LoadText(ctx, d.Suffix, cacheDir)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Load implements Descriptor. Unknown names fail with *UnknownNameError.
func (d Alias) Load(ctx context.Context, l *Loader, cacheDir string) (Vectors, error) {
	reg := l.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	factory, err := reg.Lookup(d.Name)
	if err != nil {
		return nil, err
	}
	return factory(ctx, l, cacheDir)
}

// ParseName splits name into family, tag and format. Only names of exactly
// three parts in the fasttext family with a recognised format and tag map to
// a built-in loader; everything else, including "fasttext.xx.vec" with an
// unknown corpus tag, falls through to Alias.
func ParseName(name string) Descriptor {
	parts := strings.Split(name, ".")
	if len(parts) != 3 || parts[0] != familyFastText {
		return Alias{Name: name}
	}
	tag, format := parts[1], parts[2]
	switch {
	case format == formatBinary && tag != "":
		return BinaryFastText{Language: tag}
	case format == formatText && tag == "wiki":
		return TextFastText{Suffix: WikiNewsSuffix}
	case format == formatText && tag == "crawl":
		return TextFastText{Suffix: CrawlSuffix}
	}
	return Alias{Name: name}
}
