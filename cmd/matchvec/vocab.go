package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/matchvec/internal/field"
	"github.com/fractalmind-ai/matchvec/internal/vectors"
	"github.com/fractalmind-ai/matchvec/internal/vocabstore"
)

const maxLineSize = 1 << 20

func newVocabCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Build and inspect stored field vocabularies",
	}
	cmd.AddCommand(newVocabBuildCmd(a), newVocabShowCmd(a), newVocabListCmd(a))
	return cmd
}

func newVocabBuildCmd(a *app) *cobra.Command {
	var (
		name, input, db  string
		vectorNames      []string
		identifier       bool
		minFreq, maxSize int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a field vocabulary from a file with one example per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(vectorNames) == 0 {
				vectorNames = a.cfg.Field.Vectors
			}
			if !cmd.Flags().Changed("min-freq") {
				minFreq = a.cfg.Field.MinFreq
			}
			if !cmd.Flags().Changed("max-size") {
				maxSize = a.cfg.Field.MaxSize
			}

			var opts []field.Option
			if identifier {
				opts = append(opts, field.AsIdentifier())
			} else if len(vectorNames) > 0 {
				cache, err := a.newCache()
				if err != nil {
					return err
				}
				opts = append(opts, field.WithResolver(cache))
			}
			f, err := field.New(a.fieldConfig(), opts...)
			if err != nil {
				return err
			}

			column, err := readColumn(input, f)
			if err != nil {
				return err
			}
			if f.IsIdentifier() {
				fmt.Fprintf(a.out, "%s: identifier field, %d values passed through, nothing stored\n", name, len(column))
				return nil
			}

			err = f.BuildVocab(cmd.Context(), field.VocabOptions{
				Vectors: vectors.Names(vectorNames...),
				MaxSize: maxSize,
				MinFreq: minFreq,
			}, column)
			if err != nil {
				return err
			}

			store, err := a.openStore(db)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Save(cmd.Context(), name, f.SerializableConfig(), f.Vocab()); err != nil {
				return err
			}
			v := f.Vocab()
			fmt.Fprintf(a.out, "%s: %d tokens, dim=%d\n", name, v.Len(), v.Dim())
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "field name the vocabulary is stored under")
	flags.StringVar(&input, "input", "", "text file with one example per line")
	flags.StringArrayVar(&vectorNames, "vectors", nil, "vector set to attach (repeatable)")
	flags.BoolVar(&identifier, "id", false, "treat the column as opaque identifiers")
	flags.IntVar(&minFreq, "min-freq", 1, "minimum token frequency")
	flags.IntVar(&maxSize, "max-size", 0, "maximum vocabulary size excluding specials (0 for no limit)")
	flags.StringVar(&db, "db", "", "vocabulary database path (defaults to vocabStore.path)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newVocabShowCmd(a *app) *cobra.Command {
	var (
		name, db string
		top      int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(db)
			if err != nil {
				return err
			}
			defer store.Close()
			v, err := store.Load(cmd.Context(), name, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %d tokens, dim=%d\n", name, v.Len(), v.Dim())
			for i, tok := range v.Tokens() {
				if top > 0 && i >= top {
					break
				}
				fmt.Fprintf(a.out, "%d\t%s\t%d\n", i, tok, v.Freqs[tok])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "field name")
	cmd.Flags().StringVar(&db, "db", "", "vocabulary database path (defaults to vocabStore.path)")
	cmd.Flags().IntVar(&top, "top", 20, "number of tokens to print (0 for all)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newVocabListCmd(a *app) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored vocabularies",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(db)
			if err != nil {
				return err
			}
			defer store.Close()
			infos, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTOKENS\tDIM\tUPDATED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", info.Name, info.Size, info.Dim, info.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "vocabulary database path (defaults to vocabStore.path)")
	return cmd
}

func (a *app) openStore(path string) (*vocabstore.Store, error) {
	if path == "" {
		path = a.cfg.VocabStore.Path
	}
	expanded, err := vectors.ExpandUser(path)
	if err != nil {
		return nil, err
	}
	return vocabstore.OpenStore(expanded)
}

// readColumn preprocesses every non-blank line of path into one example.
func readColumn(path string, f *field.Field) (field.Column, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	var column field.Column
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tokens, err := f.Preprocess(line)
		if err != nil {
			return nil, err
		}
		column = append(column, tokens)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return column, nil
}
