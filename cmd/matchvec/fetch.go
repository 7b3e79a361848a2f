package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/matchvec/internal/vectors"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [NAME...]",
		Short: "Download and load vector sets into the cache dir",
		Long: `Download, extract and load each named vector set, printing its dimension.
With no names, the sets listed under field.vectors in the config are fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = a.cfg.Field.Vectors
			}
			if len(names) == 0 {
				return fmt.Errorf("no vector names given")
			}
			cache, err := a.newCache()
			if err != nil {
				return err
			}
			sets, err := cache.Resolve(cmd.Context(), "", vectors.Names(names...)...)
			if err != nil {
				return err
			}
			for i, v := range sets {
				fmt.Fprintf(a.out, "%s\tdim=%d\n", names[i], v.Dim())
			}
			return nil
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup NAME TOKEN...",
		Short: "Print the vectors of tokens in .vec text format",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := a.newCache()
			if err != nil {
				return err
			}
			sets, err := cache.Resolve(cmd.Context(), "", vectors.Named(args[0]))
			if err != nil {
				return err
			}
			for _, tok := range args[1:] {
				fmt.Fprintln(a.out, formatRow(tok, sets[0].Lookup(tok)))
			}
			return nil
		},
	}
}

func formatRow(token string, vec []float32) string {
	var b strings.Builder
	b.WriteString(token)
	for _, x := range vec {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	return b.String()
}
