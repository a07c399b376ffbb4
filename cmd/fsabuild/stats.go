package main

import (
	"SparseFSA/fsa"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func newStatsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the properties of an automaton",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringP("automaton", "a", "", "automaton file")
	cmd.Flags().Bool("lengths", false, "enumerate all keys and print a key length histogram")
	_ = cmd.MarkFlagRequired("automaton")
	return cmd
}

func runStats(out io.Writer, v *viper.Viper) (err error) {
	path := v.GetString("automaton")
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	a, err := fsa.OpenFile(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "format\t%s\n", a.Format())
	fmt.Fprintf(tw, "keys\t%s\n", humanize.Comma(int64(a.NumberOfKeys())))
	fmt.Fprintf(tw, "states\t%s\n", humanize.Comma(int64(a.NumberOfStates())))
	fmt.Fprintf(tw, "start state\t%d\n", a.StartState())
	fmt.Fprintf(tw, "value store\t%d\n", a.ValueStoreType())
	fmt.Fprintf(tw, "cells\t%s\n", humanize.Comma(int64(a.Size())))
	fmt.Fprintf(tw, "file size\t%s\n", humanize.IBytes(uint64(info.Size())))
	if err = tw.Flush(); err != nil {
		return err
	}

	if !v.GetBool("lengths") {
		return nil
	}
	histogram := map[int]uint64{}
	if err = a.Keys(func(key []byte, _ uint64) bool {
		histogram[len(key)]++
		return true
	}); err != nil {
		return err
	}
	lengths := maps.Keys(histogram)
	slices.Sort(lengths)
	fmt.Fprintln(tw, "\nlength\tkeys")
	for _, l := range lengths {
		fmt.Fprintf(tw, "%d\t%d\n", l, histogram[l])
	}
	return tw.Flush()
}
