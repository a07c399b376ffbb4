package main

import (
	"SparseFSA/fsa"
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

func newLookupCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [keys...]",
		Short: "Look up keys in an automaton",
		Long: `Look up keys in an automaton and print "key<TAB>value" for every key found
and "key<TAB>-" for every key missing. Without arguments keys are read from
--input, one per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, v, args)
		},
	}
	cmd.Flags().StringP("automaton", "a", "", "automaton file")
	cmd.Flags().StringP("input", "i", "-", "key file used without arguments, - for stdin")
	_ = cmd.MarkFlagRequired("automaton")
	return cmd
}

func runLookup(cmd *cobra.Command, v *viper.Viper, args []string) (err error) {
	a, err := fsa.OpenFile(v.GetString("automaton"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer func() { err = multierr.Append(err, out.Flush()) }()

	lookup := func(key []byte) error {
		value, ok, err := a.Get(key)
		switch {
		case err != nil:
			return fmt.Errorf("lookup %q: %w", key, err)
		case ok:
			_, err = fmt.Fprintf(out, "%s\t%d\n", key, value)
		default:
			_, err = fmt.Fprintf(out, "%s\t-\n", key)
		}
		return err
	}

	if len(args) > 0 {
		for _, key := range args {
			if err = lookup([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	}

	in, err := openInput(cmd, v.GetString("input"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, in.Close()) }()
	it := fsa.NewLineKeyIterator(in)
	for it.Next() {
		if err = lookup(it.Key()); err != nil {
			return err
		}
	}
	return it.Error()
}
