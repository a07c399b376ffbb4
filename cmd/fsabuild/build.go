package main

import (
	"SparseFSA/fsa"
	"SparseFSA/logging"
	"SparseFSA/utils"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/dustin/go-humanize"
	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

func newBuildCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an automaton from a key list",
		Long: `Build an automaton from a key list with one entry per line:
a key, optionally followed by a tab and an integer value and another tab and
a weight. Keys must be sorted bytewise unless --sort is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, v)
		},
	}
	flags := cmd.Flags()
	flags.StringP("input", "i", "-", "input file, - for stdin")
	flags.StringP("output", "o", "", "output file")
	flags.String("format", "keyvi", "output format (keyvi, container)")
	flags.String("memory-limit", "64MiB", "memory used for the sparse array buffer and the minimization cache")
	flags.String("temp-dir", "", "directory for temporary chunk files")
	flags.Bool("sort", false, "sort and deduplicate the input in memory, the last value wins")
	flags.Bool("weights", false, "store inner weights")
	flags.String("value-store", "key-only", "value store (key-only, int)")
	flags.Bool("minimize", true, "share equal states")
	flags.String("metrics", "", "write construction metrics in Prometheus text format to this file, - for stdout")
	flags.Bool("progress", false, "show a progress bar")
	flags.String("mem-report", "", "print the memory usage before finalizing (text, json)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func buildConfig(v *viper.Viper) (fsa.Config, error) {
	config := fsa.DefaultConfig()
	limit, err := humanize.ParseBytes(v.GetString("memory-limit"))
	if err != nil {
		return config, fmt.Errorf("invalid memory limit: %w", err)
	}
	config.MemoryLimit = limit
	config.TempDir = v.GetString("temp-dir")
	config.InnerWeight = v.GetBool("weights")
	config.Minimize = v.GetBool("minimize")
	if config.ValueStore, err = fsa.ValueStoreByName(v.GetString("value-store")); err != nil {
		return config, err
	}
	return config, nil
}

func runBuild(cmd *cobra.Command, v *viper.Viper) (err error) {
	log := logging.New("fsabuild")
	format, err := fsa.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	config, err := buildConfig(v)
	if err != nil {
		return err
	}
	set := metrics.NewSet()
	config.Metrics = set

	in, err := openInput(cmd, v.GetString("input"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, in.Close()) }()

	g, err := fsa.NewGenerator(config)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, g.Close()) }()

	var it fsa.KeyIterator
	total := int64(-1)
	if v.GetBool("sort") {
		tree, err := sortEntries(fsa.NewLineKeyIterator(in))
		if err != nil {
			return err
		}
		it = newTreeIterator(tree)
		total = int64(tree.Len())
	} else {
		it = fsa.NewCheckedSortedIterator(fsa.NewLineKeyIterator(in))
	}
	if err = add(g, it, total, v.GetBool("progress")); err != nil {
		return err
	}

	if err = printMemReport(cmd.ErrOrStderr(), v.GetString("mem-report"), g.MemReport()); err != nil {
		return err
	}
	if err = g.CloseFeeding(); err != nil {
		return err
	}
	output := v.GetString("output")
	if err = g.WriteFile(output, format); err != nil {
		return err
	}

	info, err := os.Stat(output)
	if err != nil {
		return err
	}
	log.Infow("wrote automaton",
		"path", output,
		"format", format,
		"keys", humanize.Comma(int64(g.NumberOfKeys())),
		"states", humanize.Comma(int64(g.NumberOfStates())),
		"size", humanize.IBytes(uint64(info.Size())),
	)
	return writeMetrics(cmd.OutOrStdout(), v.GetString("metrics"), set)
}

func printMemReport(w io.Writer, format string, report utils.MemReport) error {
	switch format {
	case "":
		return nil
	case "text":
		return report.Print(w)
	case "json":
		_, err := fmt.Fprintln(w, report.JSON())
		return err
	default:
		return fmt.Errorf("invalid memory report format %q", format)
	}
}

func add(g *fsa.Generator, it fsa.KeyIterator, total int64, progress bool) error {
	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.Default(total, "adding keys")
		defer func() { _ = bar.Finish() }()
	}
	for it.Next() {
		if err := g.AddEntry(it.Key(), it.Value()); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return it.Error()
}

// sortEntries reads all entries into a radix tree, which orders them
// bytewise and keeps the last value of duplicate keys.
func sortEntries(it fsa.KeyIterator) (*iradix.Tree, error) {
	txn := iradix.New().Txn()
	for it.Next() {
		txn.Insert(bytes.Clone(it.Key()), it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return txn.Commit(), nil
}

// treeIterator adapts a radix tree to fsa.KeyIterator.
type treeIterator struct {
	iter  *iradix.Iterator
	key   []byte
	value fsa.Value
}

func newTreeIterator(tree *iradix.Tree) *treeIterator {
	return &treeIterator{iter: tree.Root().Iterator()}
}

func (it *treeIterator) Next() bool {
	k, v, ok := it.iter.Next()
	if !ok {
		return false
	}
	it.key, it.value = k, v.(fsa.Value)
	return true
}

func (it *treeIterator) Key() []byte {
	return it.key
}

func (it *treeIterator) Value() fsa.Value {
	return it.value
}

func (it *treeIterator) Error() error {
	return nil
}

func writeMetrics(stdout io.Writer, path string, set *metrics.Set) (err error) {
	switch path {
	case "":
		return nil
	case "-":
		set.WritePrometheus(stdout)
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	set.WritePrometheus(f)
	return nil
}
