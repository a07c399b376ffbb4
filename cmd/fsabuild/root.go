package main

import (
	"SparseFSA/logging"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.3.0"

// newRootCmd wires all subcommands to one viper instance. Flags can also be
// set as FSA_<FLAG> environment variables, e.g. FSA_MEMORY_LIMIT=64MiB.
func newRootCmd() *cobra.Command {
	v := newViper()
	root := &cobra.Command{
		Use:          "fsabuild",
		Short:        "build and query minimized finite state automata",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return logging.SetLevel(v.GetString("log-level"))
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newBuildCmd(v), newLookupCmd(v), newStatsCmd(v))
	return root
}

func newViper() *viper.Viper {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix("fsa")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// openInput returns the input of cmd for "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
