// Package cli implements the neoogm command line tool, which inspects
// declarative schema files and renders the statements generated for them.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

type options struct {
	schemaFile string
	debug      bool
}

// NewRootCommand creates the neoogm command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "neoogm",
		Short: "Inspect neoogm schemas and the Cypher they generate",
		Long: `neoogm reads a YAML schema file describing nodes, properties and
relationships, resolves it the way the mapping library does at runtime, and
prints the resolved entities or the Cypher statements generated for them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.schemaFile, "schema", "s", "", "YAML schema file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(newSchemaCommand(opts))
	root.AddCommand(newRenderCommand(opts))
	root.AddCommand(newPingCommand(opts))
	return root
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) logger() *zap.Logger {
	if !o.debug {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return zap.NewNop()
	}
	return logger
}

// loadSchema resolves the schema file given with --schema.
func (o *options) loadSchema() (*schema.Context, error) {
	if o.schemaFile == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	defs, err := schema.LoadFile(o.schemaFile)
	if err != nil {
		return nil, err
	}
	return schema.NewContext(defs, schema.WithLogger(o.logger()))
}
