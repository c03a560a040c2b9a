package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

func newSchemaCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Resolve a schema file and list its entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := opts.loadSchema()
			if err != nil {
				return err
			}
			for _, e := range ctx.Entities() {
				describe(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
}

func describe(w io.Writer, e *schema.EntityDescriptor) {
	kind := "node"
	if e.IsRelationshipPropertiesEntity() {
		kind = "relationship properties"
	}
	fmt.Fprintf(w, "%s (%s)\n", e.Name(), kind)
	if !e.IsRelationshipPropertiesEntity() {
		fmt.Fprintf(w, "  labels: %s\n", strings.Join(e.StaticLabels(), ", "))
	}
	if parent := e.Parent(); parent != nil {
		fmt.Fprintf(w, "  parent: %s\n", parent.Name())
	}
	if id := e.IDDescriptor(); id != nil {
		if name, ok := id.GraphPropertyName(); ok {
			fmt.Fprintf(w, "  id: %s (%s)\n", name, id.Strategy())
		} else {
			fmt.Fprintf(w, "  id: %s\n", id.Strategy())
		}
	}
	if v := e.VersionProperty(); v != nil {
		fmt.Fprintf(w, "  version: %s\n", v.GraphPropertyName())
	}
	if e.IsImmutable() {
		fmt.Fprintln(w, "  immutable")
	}
	for _, p := range e.Properties() {
		if p.IsWritable() {
			fmt.Fprintf(w, "  property %s -> %s\n", p.FieldName(), p.GraphPropertyName())
		}
	}
	for _, rel := range e.Relationships() {
		fmt.Fprintf(w, "  relationship %s\n", rel)
	}
}
