package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

func newRenderCommand(opts *options) *cobra.Command {
	var (
		entity string
		legacy bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Cypher statements generated for entities",
		Long: `Print the find, save, count and delete statements of an entity and the
statements maintaining each of its relationships. Without --entity every
node entity of the schema is rendered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := opts.loadSchema()
			if err != nil {
				return err
			}
			var g *cypher.Generator
			if legacy {
				g = cypher.New(cypher.WithLegacyIDs())
			} else {
				g = cypher.New()
			}

			if entity != "" {
				e, ok := ctx.Entity(entity)
				if !ok {
					return fmt.Errorf("%w: %s", schema.ErrUnknownEntity, entity)
				}
				return render(cmd.OutOrStdout(), g, e)
			}
			for _, e := range ctx.Entities() {
				if e.IsRelationshipPropertiesEntity() {
					continue
				}
				if err := render(cmd.OutOrStdout(), g, e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity to render")
	cmd.Flags().BoolVar(&legacy, "legacy-ids", false, "identify nodes with id() instead of elementId()")
	return cmd
}

func render(w io.Writer, g *cypher.Generator, e *schema.EntityDescriptor) error {
	section := func(title, statement string) {
		fmt.Fprintf(w, "// %s %s\n%s\n\n", title, e.Name(), statement)
	}

	section("find", g.PrepareFindOf(e, g.IDCondition(e), schema.AcceptAll()))
	section("save", g.PrepareSaveOf(e, cypher.DynamicLabels{}))
	if batch, err := g.PrepareSaveOfMultipleInstancesOf(e); err == nil {
		section("save batch", batch)
	}
	section("count", g.PrepareCountOf(e, nil))
	section("delete", g.PrepareDeleteOf(e, cypher.And(g.IDCondition(e), g.VersionCondition(e))))
	if e.DynamicLabelsProperty() != nil {
		section("labels", g.CreateStatementReturningDynamicLabels(e))
	}

	for _, rel := range e.Relationships() {
		title := "relationship " + rel.FieldName() + " of"
		if !rel.IsDynamic() {
			var (
				create string
				err    error
			)
			if rel.HasRelationshipProperties() {
				create, err = g.CreateRelationshipWithPropertiesCreationQuery(rel, "", true)
			} else {
				create, err = g.CreateRelationshipCreationQuery(rel, "")
			}
			if err != nil {
				return err
			}
			section("create "+title, create)
		}
		section("remove stale "+title, g.CreateRelationshipRemoveQuery(rel))
	}
	return nil
}
