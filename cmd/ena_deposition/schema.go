package main

import (
	"errors"
	"fmt"

	configs "github.com/loculus-project/ena-deposition/pkg/configs/deposition"
	kpg "github.com/loculus-project/ena-deposition/pkg/db/postgres"
	kpgschema "github.com/loculus-project/ena-deposition/pkg/db/postgres/schema"
	"github.com/spf13/cobra"
)

func SchemaCmd(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "upgrade",
		Short: "Create or upgrade tables to the latest version",
		Long: `Apply schema versions newer than the database has, in one transaction.

For sqlite databases, tables are created when the database is opened.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, err := configs.LoadConfig(g.Config)
			if err != nil {
				return fmt.Errorf("can not read configuration: %w", err)
			}

			store, err := OpenStore(ctx, conf.Database())
			if err == nil {
				store.Close()
				cmd.Println("schema is up to date.")
				return nil
			} else if !errors.Is(err, kpgschema.ErrOutdated) {
				return err
			}

			pg, err := kpg.New(ctx, conf.Database())
			if err != nil {
				return err
			}
			defer pg.Close()

			schema := pg.Schema()
			before, err := schema.Version(ctx)
			if err != nil {
				return err
			}
			if err := schema.Upgrade(ctx); err != nil {
				return err
			}
			after, err := schema.Version(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("schema is upgraded: version %d -> %d\n", before, after)
			return nil
		},
	})
	return cmd
}
