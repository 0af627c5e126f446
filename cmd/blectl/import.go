package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/importer"
	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/repository"
)

func importCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a local dataset CSV into the store, replacing matching rows",
	}

	var lookup, imd string
	deprivation := &cobra.Command{
		Use:   "deprivation",
		Short: "Import the LSOA to ward lookup joined with the IMD 2019 file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runImport(cmd, "deprivation", func(ctx context.Context, im *importer.Importer) (int, error) {
				lf, err := os.Open(lookup)
				if err != nil {
					return 0, err
				}
				defer func() { _ = lf.Close() }()
				mf, err := os.Open(imd)
				if err != nil {
					return 0, err
				}
				defer func() { _ = mf.Close() }()
				return im.ImportDeprivation(ctx, lf, mf)
			})
		},
	}
	deprivation.Flags().StringVar(&lookup, "lookup", "", "LSOA 2021 to ward lookup CSV")
	deprivation.Flags().StringVar(&imd, "imd", "", "IMD 2019 LSOA CSV")
	_ = deprivation.MarkFlagRequired("lookup")
	_ = deprivation.MarkFlagRequired("imd")
	cmd.AddCommand(deprivation)

	cmd.AddCommand(fileImportCmd(e, "homelessness", "Import quarterly homelessness counts", (*importer.Importer).ImportHomelessness))
	cmd.AddCommand(fileImportCmd(e, "crime", "Import monthly borough crime counts", (*importer.Importer).ImportCrime))
	cmd.AddCommand(fileImportCmd(e, "population", "Import borough population projections", (*importer.Importer).ImportPopulation))
	return cmd
}

type importFunc func(im *importer.Importer, ctx context.Context, r io.Reader) (int, error)

func fileImportCmd(e *env, name, short string, fn importFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <file.csv>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runImport(cmd, name, func(ctx context.Context, im *importer.Importer) (int, error) {
				f, err := os.Open(args[0])
				if err != nil {
					return 0, err
				}
				defer func() { _ = f.Close() }()
				return fn(im, ctx, f)
			})
		},
	}
}

func (e *env) runImport(cmd *cobra.Command, dataset string, run func(context.Context, *importer.Importer) (int, error)) error {
	ctx := cmd.Context()
	conn, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer e.closeStore(conn)

	im := importer.New(repository.NewRepository(conn), e.logger)
	n, err := run(ctx, im)
	if err != nil {
		return fmt.Errorf("import %s: %w", dataset, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s rows\n", n, dataset)
	return nil
}
