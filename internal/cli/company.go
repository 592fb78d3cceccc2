package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/nao1215/yjdh/internal/company"
	"github.com/nao1215/yjdh/migrations"
	"github.com/nao1215/yjdh/pkg/migration"
	"github.com/spf13/cobra"
)

// newCompanyCmd は企業情報に関するコマンドを生成する。
func newCompanyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "企業情報を扱う",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "lookup BUSINESS_ID",
		Short:   "Palveluväylä、YRTTIの順に企業情報を取得して保存する",
		Example: color.GreenString("yjdhctl company lookup 0877830-0"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.lookupCompany(cmd, args[0])
		},
	})
	return cmd
}

// lookupCompany は企業情報を取得して表示する。
// 上流に到達できず保存済みのデータを表示する場合は警告を表示する。
func (a *app) lookupCompany(cmd *cobra.Command, businessID string) error {
	db, err := migration.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migration.Run(cmd.Context(), db, migrations.FS, migrations.Dir, a.logger); err != nil {
		return err
	}

	serviceBus, err := company.NewServiceBusClient(a.cfg.ServiceBus, a.logger)
	if err != nil {
		return err
	}
	yrtti, err := company.NewYRTTIClient(a.cfg.YRTTI, a.logger)
	if err != nil {
		return err
	}

	c, source, err := company.NewLookup(serviceBus, yrtti, company.NewStore(db), a.logger).Get(cmd.Context(), businessID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Y-tunnus\t%s\n", c.BusinessID)
	fmt.Fprintf(w, "Nimi\t%s\n", c.Name)
	fmt.Fprintf(w, "Yhtiömuoto\t%s (%d)\n", c.CompanyForm, c.CompanyFormCode)
	fmt.Fprintf(w, "Toimiala\t%s\n", c.Industry)
	fmt.Fprintf(w, "Osoite\t%s, %s %s\n", c.StreetAddress, c.Postcode, c.City)
	fmt.Fprintf(w, "Lähde\t%s\n", source)
	if err := w.Flush(); err != nil {
		return err
	}

	if source == company.SourceStale {
		fmt.Fprintln(out, color.YellowString("上流に到達できないため %s 時点の保存済みデータを表示しています",
			c.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return nil
}
