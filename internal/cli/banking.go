package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/staging"
)

func bankingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banking",
		Short: "Transfer beneficiaries kept on this machine",
	}
	book := func() (*staging.BankingBook, error) {
		m, err := a.openMirror()
		if err != nil {
			return nil, err
		}
		return staging.NewBankingBook(m), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List beneficiaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			entries, err := b.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No banking entries")
				return nil
			}
			table(a.out, "ID\tBANK\tACCOUNT\tHOLDER\tAMOUNT\tCONTENT", func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.BankName, e.AccountNumber, e.AccountHolder,
						orDash(string(e.Amount)), orDash(e.Content))
				}
			})
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a beneficiary",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			e, err := b.Add(cmd.Context(), bankingFromFlags(cmd.Flags(), models.BankingEntry{}))
			if err != nil {
				return err
			}
			return statusLine(a.out, nil, "Added %s", e.AccountHolder)
		},
	}
	bankingFlags(add.Flags())

	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			e, err := b.LoadForEditing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			updated, err := b.Add(cmd.Context(), bankingFromFlags(cmd.Flags(), e))
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Entry was taken out but not saved again:")
				_ = printJSON(cmd.ErrOrStderr(), e)
				return err
			}
			return statusLine(a.out, nil, "Updated %s", updated.AccountHolder)
		},
	}
	bankingFlags(edit.Flags())

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book()
			if err != nil {
				return err
			}
			return statusLine(a.out, b.Delete(cmd.Context(), args[0]), "Removed %s", args[0])
		},
	}

	cmd.AddCommand(list, add, edit, del)
	return cmd
}

func bankingFlags(fs *pflag.FlagSet) {
	fs.String("bank", "", "Bank name")
	fs.String("account", "", "Account number")
	fs.String("holder", "", "Account holder")
	fs.String("amount", "", "Amount")
	fs.String("content", "", "Transfer content")
}

func bankingFromFlags(fs *pflag.FlagSet, e models.BankingEntry) models.BankingEntry {
	set := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	set("bank", &e.BankName)
	set("account", &e.AccountNumber)
	set("holder", &e.AccountHolder)
	set("content", &e.Content)
	if fs.Changed("amount") {
		v, _ := fs.GetString("amount")
		e.Amount = models.Amount(v)
	}
	return e
}
