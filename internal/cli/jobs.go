package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/staging"
)

func jobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Stage job rows for the spreadsheet register",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List staged job rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			rows := p.Jobs.Pending()
			if len(rows) == 0 {
				fmt.Fprintln(a.out, "No staged job rows")
				return nil
			}
			table(a.out, "ID\tMA\tTHANG\tMAKH\tSOTIEN\tTRANGTHAI\tNOIDUNG1", func(w io.Writer) {
				for _, e := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", e.RecordID(), e.Ma, orDash(e.Thang),
						orDash(string(e.MaKH)), orDash(string(e.SoTien)), orDash(e.TrangThai), orDash(e.NoiDung1))
				}
			})
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Stage a job row",
		Long: `Stage a job row. --text fills the code, charge and month from pasted notice text;
explicit flags win over what was parsed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := jobFromFlags(cmd.Flags(), models.JobEntry{})
			if err != nil {
				return err
			}
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			e, err = p.Jobs.Add(cmd.Context(), e)
			return statusLine(a.out, err, "Staged %s", e.Ma)
		},
	}
	jobFlags(add.Flags())
	add.Flags().String("text", "", "Pasted notice text to parse")

	edit := &cobra.Command{
		Use:   "edit <id|code>",
		Short: "Take a staged row out, change it and stage it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			e, err := p.Jobs.LoadForEditing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e, err = jobFromFlags(cmd.Flags(), e)
			if err == nil {
				e, err = p.Jobs.Add(cmd.Context(), e)
			}
			if err != nil && !isLocalOnly(err) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Row was taken out but not staged again:")
				_ = printJSON(cmd.ErrOrStderr(), e)
				return err
			}
			return statusLine(a.out, err, "Updated %s", e.Ma)
		},
	}
	jobFlags(edit.Flags())

	del := &cobra.Command{
		Use:   "delete <id|code>",
		Short: "Remove a staged row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			return statusLine(a.out, p.Jobs.Delete(cmd.Context(), args[0]), "Removed %s", args[0])
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Push every staged row to the register and clear the staging list",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			n, err := p.Jobs.Sync(cmd.Context())
			return statusLine(a.out, err, "Sent %d rows to the register", n)
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Drop staged rows whose code is already in the register",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			existing, err := p.Jobs.CheckExisting(cmd.Context())
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				fmt.Fprintf(a.out, "%s No staged row is in the register yet\n", okMark)
				return nil
			}
			for _, ma := range existing {
				fmt.Fprintf(a.out, "  %s\n", ma)
			}
			return statusLine(a.out, nil, "Removed %d rows already in the register", len(existing))
		},
	}

	load := &cobra.Command{
		Use:   "load <code>",
		Short: "Copy a register row into staging, applying any field flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			e, err := p.Jobs.LoadFromSheet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e, err = jobFromFlags(cmd.Flags(), e); err != nil {
				return err
			}
			e, err = p.Jobs.Add(cmd.Context(), e)
			return statusLine(a.out, err, "Staged %s from the register", e.Ma)
		},
	}
	jobFlags(load.Flags())

	parse := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show the fields that would be read from pasted notice text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fill, ok := staging.ParseJobText(args[0])
			if !ok {
				return fmt.Errorf("no job code, charge or date found")
			}
			return printJSON(cmd.OutOrStdout(), fill)
		},
	}

	export := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Write the staged rows to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := p.Jobs.ExportXLSX(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			return statusLine(a.out, nil, "Exported %d rows to %s", len(p.Jobs.Pending()), args[0])
		},
	}

	imp := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Stage every row of a spreadsheet in the export layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := p.Jobs.ImportXLSX(cmd.Context(), f)
			if err != nil {
				warnLine(a.out, "Some rows were not staged cleanly:\n%v", err)
			}
			fmt.Fprintf(a.out, "%s Staged %d rows from %s\n", okMark, n, args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, edit, del, syncCmd, check, load, parse, export, imp)
	return cmd
}

func jobFlags(fs *pflag.FlagSet) {
	fs.String("ma", "", "Job code (Ma)")
	fs.String("thang", "", "Month, e.g. \"Tháng 3\"")
	fs.String("makh", "", "Local charge")
	fs.String("sotien", "", "Amount")
	fs.String("trangthai", "", "Status")
	fs.String("nd1", "", "Note 1")
	fs.String("nd2", "", "Note 2")
}

// jobFromFlags applies parsed --text and then every flag that was set to base.
func jobFromFlags(fs *pflag.FlagSet, base models.JobEntry) (models.JobEntry, error) {
	e := base
	if fs.Lookup("text") != nil && fs.Changed("text") {
		text, _ := fs.GetString("text")
		fill, ok := staging.ParseJobText(text)
		if !ok {
			return e, fmt.Errorf("no job code, charge or date found in --text")
		}
		e = staging.MergeJobFill(e, fill)
	}
	set := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	set("ma", &e.Ma)
	set("thang", &e.Thang)
	set("trangthai", &e.TrangThai)
	set("nd1", &e.NoiDung1)
	set("nd2", &e.NoiDung2)
	var makh, sotien string
	set("makh", &makh)
	set("sotien", &sotien)
	if makh != "" {
		e.MaKH = models.Amount(makh)
	}
	if sotien != "" {
		e.SoTien = models.Amount(sotien)
	}
	return e, nil
}
