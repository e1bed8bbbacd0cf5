package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/Lllllllleong/opsportal/internal/staging"
)

func mblCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mbl",
		Short: "Carrier (MBL) payments awaiting a payment order",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending payments, or completed ones with --completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			completed, _ := cmd.Flags().GetBool("completed")
			recs := p.Mbl.Repo().Pending()
			if completed {
				recs = p.Mbl.Repo().Completed()
			}
			if len(recs) == 0 {
				fmt.Fprintln(a.out, "No MBL payments")
				return nil
			}
			table(a.out, "ID\tLINE\tAMOUNT\tMBL\tFILE", func(w io.Writer) {
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.MaLine, orDash(string(r.SoTien)), orDash(r.Mbl), orDash(r.HoaDonFilename))
				}
			})
			return nil
		},
	}
	list.Flags().Bool("completed", false, "Show completed payments")

	add := &cobra.Command{
		Use:   "add",
		Short: "Upload an invoice and stage the payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, _ := cmd.Flags().GetString("line")
			amount, _ := cmd.Flags().GetString("amount")
			mbl, _ := cmd.Flags().GetString("mbl")
			invoice, _ := cmd.Flags().GetString("invoice")

			file, closer, err := openUpload(invoice)
			if err != nil {
				return err
			}
			defer closer.Close()
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := p.Mbl.Add(cmd.Context(), staging.MblInput{MaLine: line, SoTien: models.Amount(amount), Mbl: mbl}, file)
			return statusLine(a.out, err, "Staged payment %s for %s", rec.ID, rec.MaLine)
		},
	}
	add.Flags().String("line", "", "Carrier line code (see mbl lines)")
	add.Flags().String("amount", "", "Amount")
	add.Flags().String("mbl", "", "Master bill of lading number")
	add.Flags().String("invoice", "", "Invoice file")
	_ = add.MarkFlagRequired("line")
	_ = add.MarkFlagRequired("invoice")

	complete := &cobra.Command{
		Use:   "complete <id>",
		Short: "Upload the payment order (UNC) and mark the payment completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unc, _ := cmd.Flags().GetString("unc")
			file, closer, err := openUpload(unc)
			if err != nil {
				return err
			}
			defer closer.Close()
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := p.Mbl.Complete(cmd.Context(), args[0], file)
			return statusLine(a.out, err, "Completed payment %s (%s)", rec.ID, rec.MaLine)
		},
	}
	complete.Flags().String("unc", "", "Payment order file")
	_ = complete.MarkFlagRequired("unc")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a pending payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			return statusLine(a.out, p.Mbl.DeletePending(cmd.Context(), args[0]), "Removed payment %s", args[0])
		},
	}

	delDone := &cobra.Command{
		Use:   "delete-completed <id>",
		Short: "Remove a completed payment and its payment order file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			return statusLine(a.out, p.Mbl.DeleteCompleted(cmd.Context(), args[0]), "Removed completed payment %s", args[0])
		},
	}

	lines := &cobra.Command{
		Use:   "lines",
		Short: "List carrier line codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range p.Mbl.LineOptions() {
				fmt.Fprintln(a.out, l)
			}
			return nil
		},
	}

	addLine := &cobra.Command{
		Use:   "add-line <name>",
		Short: "Add a carrier line code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			opts, err := p.Mbl.AddLineOption(cmd.Context(), args[0])
			return statusLine(a.out, err, "Line list now has %d entries", len(opts))
		},
	}

	download := &cobra.Command{
		Use:   "download <id>",
		Short: "Save the payment order of a completed payment as \"UNC BL <mbl>.<ext>\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			rec, ok := p.Mbl.Repo().FindCompleted(args[0])
			if !ok {
				return fmt.Errorf("completed payment %q: %w", args[0], staging.ErrNotFound)
			}
			if rec.HoaDonURL == "" {
				return fmt.Errorf("payment %s has no file", rec.ID)
			}
			dir, _ := cmd.Flags().GetString("dir")
			dest := filepath.Join(dir, staging.UNCDownloadName(rec))
			if err := downloadFile(cmd, rec.HoaDonURL, dest); err != nil {
				return err
			}
			return statusLine(a.out, nil, "Saved %s", dest)
		},
	}
	download.Flags().String("dir", ".", "Destination directory")

	cmd.AddCommand(list, add, complete, del, delDone, lines, addLine, download)
	return cmd
}

func downloadFile(cmd *cobra.Command, fileURL, dest string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: %s", fileURL, resp.Status)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}
