package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func submissionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "submissions",
		Aliases: []string{"cvhc"},
		Short:   "Deposit refund documents filed per house bill",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending submissions, or completed ones with --completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			completed, _ := cmd.Flags().GetBool("completed")
			recs := p.Submissions.Repo().Pending()
			if completed {
				recs = p.Submissions.Repo().Completed()
			}
			if len(recs) == 0 {
				fmt.Fprintln(a.out, "No submissions")
				return nil
			}
			table(a.out, "ID\tHBL\tFILE\tURL", func(w io.Writer) {
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Hbl, orDash(r.FileName), orDash(r.FileURL))
				}
			})
			return nil
		},
	}
	list.Flags().Bool("completed", false, "Show completed submissions")

	add := &cobra.Command{
		Use:   "add <hbl>",
		Short: "Upload a refund document and stage it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			file, closer, err := openUpload(path)
			if err != nil {
				return err
			}
			defer closer.Close()
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := p.Submissions.Add(cmd.Context(), args[0], file)
			return statusLine(a.out, err, "Staged submission %s for %s", rec.ID, rec.Hbl)
		},
	}
	add.Flags().String("file", "", "Refund document")
	_ = add.MarkFlagRequired("file")

	complete := &cobra.Command{
		Use:   "complete <id>",
		Short: "Upload the refund receipt and mark the submission completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			file, closer, err := openUpload(path)
			if err != nil {
				return err
			}
			defer closer.Close()
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := p.Submissions.Complete(cmd.Context(), args[0], file)
			return statusLine(a.out, err, "Completed submission %s (%s)", rec.ID, rec.Hbl)
		},
	}
	complete.Flags().String("file", "", "Refund receipt")
	_ = complete.MarkFlagRequired("file")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a pending submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			return statusLine(a.out, p.Submissions.DeletePending(cmd.Context(), args[0]), "Removed submission %s", args[0])
		},
	}

	delDone := &cobra.Command{
		Use:   "delete-completed <id>",
		Short: "Remove a completed submission and its receipt file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.desks(cmd.Context())
			if err != nil {
				return err
			}
			return statusLine(a.out, p.Submissions.DeleteCompleted(cmd.Context(), args[0]), "Removed completed submission %s", args[0])
		},
	}

	cmd.AddCommand(list, add, complete, del, delDone)
	return cmd
}
