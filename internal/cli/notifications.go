package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/opsportal/internal/notify"
	"github.com/Lllllllleong/opsportal/internal/staging"
)

func notificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Recent activity on this machine",
	}
	feed := func() (*notify.Feed, error) {
		m, err := a.openMirror()
		if err != nil {
			return nil, err
		}
		return notify.NewFeed(m, a.emitter), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := feed()
			if err != nil {
				return err
			}
			items, err := f.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(a.out, "No notifications")
				return nil
			}
			unread := color.New(color.FgHiMagenta).Sprint("●")
			table(a.out, " \tWHEN\tUSER\tACTION\tDETAILS", func(w io.Writer) {
				for _, n := range items {
					mark := " "
					if !n.Read {
						mark = unread
					}
					when := n.Timestamp
					if t, err := time.Parse(time.RFC3339Nano, n.Timestamp); err == nil {
						when = t.Local().Format("2006-01-02 15:04")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, when, n.UserEmail, n.Action, n.Details)
				}
			})
			return nil
		},
	}

	read := &cobra.Command{
		Use:   "read",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := feed()
			if err != nil {
				return err
			}
			return statusLine(a.out, f.MarkAllRead(cmd.Context()), "All notifications read")
		},
	}

	cmd.AddCommand(list, read)
	return cmd
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending counts from the local mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.openMirror()
			if err != nil {
				return err
			}
			c, err := staging.PendingCounts(cmd.Context(), m)
			if err != nil {
				return err
			}
			unread, err := notify.NewFeed(m, a.emitter).UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			table(a.out, "DESK\tPENDING", func(w io.Writer) {
				fmt.Fprintf(w, "jobs\t%d\n", c.Jobs)
				fmt.Fprintf(w, "mbl\t%d\n", c.MblPayments)
				fmt.Fprintf(w, "submissions\t%d\n", c.Submissions)
				fmt.Fprintf(w, "total\t%d\n", c.Total())
			})
			fmt.Fprintf(a.out, "Unread notifications: %d\n", unread)
			return nil
		},
	}
}
