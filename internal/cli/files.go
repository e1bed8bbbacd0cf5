package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/opsportal/internal/services"
)

func filesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse and manage stored files",
	}

	list := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List stored files, optionally under a folder prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			files, err := c.ListFiles(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(a.out, "No files")
				return nil
			}
			table(a.out, "PATH\tSIZE\tUPLOADED", func(w io.Writer) {
				for _, f := range files {
					fmt.Fprintf(w, "%s\t%d\t%s\n", f.Pathname, f.Size, f.UploadedAt.Local().Format("2006-01-02 15:04"))
				}
			})
			return nil
		},
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file into a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, _ := cmd.Flags().GetString("folder")
			jobID, _ := cmd.Flags().GetString("job")
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			file, closer, err := openUpload(args[0])
			if err != nil {
				return err
			}
			defer closer.Close()
			u, err := c.Upload(cmd.Context(), folder, jobID, file.Name, file.Body)
			if err != nil {
				return err
			}
			return statusLine(a.out, nil, "Uploaded %s", u)
		},
	}
	upload.Flags().String("folder", "", "Folder (CVHC, MBL, DONE)")
	upload.Flags().String("job", "", "Job or bill reference used as sub-folder")
	_ = upload.MarkFlagRequired("folder")
	_ = upload.MarkFlagRequired("job")

	del := &cobra.Command{
		Use:   "delete <url>",
		Short: "Delete a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			return statusLine(a.out, c.DeleteFile(cmd.Context(), args[0]), "Deleted %s", args[0])
		},
	}

	cmd.AddCommand(list, upload, del)
	return cmd
}

func pdfCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Local PDF tools",
	}
	tools := services.NewPDFToolsWithConfig(services.PDFToolsConfig{MaxBytes: services.DefaultPDFMaxBytes})

	pages := &cobra.Command{
		Use:   "pages <file.pdf>",
		Short: "Print the page count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			n, err := tools.PageCount(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, n)
			return nil
		},
	}

	split := &cobra.Command{
		Use:   "split <file.pdf>",
		Short: "Extract a page selection, e.g. --pages 1-3,5",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, _ := cmd.Flags().GetString("pages")
			out, _ := cmd.Flags().GetString("out")
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, err := tools.Split(cmd.Context(), data, sel)
			if err != nil {
				return err
			}
			if out == "" {
				out = suffixed(args[0], "_pages")
			}
			if err := os.WriteFile(out, result, 0o644); err != nil {
				return err
			}
			return statusLine(a.out, nil, "Wrote %s", out)
		},
	}
	split.Flags().String("pages", "", "Page selection")
	split.Flags().StringP("out", "o", "", "Output file")
	_ = split.MarkFlagRequired("pages")

	unlock := &cobra.Command{
		Use:   "unlock <file.pdf>",
		Short: "Remove the password of an encrypted PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			out, _ := cmd.Flags().GetString("out")
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			result, err := tools.Unlock(cmd.Context(), data, password)
			if err != nil {
				return err
			}
			if out == "" {
				out = suffixed(args[0], "_unlocked")
			}
			if err := os.WriteFile(out, result, 0o644); err != nil {
				return err
			}
			return statusLine(a.out, nil, "Wrote %s", out)
		},
	}
	unlock.Flags().String("password", "", "Document password")
	unlock.Flags().StringP("out", "o", "", "Output file")

	cmd.AddCommand(pages, split, unlock)
	return cmd
}

func suffixed(path, suffix string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + suffix + ext
}

func ocrCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ocr <image>",
		Short: "Extract the text of a scanned document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("api-key")
			if key == "" {
				key = a.cfg.APIKey
			}
			text, err := c.OCR(cmd.Context(), mimeTypeOf(args[0], data), base64.StdEncoding.EncodeToString(data), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, text)
			return nil
		},
	}
	cmd.Flags().String("api-key", "", "Model API key overriding the server's (API_KEY)")
	return cmd
}
