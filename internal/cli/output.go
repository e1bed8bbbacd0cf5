package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/Lllllllleong/opsportal/internal/staging"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// statusLine reports the outcome of a change. A record kept only locally is a warning,
// not a failure; any other error is returned to cobra.
func statusLine(w io.Writer, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case err == nil:
		fmt.Fprintf(w, "%s %s\n", okMark, msg)
		return nil
	case errors.Is(err, staging.ErrLocalOnly):
		fmt.Fprintf(w, "%s %s, saved locally only: %v\n", warnMark, msg, err)
		return nil
	default:
		return err
	}
}

func isLocalOnly(err error) bool { return errors.Is(err, staging.ErrLocalOnly) }

func warnLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnMark, fmt.Sprintf(format, args...))
}

func table(w io.Writer, header string, rows func(tw io.Writer)) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// openUpload opens a local file for upload. The caller closes it.
func openUpload(path string) (staging.FileUpload, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return staging.FileUpload{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return staging.FileUpload{}, nil, err
	}
	return staging.FileUpload{Name: filepath.Base(path), Size: info.Size(), Body: f}, f, nil
}

func mimeTypeOf(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
