package staging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/opsportal/internal/models"
)

var (
	leadingChargePattern = regexp.MustCompile(`^(\d{1,3}(,\d{3})*(\.\d+)?)`)
	jobPrefixPattern     = regexp.MustCompile(`(?i)(K\s*M\s*L\s*S\s*H\s*A|K\s*M\s*L\s*T\s*A\s*O)`)
	datePattern          = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
)

const jobDigits = 8

// ParseJobText pulls job fields out of text pasted from a bank or carrier notice: the
// leading amount becomes MaKH, a KMLSHA/KMLTAO code (spaces allowed inside the prefix)
// followed by up to eight digits becomes Ma, and the first dd/mm/yyyy date sets the
// month. ok is false when nothing was recognised.
func ParseJobText(text string) (fill models.JobEntry, ok bool) {
	if m := leadingChargePattern.FindString(text); m != "" {
		fill.MaKH = models.Amount(strings.ReplaceAll(m, ",", ""))
		ok = true
	}

	if loc := jobPrefixPattern.FindStringIndex(text); loc != nil {
		prefix := strings.ToUpper(strings.Join(strings.Fields(text[loc[0]:loc[1]]), ""))
		var digits strings.Builder
		for _, r := range text[loc[1]:] {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
				if digits.Len() == jobDigits {
					break
				}
			}
		}
		if digits.Len() > 0 {
			fill.Ma = prefix + digits.String()
			ok = true
		}
	}

	if m := datePattern.FindStringSubmatch(text); m != nil {
		if month, err := strconv.Atoi(m[2]); err == nil && month >= 1 && month <= 12 {
			fill.Thang = fmt.Sprintf("Tháng %d", month)
			ok = true
		}
	}
	return fill, ok
}

// MergeJobFill copies the fields set in fill over e.
func MergeJobFill(e, fill models.JobEntry) models.JobEntry {
	if fill.MaKH != "" {
		e.MaKH = fill.MaKH
	}
	if fill.Ma != "" {
		e.Ma = fill.Ma
	}
	if fill.Thang != "" {
		e.Thang = fill.Thang
	}
	return e
}
