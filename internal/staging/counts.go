package staging

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/opsportal/internal/mirror"
)

// Counts is the number of pending records per collection, as shown on the header badge.
type Counts struct {
	Jobs        int `json:"jobs"`
	MblPayments int `json:"mblPayments"`
	Submissions int `json:"submissions"`
}

// Total sums the pending counts.
func (c Counts) Total() int { return c.Jobs + c.MblPayments + c.Submissions }

// PendingCounts reads the mirrored pending lists. It does not touch the remote store.
func PendingCounts(ctx context.Context, m mirror.Mirror) (Counts, error) {
	var c Counts
	for _, k := range []struct {
		key string
		dst *int
	}{
		{JobsMirrorKey, &c.Jobs},
		{MblMirrorKey, &c.MblPayments},
		{SubmissionsMirrorKey, &c.Submissions},
	} {
		var list []map[string]any
		if _, err := mirror.GetJSON(ctx, m, k.key, &list); err != nil {
			return c, fmt.Errorf("failed to read %s: %w", k.key, err)
		}
		*k.dst = len(list)
	}
	return c, nil
}
