package staging

import (
	"context"
	"errors"

	"github.com/Lllllllleong/opsportal/internal/notify"
)

// Portal bundles the desks of one operator session.
type Portal struct {
	Jobs        *JobsDesk
	Mbl         *MblDesk
	Submissions *SubmissionsDesk
	Banking     *BankingBook
	Feed        *notify.Feed
}

// NewPortal wires every desk to the same remote store, mirror and emitter. user is the
// name recorded in the activity feed.
func NewPortal(deps Deps, register Register, user string) *Portal {
	if deps.Emitter == nil {
		deps.Emitter = notify.Default()
	}
	feed := notify.NewFeed(deps.Mirror, deps.Emitter)
	return &Portal{
		Jobs:        NewJobsDesk(deps, register),
		Mbl:         NewMblDesk(deps, feed, user),
		Submissions: NewSubmissionsDesk(deps, feed, user),
		Banking:     NewBankingBook(deps.Mirror),
		Feed:        feed,
	}
}

// Load refreshes every remote-backed desk. Desks that could not be loaded show their
// mirrored data; their errors are joined.
func (p *Portal) Load(ctx context.Context) error {
	return errors.Join(
		p.Jobs.Load(ctx),
		p.Mbl.Load(ctx),
		p.Submissions.Load(ctx),
	)
}
