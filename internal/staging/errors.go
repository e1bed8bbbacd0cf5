package staging

import "errors"

var (
	// ErrMissingKey is returned when the identifying field of a record is blank.
	ErrMissingKey = errors.New("required field is empty")
	// ErrDuplicateKey is returned when the key is already in the pending list.
	ErrDuplicateKey = errors.New("already in the pending list")
	// ErrNotFound is returned when no record matches the given id.
	ErrNotFound = errors.New("record not found")
	// ErrLocalOnly means the change is kept in memory and in the mirror but did not reach
	// the remote store.
	ErrLocalOnly = errors.New("saved locally only")
	// ErrUnknownRemoteState means the remote document could not be read after a file was
	// already uploaded; saving anyway could overwrite other changes.
	ErrUnknownRemoteState = errors.New("remote state unknown")
	// ErrNothingToSync is returned by a sync or check on an empty pending list.
	ErrNothingToSync = errors.New("nothing to sync")
	// ErrFileTooLarge is returned before uploading a file over MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds 4MB")
	// ErrUnsupported is returned for operations the collection layout does not have.
	ErrUnsupported = errors.New("operation not supported for this collection")
)

func isLocalOnly(err error) bool { return errors.Is(err, ErrLocalOnly) }
