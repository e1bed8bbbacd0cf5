package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Lllllllleong/opsportal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	records []models.UploadRecord
	findErr error
}

func (l *fakeLedger) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	if l.findErr != nil {
		return "", false, l.findErr
	}
	for _, r := range l.records {
		if r.FileHash == fileHash {
			return r.Pathname, true, nil
		}
	}
	return "", false, nil
}

func (l *fakeLedger) Record(ctx context.Context, rec models.UploadRecord) (string, error) {
	l.records = append(l.records, rec)
	return "doc-" + rec.Pathname, nil
}

func openerFor(objects map[string]string) ObjectOpener {
	return func(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
		body, ok := objects[name]
		if !ok {
			return nil, errors.New("object not found")
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

func TestUploadAudit_RecordsAndFlagsDuplicates(t *testing.T) {
	ledger := &fakeLedger{}
	f := NewUploadAuditWith(openerFor(map[string]string{
		"CVHC/KML1/a.png": "same-bytes",
		"MBL/KML2/b.png":  "same-bytes",
	}), ledger, UploadAuditConfig{IgnorePrefixes: []string{"db/"}})
	ctx := context.Background()

	first, err := f.Process(ctx, GCSEvent{Bucket: "b", Name: "CVHC/KML1/a.png", Size: "10"})
	require.NoError(t, err)
	assert.Equal(t, AuditStatusRecorded, first.Status)
	assert.Equal(t, "CVHC", first.Folder)
	assert.Equal(t, "KML1", first.JobID)
	assert.Equal(t, int64(10), first.Size)
	assert.Len(t, first.FileHash, 64)

	second, err := f.Process(ctx, GCSEvent{Bucket: "b", Name: "MBL/KML2/b.png"})
	require.NoError(t, err)
	assert.Equal(t, AuditStatusDuplicate, second.Status)
	assert.Equal(t, "CVHC/KML1/a.png", second.DuplicateOf)
	assert.Len(t, ledger.records, 2)
}

func TestUploadAudit_RedeliveryIsSkipped(t *testing.T) {
	ledger := &fakeLedger{}
	f := NewUploadAuditWith(openerFor(map[string]string{"DONE/J/x.pdf": "x"}), ledger, UploadAuditConfig{})
	ctx := context.Background()

	_, err := f.Process(ctx, GCSEvent{Name: "DONE/J/x.pdf"})
	require.NoError(t, err)
	rec, err := f.Process(ctx, GCSEvent{Name: "DONE/J/x.pdf"})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Len(t, ledger.records, 1)
}

func TestUploadAudit_IgnoresStoreDocuments(t *testing.T) {
	ledger := &fakeLedger{}
	f := NewUploadAuditWith(openerFor(nil), ledger, UploadAuditConfig{IgnorePrefixes: []string{"db/"}})

	rec, err := f.Process(context.Background(), GCSEvent{Name: "db/mbl_full_data.json"})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, ledger.records)
}

func TestUploadAudit_Failures(t *testing.T) {
	ctx := context.Background()

	f := NewUploadAuditWith(openerFor(nil), &fakeLedger{}, UploadAuditConfig{})
	_, err := f.Process(ctx, GCSEvent{Bucket: "b", Name: "missing"})
	assert.ErrorContains(t, err, "failed to open")

	f = NewUploadAuditWith(openerFor(map[string]string{"a": "x"}), &fakeLedger{findErr: errors.New("firestore down")}, UploadAuditConfig{})
	_, err = f.Process(ctx, GCSEvent{Name: "a"})
	assert.ErrorContains(t, err, "firestore down")
}

type fakeHandoff struct {
	started []string
	err     error
}

func (h *fakeHandoff) Start(ctx context.Context, documentID string, rec models.UploadRecord) error {
	h.started = append(h.started, documentID+":"+rec.Status)
	return h.err
}

func TestUploadAudit_HandsOffNewRecords(t *testing.T) {
	handoff := &fakeHandoff{}
	f := NewUploadAuditWith(openerFor(map[string]string{
		"MBL/ONE/a.pdf":  "same",
		"DONE/ONE/b.pdf": "same",
	}), &fakeLedger{}, UploadAuditConfig{}).WithHandoff(handoff)

	_, err := f.Process(context.Background(), GCSEvent{Bucket: "b", Name: "MBL/ONE/a.pdf"})
	require.NoError(t, err)
	_, err = f.Process(context.Background(), GCSEvent{Bucket: "b", Name: "DONE/ONE/b.pdf"})
	require.NoError(t, err)
	// Redelivery records nothing and hands off nothing.
	_, err = f.Process(context.Background(), GCSEvent{Bucket: "b", Name: "MBL/ONE/a.pdf"})
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-MBL/ONE/a.pdf:RECORDED", "doc-DONE/ONE/b.pdf:DUPLICATE"}, handoff.started)
}

func TestUploadAudit_HandoffFailureKeepsRecord(t *testing.T) {
	ledger := &fakeLedger{}
	f := NewUploadAuditWith(openerFor(map[string]string{"CVHC/H1/a.pdf": "x"}), ledger, UploadAuditConfig{}).
		WithHandoff(&fakeHandoff{err: errors.New("workflows unavailable")})

	rec, err := f.Process(context.Background(), GCSEvent{Bucket: "b", Name: "CVHC/H1/a.pdf"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, ledger.records, 1)
}
