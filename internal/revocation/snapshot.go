package revocation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotEntry is one entry in the exported snapshot file. The field is
// named license_id for compatibility with clients that already sync the
// file, but it carries the customer-id subject; see models.RevocationEntry.
type snapshotEntry struct {
	LicenseID string    `json:"license_id"`
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason"`
}

// snapshot is the exported registry file shape.
type snapshot struct {
	Entries     []snapshotEntry `json:"entries"`
	LastUpdated time.Time       `json:"last_updated"`
}

// ExportSnapshot writes the full registry state to path. The file is
// written to a temp file in the same directory and renamed into place so a
// crash mid-write never leaves a truncated snapshot.
func (r *Registry) ExportSnapshot(ctx context.Context, path string) error {
	entries, err := r.store.ListRevocations(ctx)
	if err != nil {
		return fmt.Errorf("list revocations: %w", err)
	}

	snap := snapshot{
		Entries:     make([]snapshotEntry, 0, len(entries)),
		LastUpdated: time.Now().UTC(),
	}
	for _, e := range entries {
		snap.Entries = append(snap.Entries, snapshotEntry{
			LicenseID: e.SubjectID.String(),
			RevokedAt: e.RevokedAt,
			Reason:    e.Reason,
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".revocations-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	r.logger.Debug().Str("path", path).Int("entries", len(snap.Entries)).Msg("revocation snapshot exported")
	return nil
}
