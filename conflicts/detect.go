package conflicts

import (
	"fmt"
	"sort"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
)

// Detect returns one conflict per feature present in both maps, ordered by
// fid. A feature deleted on both sides is not a conflict. An action filed
// under another feature's id fails the whole detection.
func Detect(local, remote map[actions.FeatureID]actions.FeatureAction) ([]VersioningConflict, error) {
	fids := make([]actions.FeatureID, 0)
	for fid := range local {
		if _, ok := remote[fid]; ok {
			fids = append(fids, fid)
		}
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })

	result := make([]VersioningConflict, 0, len(fids))
	for _, fid := range fids {
		l, r := local[fid], remote[fid]
		if l.Type() == actions.ActionDelete && r.Type() == actions.ActionDelete {
			continue
		}
		if l.FID() != fid || r.FID() != fid {
			return nil, syncErrors.NewValidationError(syncErrors.OpDetect,
				fmt.Errorf("actions filed under feature %d target features %d and %d", fid, l.FID(), r.FID()))
		}
		c, err := New(l, r)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// DetectLogs collapses both action logs to one action per feature and
// detects conflicts between them.
func DetectLogs(localLog, remoteLog []actions.Action) ([]VersioningConflict, error) {
	return Detect(actions.Collapse(localLog), actions.Collapse(remoteLog))
}
