package delta

import (
	"context"
	"errors"

	"github.com/c0deZ3R0/ngw-sync-kit/container"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
)

// checkCompatibility runs the gate between a check answer and the local
// container. The order of the checks is significant: an epoch change hides
// every structural difference.
func checkCompatibility(ctx context.Context, source container.MetadataSource, meta container.Metadata, check *CheckResult) error {
	if meta.Epoch != check.Epoch {
		return syncErrors.NewEpochChangedError(syncErrors.OpCheck, errors.New("epoch changed")).
			AddNote("Local: %d", meta.Epoch).
			AddNote("Remote: %d", check.Epoch)
	}

	if meta.GeometryType != check.GeometryType {
		return syncErrors.NewStructureChangedError(syncErrors.OpCheck, errors.New("geometry is not compatible")).
			AddNote("Local: %s", meta.GeometryType).
			AddNote("Remote: %s", check.GeometryType)
	}

	if meta.SRSID != check.SRSID {
		return syncErrors.NewStructureChangedError(syncErrors.OpCheck, errors.New("SRS is not compatible")).
			AddNote("Local: %d", meta.SRSID).
			AddNote("Remote: %d", check.SRSID)
	}

	changed, err := source.FieldsChanged(ctx)
	if err != nil {
		return err
	}
	if changed {
		syncErr := syncErrors.NewStructureChangedError(syncErrors.OpCheck, errors.New("fields changed locally"))
		if local, err := source.Fields(ctx); err == nil {
			syncErr.AddNote("Local: %s", local)
		}
		return syncErr.AddNote("Remote: %s", meta.Fields)
	}

	if !meta.Fields.Compatible(check.Fields) {
		return syncErrors.NewStructureChangedError(syncErrors.OpCheck, errors.New("fields changed remotely")).
			AddNote("Local: %s", meta.Fields).
			AddNote("Remote: %s", check.Fields)
	}

	return nil
}
