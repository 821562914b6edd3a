package actions

import "github.com/c0deZ3R0/ngw-sync-kit/schema"

// Collapse folds a sequential action log into the single effective action per
// feature. Continue markers are skipped.
//
//	create + update  -> create with merged fields
//	update + update  -> update, later values win
//	any    + delete  -> delete, except create + delete which cancels out
//	delete + create  -> update carrying the recreated record
//	delete + update  -> delete
func Collapse(log []Action) map[FeatureID]FeatureAction {
	out := make(map[FeatureID]FeatureAction)
	for _, a := range log {
		fa, ok := a.(FeatureAction)
		if !ok {
			continue
		}
		fid := fa.FID()
		prev, seen := out[fid]
		if !seen {
			out[fid] = cloneAction(fa)
			continue
		}

		merged, keep := fold(prev, fa)
		if !keep {
			delete(out, fid)
			continue
		}
		out[fid] = merged
	}
	return out
}

func fold(prev, next FeatureAction) (FeatureAction, bool) {
	switch prev.Type() {
	case ActionCreate:
		create := prev.(FeatureCreate)
		switch next.Type() {
		case ActionDataChange:
			change := next.(DataChange)
			for _, fv := range change.Fields {
				create.Fields[fv.Field] = fv.Value
			}
			if change.Geom != nil {
				create.Geom = change.Geom
			}
			return create, true
		case ActionDelete:
			return nil, false
		}

	case ActionDataChange:
		change := prev.(DataChange)
		switch next.Type() {
		case ActionDataChange:
			return mergeChanges(change, next.(DataChange)), true
		case ActionDelete:
			return next, true
		}

	case ActionDelete:
		switch next.Type() {
		case ActionCreate:
			create := next.(FeatureCreate)
			return DataChange{ID: create.ID, Fields: create.SortedFields(), Geom: create.Geom}, true
		case ActionDataChange, ActionDelete:
			return prev, true
		}
	}
	return cloneAction(next), true
}

func mergeChanges(prev, next DataChange) DataChange {
	index := make(map[schema.FieldID]int, len(prev.Fields))
	for i, fv := range prev.Fields {
		index[fv.Field] = i
	}
	for _, fv := range next.Fields {
		if i, ok := index[fv.Field]; ok {
			prev.Fields[i].Value = fv.Value
			continue
		}
		index[fv.Field] = len(prev.Fields)
		prev.Fields = append(prev.Fields, fv)
	}
	if next.Geom != nil {
		prev.Geom = next.Geom
	}
	return prev
}

// cloneAction copies the mutable containers of a so folding never writes
// into the caller's log.
func cloneAction(a FeatureAction) FeatureAction {
	switch a.Type() {
	case ActionCreate:
		create := a.(FeatureCreate)
		fields := make(map[schema.FieldID]any, len(create.Fields))
		for k, v := range create.Fields {
			fields[k] = v
		}
		create.Fields = fields
		return create
	case ActionDataChange:
		change := a.(DataChange)
		change.Fields = append([]FieldValue(nil), change.Fields...)
		return change
	}
	return a
}
