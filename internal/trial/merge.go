package trial

// mergeableFields is the allow-list of fields an extraction may write.
var mergeableFields = map[Field]struct{}{
	FieldName:          {},
	FieldAge:           {},
	FieldLevel:         {},
	FieldDesiredDate:   {},
	FieldDesiredTime:   {},
	FieldConfirmed:     {},
	FieldWantsToCancel: {},
}

// Mergeable reports whether an extraction may write f.
func Mergeable(f Field) bool {
	_, ok := mergeableFields[f]
	return ok
}

// Merge folds ext into rec. A field is overwritten only when ext carries a non-nil
// value for it; nil values never erase what the record already knows.
func Merge(rec Record, ext Extraction) Record {
	out := rec.Clone()
	if ext.Name != nil {
		out.Name = clonePtr(ext.Name)
	}
	if ext.Age != nil {
		out.Age = clonePtr(ext.Age)
	}
	if ext.Level != nil {
		out.Level = clonePtr(ext.Level)
	}
	if ext.DesiredDate != nil {
		out.DesiredDate = clonePtr(ext.DesiredDate)
	}
	if ext.DesiredTime != nil {
		out.DesiredTime = clonePtr(ext.DesiredTime)
	}
	if ext.Confirmed != nil {
		out.Confirmed = clonePtr(ext.Confirmed)
	}
	if ext.WantsToCancel != nil {
		out.WantsToCancel = clonePtr(ext.WantsToCancel)
	}
	return out
}

// WantsCancel reports whether the record carries an explicit abandonment signal.
func WantsCancel(rec Record) bool {
	return rec.WantsToCancel != nil && *rec.WantsToCancel
}

// clearInvalidSlot applies the clearing policy for a failed validation: an unusable
// date drops the whole pair, a rejected time drops only the time.
func clearInvalidSlot(rec Record, reason Reason) Record {
	switch reason {
	case ReasonNotTuesday, ReasonPastDate, ReasonInvalidDateFormat:
		rec.DesiredDate = nil
		rec.DesiredTime = nil
	case ReasonInvalidTimeFormat, ReasonTimeOutOfRange:
		rec.DesiredTime = nil
	}
	return rec
}
