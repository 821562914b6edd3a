package errors

import "errors"

// WrapOpComponent wraps err with Op and Component. A coded SyncError keeps
// its code and retryability so classification survives the extra layer.
// If err is nil, returns nil.
func WrapOpComponent(err error, op Operation, component string) error {
	if err == nil {
		return nil
	}
	wrapped := NewWithComponent(op, component, err)
	var inner *SyncError
	if errors.As(err, &inner) {
		wrapped.Code = inner.Code
		wrapped.Retryable = inner.Retryable
	}
	return wrapped
}

// WrapOpComponentCode wraps err with Op, Component and an explicit code.
// If err is nil, returns nil.
func WrapOpComponentCode(err error, op Operation, component string, code ErrorCode) error {
	if err == nil {
		return nil
	}
	wrapped := NewWithComponent(op, component, err)
	wrapped.Code = code
	wrapped.Retryable = code == ErrCodeSynchronizationFailure || code == ErrCodeStorageFailure
	return wrapped
}
