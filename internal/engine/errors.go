package engine

import "fmt"

// PlanError wraps a failure encountered while walking a transfer's remote
// file tree into a download plan.
type PlanError struct {
	TransferID int64
	Reason     string
	Err        error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan transfer %d: %s: %v", e.TransferID, e.Reason, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// NewPlanError wraps err with planning context.
func NewPlanError(transferID int64, reason string, err error) error {
	return &PlanError{TransferID: transferID, Reason: reason, Err: err}
}

// FetchError wraps a failure fetching a single target to local disk.
type FetchError struct {
	Target *DownloadTarget
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Target.RemoteName, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var errFetchFailed = fmt.Errorf("download did not complete successfully")

// ErrTransferNotFound names a transfer id that is absent from the engine's
// in-memory transfer table. transferTable.Get reports absence with a
// boolean, and no engine code returns this type.
type ErrTransferNotFound struct {
	ID int64
}

func (e *ErrTransferNotFound) Error() string {
	return fmt.Sprintf("transfer %d not found", e.ID)
}
