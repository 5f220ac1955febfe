package protocol

import "fmt"

// ContentID addresses an immutable blob in the storage service.
type ContentID string

// StorageKind selects the storage operation.
type StorageKind string

const (
	// StorageGet resolves a path to the content id of the file stored there.
	StorageGet StorageKind = "get"

	// StorageList enumerates a directory.
	StorageList StorageKind = "list"

	// StorageLoad reads the bytes behind a content id.
	StorageLoad StorageKind = "load"
)

// StorageRequest is sent to the storage service.
type StorageRequest struct {
	Target    string      `json:"target,omitempty"`
	Kind      StorageKind `json:"kind"`
	ContentID ContentID   `json:"content_id,omitempty"`
}

// DirEntry is one element of a StorageList result.
type DirEntry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir"`
	Size int64  `json:"size"`
}

// StorageSuccess carries the variant matching the request kind.
type StorageSuccess struct {
	Kind      StorageKind `json:"kind"`
	ContentID ContentID   `json:"content_id,omitempty"`
	Entries   []DirEntry  `json:"entries,omitempty"`
	Data      []byte      `json:"data,omitempty"`
}

// StorageErrorCode classifies storage failures.
type StorageErrorCode string

const (
	StorageNotFound       StorageErrorCode = "not_found"
	StorageInvalidRequest StorageErrorCode = "invalid_request"
	StorageIOError        StorageErrorCode = "io_error"
)

// StorageError is the failure variant of a StorageResponse.
type StorageError struct {
	Code    StorageErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %s", e.Code, e.Message)
}

// StorageResponse is Result<StorageSuccess, StorageError>; exactly one side is set.
type StorageResponse struct {
	Ok  *StorageSuccess `json:"ok,omitempty"`
	Err *StorageError   `json:"err,omitempty"`
}
