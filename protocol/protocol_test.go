package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	var resp StorageResponse
	err := Decode("storage.get", nil, &resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "storage.get", perr.Op)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	var resp SpawnResponse
	err := Decode("spawn", []byte("{not json"), &resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.NotNil(t, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "malformed payload")
}

func TestStorageResponseWireShape(t *testing.T) {
	data := MustEncode(StorageResponse{Ok: &StorageSuccess{Kind: StorageGet, ContentID: "abc"}})
	assert.JSONEq(t, `{"ok":{"kind":"get","content_id":"abc"}}`, string(data))

	data = MustEncode(StorageResponse{Err: &StorageError{Code: StorageNotFound, Message: "x"}})
	assert.JSONEq(t, `{"err":{"code":"not_found","message":"x"}}`, string(data))
}

func TestRegistryRequestRoundTrip(t *testing.T) {
	data := MustEncode(RegistryRequest{Kind: RegistryGet, Name: "a"})

	var req RegistryRequest
	require.NoError(t, Decode("registry", data, &req))
	assert.Equal(t, RegistryGet, req.Kind)
	assert.Equal(t, "a", req.Name)
}

func TestStorageErrorMessage(t *testing.T) {
	err := &StorageError{Code: StorageIOError, Message: "disk gone"}
	assert.Equal(t, "storage io_error: disk gone", err.Error())
}
