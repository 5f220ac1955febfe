package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
)

// Client issues storage requests on behalf of a caller.
type Client struct {
	sys     core.ActorSystem
	target  core.Capability
	timeout time.Duration
}

// NewClient creates a client for the storage unit at target. Each request
// is bounded by timeout; zero waits forever.
func NewClient(sys core.ActorSystem, target core.Capability, timeout time.Duration) *Client {
	return &Client{sys: sys, target: target, timeout: timeout}
}

// Get resolves target to the content id of the file stored there.
func (c *Client) Get(ctx context.Context, target string) (protocol.ContentID, error) {
	ok, err := c.do(ctx, protocol.StorageRequest{Target: target, Kind: protocol.StorageGet})
	if err != nil {
		return "", err
	}
	if ok.ContentID == "" {
		return "", protocol.Errorf("storage.get", "reply carries no content id")
	}
	return ok.ContentID, nil
}

// List returns the entries of directory target.
func (c *Client) List(ctx context.Context, target string) ([]protocol.DirEntry, error) {
	ok, err := c.do(ctx, protocol.StorageRequest{Target: target, Kind: protocol.StorageList})
	if err != nil {
		return nil, err
	}
	return ok.Entries, nil
}

// Load returns the bytes behind id.
func (c *Client) Load(ctx context.Context, id protocol.ContentID) ([]byte, error) {
	ok, err := c.do(ctx, protocol.StorageRequest{Kind: protocol.StorageLoad, ContentID: id})
	if err != nil {
		return nil, err
	}
	return ok.Data, nil
}

func (c *Client) do(ctx context.Context, req protocol.StorageRequest) (*protocol.StorageSuccess, error) {
	op := "storage." + string(req.Kind)

	ctx, cancel := core.RequestContext(ctx, c.timeout)
	defer cancel()

	msg, err := c.sys.Request(ctx, c.target, protocol.MustEncode(req))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, req.Target, err)
	}

	var resp protocol.StorageResponse
	if err := protocol.Decode(op, msg.Data, &resp); err != nil {
		return nil, err
	}
	switch {
	case resp.Err != nil:
		return nil, resp.Err
	case resp.Ok == nil:
		return nil, protocol.Errorf(op, "reply has neither ok nor err")
	case resp.Ok.Kind != req.Kind:
		return nil, protocol.Errorf(op, "unexpected reply variant %q", resp.Ok.Kind)
	}
	return resp.Ok, nil
}

// IsNotFound reports whether err is a storage not_found failure.
func IsNotFound(err error) bool {
	var serr *protocol.StorageError
	return errors.As(err, &serr) && serr.Code == protocol.StorageNotFound
}
