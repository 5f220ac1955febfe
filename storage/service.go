// Package storage implements the storage collaborator: a unit that serves a
// directory tree by path and hands out content ids for the files it reads.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/metrics"
	"github.com/najoast/kiln/protocol"
)

// Service serves files below a root directory. A content id is the hex
// sha256 of the bytes read at Get time; Load returns exactly those bytes
// even if the file changed afterwards. Each Get makes its id loadable once
// more, and a blob is dropped when its last pending Load is served.
type Service struct {
	root  string
	blobs map[protocol.ContentID]*blob
}

type blob struct {
	data    []byte
	pending int
}

// NewService creates a storage service rooted at root.
func NewService(root string) *Service {
	return &Service{
		root:  root,
		blobs: make(map[protocol.ContentID]*blob),
	}
}

// Run is the unit body. Requests are served one at a time.
func (s *Service) Run(ctx context.Context, p *core.Process) error {
	logger := p.Logger()
	logger.Debug().Str("root", s.root).Msg("storage service started")

	for {
		msg, err := p.Recv(ctx)
		if err != nil {
			return err
		}

		reply, ok := msg.Cap(0)
		if !ok {
			logger.Warn().Uint64("msg", msg.ID).Msg("storage request without reply capability")
			continue
		}

		var req protocol.StorageRequest
		var resp protocol.StorageResponse
		if err := protocol.Decode("storage", msg.Data, &req); err != nil {
			resp.Err = &protocol.StorageError{Code: protocol.StorageInvalidRequest, Message: err.Error()}
		} else {
			resp = s.handle(req)
		}

		result := "ok"
		if resp.Err != nil {
			result = string(resp.Err.Code)
			logger.Debug().Str("kind", string(req.Kind)).Str("target", req.Target).Str("code", result).Msg(resp.Err.Message)
		}
		metrics.StorageRequestsTotal.WithLabelValues(string(req.Kind), result).Inc()

		if err := reply.Reply(protocol.MustEncode(resp)); err != nil {
			logger.Warn().Err(err).Msg("failed to deliver storage reply")
		}
	}
}

func (s *Service) handle(req protocol.StorageRequest) protocol.StorageResponse {
	switch req.Kind {
	case protocol.StorageGet:
		return s.get(req.Target)
	case protocol.StorageList:
		return s.list(req.Target)
	case protocol.StorageLoad:
		return s.load(req.ContentID)
	default:
		return failure(protocol.StorageInvalidRequest, "unknown request kind "+string(req.Kind))
	}
}

func (s *Service) get(target string) protocol.StorageResponse {
	full := s.resolve(target)
	info, err := os.Stat(full)
	if err != nil {
		return fromOSError(target, err)
	}
	if info.IsDir() {
		return failure(protocol.StorageInvalidRequest, target+" is a directory")
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return fromOSError(target, err)
	}

	id := ContentIDOf(data)
	if b, ok := s.blobs[id]; ok {
		b.pending++
	} else {
		s.blobs[id] = &blob{data: data, pending: 1}
	}
	return protocol.StorageResponse{Ok: &protocol.StorageSuccess{Kind: protocol.StorageGet, ContentID: id}}
}

func (s *Service) list(target string) protocol.StorageResponse {
	entries, err := os.ReadDir(s.resolve(target))
	if err != nil {
		return fromOSError(target, err)
	}

	out := make([]protocol.DirEntry, 0, len(entries))
	for _, e := range entries {
		entry := protocol.DirEntry{Name: e.Name(), Dir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			entry.Size = info.Size()
		}
		out = append(out, entry)
	}
	return protocol.StorageResponse{Ok: &protocol.StorageSuccess{Kind: protocol.StorageList, Entries: out}}
}

func (s *Service) load(id protocol.ContentID) protocol.StorageResponse {
	if id == "" {
		return failure(protocol.StorageInvalidRequest, "missing content id")
	}
	b, ok := s.blobs[id]
	if !ok {
		return failure(protocol.StorageNotFound, "unknown content id "+string(id))
	}
	if b.pending--; b.pending <= 0 {
		delete(s.blobs, id)
	}
	return protocol.StorageResponse{Ok: &protocol.StorageSuccess{Kind: protocol.StorageLoad, ContentID: id, Data: b.data}}
}

// resolve maps a slash-separated target onto the root. Targets cannot
// climb out of the root.
func (s *Service) resolve(target string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+target)))
}

// ContentIDOf returns the content id of data.
func ContentIDOf(data []byte) protocol.ContentID {
	sum := sha256.Sum256(data)
	return protocol.ContentID(hex.EncodeToString(sum[:]))
}

func failure(code protocol.StorageErrorCode, message string) protocol.StorageResponse {
	return protocol.StorageResponse{Err: &protocol.StorageError{Code: code, Message: message}}
}

func fromOSError(target string, err error) protocol.StorageResponse {
	if errors.Is(err, fs.ErrNotExist) {
		return failure(protocol.StorageNotFound, target+" not found")
	}
	return failure(protocol.StorageIOError, err.Error())
}
