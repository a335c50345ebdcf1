// Package store implements the execution core's State Store (spec §4.1):
// one JSON document per workflow, written atomically via temp-file-then-
// rename, grounded on other_examples' internal/engine/state.go save()/load()
// pattern and generalized to a per-workflow directory layout.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/buildbeaver/workflow-engine/internal/gerror"
	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
)

const stateFileName = "state.json"

// Store is the State Store contract (spec §4.1).
type Store interface {
	Exists(id models.WorkflowID) bool
	Get(id models.WorkflowID) (*models.Workflow, error)
	Write(id models.WorkflowID, wf *models.Workflow) error
	Update(id models.WorkflowID, fn UpdateFunc) (*models.Workflow, error)
	List() ([]*models.Workflow, error)
}

// FileStore is a Store backed by one directory per workflow under a root
// workflows directory, each holding a single state.json document.
type FileStore struct {
	rootDir string
	log     logger.Log

	mu          sync.Mutex // guards perWorkflow map itself
	perWorkflow map[models.WorkflowID]*sync.Mutex
}

func NewFileStore(rootDir string, logFactory logger.LogFactory) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "error creating workflows directory")
	}
	return &FileStore{
		rootDir:     rootDir,
		log:         logFactory("StateStore"),
		perWorkflow: make(map[models.WorkflowID]*sync.Mutex),
	}, nil
}

func (s *FileStore) lockFor(id models.WorkflowID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.perWorkflow[id]
	if !ok {
		l = &sync.Mutex{}
		s.perWorkflow[id] = l
	}
	return l
}

func (s *FileStore) dirFor(id models.WorkflowID) string {
	return filepath.Join(s.rootDir, id.String())
}

func (s *FileStore) fileFor(id models.WorkflowID) string {
	return filepath.Join(s.dirFor(id), stateFileName)
}

// errUnsafeID rejects any id that isn't a plain path segment, so a
// client-supplied id (request body or URL) can never be used to traverse
// outside the workflows root directory.
func errUnsafeID(id models.WorkflowID) error {
	raw := id.String()
	if raw == "" || raw == "." || raw == ".." || strings.ContainsAny(raw, `/\`) {
		return gerror.NewErrValidation(fmt.Sprintf("invalid workflow id %q", raw))
	}
	return nil
}

func (s *FileStore) Exists(id models.WorkflowID) bool {
	if errUnsafeID(id) != nil {
		return false
	}
	_, err := os.Stat(s.fileFor(id))
	return err == nil
}

// Get loads a workflow document, returning gerror.NewErrNotFound if absent.
func (s *FileStore) Get(id models.WorkflowID) (*models.Workflow, error) {
	if err := errUnsafeID(id); err != nil {
		return nil, err
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readLocked(id)
}

func (s *FileStore) readLocked(id models.WorkflowID) (*models.Workflow, error) {
	data, err := os.ReadFile(s.fileFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound("workflow not found").Wrap(err)
		}
		return nil, errors.Wrap(err, "error reading workflow state")
	}
	var wf models.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, errors.Wrap(err, "error parsing workflow state")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "error parsing workflow state passthrough fields")
	}
	wf.Extra = passthroughExtras(raw)
	return &wf, nil
}

// knownFields lists the JSON keys models.Workflow itself serializes, so
// anything else found on disk is treated as edge-owned passthrough data.
var knownFields = map[string]struct{}{
	"id": {}, "name": {}, "description": {}, "status": {}, "steps": {},
	"createdAt": {}, "updatedAt": {}, "progress": {}, "metrics": {},
	"costBreakdown": {}, "metadata": {},
}

func passthroughExtras(raw map[string]json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	extras := make(map[string]interface{})
	for k, v := range raw {
		if _, known := knownFields[k]; known {
			continue
		}
		var val interface{}
		if err := json.Unmarshal(v, &val); err == nil {
			extras[k] = val
		}
	}
	if len(extras) == 0 {
		return nil
	}
	return extras
}

// Write persists the full workflow document atomically: write to a temp
// file in the same directory, then rename over the target (spec §4.1).
// UpdatedAt is stamped to now unconditionally.
func (s *FileStore) Write(id models.WorkflowID, wf *models.Workflow) error {
	if err := errUnsafeID(id); err != nil {
		return err
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.writeLocked(id, wf)
}

// UpdateFunc mutates a loaded workflow in place. Returning ErrNoUpdate
// leaves the on-disk document untouched.
type UpdateFunc func(wf *models.Workflow) error

// ErrNoUpdate, returned from an UpdateFunc, tells Update to skip persisting.
var ErrNoUpdate = errors.New("no update")

// Update loads a workflow, applies fn, and persists the result as a single
// operation under that workflow's lock, so a read-modify-write cycle is
// never interleaved with another writer for the same workflow (spec §5:
// "an in-process mutex per workflow id is recommended").
func (s *FileStore) Update(id models.WorkflowID, fn UpdateFunc) (*models.Workflow, error) {
	if err := errUnsafeID(id); err != nil {
		return nil, err
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	wf, err := s.readLocked(id)
	if err != nil {
		return nil, err
	}
	if err := fn(wf); err != nil {
		if errors.Is(err, ErrNoUpdate) {
			return wf, nil
		}
		return nil, err
	}
	if err := s.writeLocked(id, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *FileStore) writeLocked(id models.WorkflowID, wf *models.Workflow) error {
	dir := s.dirFor(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "error creating workflow directory")
	}

	now := nowFunc()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = models.NewTime(now)
	}
	wf.UpdatedAt = models.NewTime(now)

	merged, err := mergeExtras(wf)
	if err != nil {
		return err
	}

	target := s.fileFor(id)
	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return errors.Wrap(err, "error creating temp state file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(merged); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "error writing temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "error syncing temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "error closing temp state file")
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "error renaming temp state file into place")
	}
	return nil
}

// mergeExtras serializes wf and re-attaches any passthrough fields it
// carried in from a previous read, so round tripping never drops data the
// core doesn't itself understand.
func mergeExtras(wf *models.Workflow) ([]byte, error) {
	base, err := json.Marshal(wf)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling workflow state")
	}
	if len(wf.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, errors.Wrap(err, "error remarshalling workflow state")
	}
	for k, v := range wf.Extra {
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if _, known := knownFields[k]; !known {
			merged[k] = encoded
		}
	}
	return json.MarshalIndent(merged, "", "  ")
}

// List returns all persisted workflows sorted by UpdatedAt descending (spec §4.1).
func (s *FileStore) List() ([]*models.Workflow, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return nil, errors.Wrap(err, "error listing workflows directory")
	}
	var out []*models.Workflow
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := models.WorkflowIDFromString(e.Name())
		wf, err := s.Get(id)
		if err != nil {
			s.log.WithField("workflow_id", e.Name()).Warnf("error reading workflow during list, skipping: %v", err)
			continue
		}
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt.Time)
	})
	return out, nil
}

// nowFunc is indirected for deterministic tests.
var nowFunc = defaultNow
