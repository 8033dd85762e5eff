package api

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/storage"
)

// DebugCommand is an administrative action on the content cache.
type DebugCommand int

const (
	// DebugList lists the files in the cache directory.
	DebugList DebugCommand = iota
	// DebugReset deletes every artifact and re-seeds the index.
	DebugReset
	// DebugEvict runs expiry eviction in the background.
	DebugEvict
)

// ParseDebugCommand maps a command name to a DebugCommand.
func ParseDebugCommand(name string) (DebugCommand, error) {
	switch name {
	case "list":
		return DebugList, nil
	case "reset":
		return DebugReset, nil
	case "evict":
		return DebugEvict, nil
	}
	return 0, fmt.Errorf("unknown debug command %q", name)
}

func (d DebugCommand) String() string {
	switch d {
	case DebugList:
		return "list"
	case DebugReset:
		return "reset"
	case DebugEvict:
		return "evict"
	}
	return "unknown"
}

// DebugMode tells whether a DebugResult is final or a job handle.
type DebugMode string

const (
	DebugSync  DebugMode = "sync"
	DebugAsync DebugMode = "async"
)

// DebugResult is the answer to a debug command. Sync results carry the
// directory listing; async results carry a job id to poll.
type DebugResult struct {
	Command string    `json:"command"`
	Mode    DebugMode `json:"mode"`
	Files   []string  `json:"files,omitempty"`
	JobID   string    `json:"job_id,omitempty"`
}

type debugJob struct {
	mu       sync.Mutex
	ID       string                  `json:"id"`
	Done     bool                    `json:"done"`
	Error    string                  `json:"error,omitempty"`
	Report   *storage.EvictionReport `json:"report,omitempty"`
	Started  time.Time               `json:"started"`
	Finished time.Time               `json:"finished,omitzero"`
}

// RunDebug executes a debug command.
// POST /api/v1/debug/:command
func (s *Server) RunDebug(c echo.Context) error {
	cmd, err := ParseDebugCommand(c.Param("command"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	result, err := s.dispatchDebug(cmd)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	code := http.StatusOK
	if result.Mode == DebugAsync {
		code = http.StatusAccepted
	}
	return c.JSON(code, result)
}

func (s *Server) dispatchDebug(cmd DebugCommand) (DebugResult, error) {
	result := DebugResult{Command: cmd.String(), Mode: DebugSync}

	switch cmd {
	case DebugReset:
		if err := s.cache.Reset(); err != nil {
			return result, err
		}
		s.logger.Info("cache reset via debug command")
		fallthrough
	case DebugList:
		files, err := listDir(s.cache.Dir())
		if err != nil {
			return result, err
		}
		result.Files = files
	case DebugEvict:
		result.Mode = DebugAsync
		result.JobID = s.startEvictJob()
	}
	return result, nil
}

func (s *Server) startEvictJob() string {
	job := &debugJob{ID: uuid.NewString(), Started: time.Now().UTC()}
	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	go func() {
		report, err := s.cache.EvictExpired()
		if err == nil {
			err = s.cache.Persist()
		}

		job.mu.Lock()
		defer job.mu.Unlock()
		job.Done = true
		job.Finished = time.Now().UTC()
		if err != nil {
			job.Error = err.Error()
			s.logger.Warn("debug eviction failed", logging.String("job_id", job.ID), logging.Error(err))
			return
		}
		job.Report = &report
	}()
	return job.ID
}

// GetDebugJob reports the state of an async debug job.
// GET /api/v1/debug/jobs/:id
func (s *Server) GetDebugJob(c echo.Context) error {
	s.jobsMu.Lock()
	job, ok := s.jobs[c.Param("id")]
	s.jobsMu.Unlock()
	if !ok {
		return errorJSON(c, http.StatusNotFound, "job not found")
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	return c.JSON(http.StatusOK, job)
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
