package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/icemetrics/icemetrics/internal/config"
)

const DefaultDir = "~/.icemetrics/locks"

// ErrHeld is matched by the error Acquire returns when a live process owns
// the lock.
var ErrHeld = errors.New("collection already running")

// Holder is the content of a lock file.
type Holder struct {
	PID       int       `yaml:"pid"`
	Warehouse string    `yaml:"warehouse"`
	Since     time.Time `yaml:"since"`
}

// HeldError reports who owns the lock.
type HeldError struct {
	Path   string
	Holder Holder
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("another icemetrics collection of %s is running (PID %d, since %s); lock file %s",
		e.Holder.Warehouse, e.Holder.PID, e.Holder.Since.Format(time.RFC3339), e.Path)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// PathFor returns the lock file guarding one warehouse.
func PathFor(dir, warehouse string) string {
	if dir == "" {
		dir = config.ExpandHome(DefaultDir)
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, warehouse)
	return filepath.Join(dir, name+".lock")
}

// Acquire creates the lock file for warehouse. A lock left behind by a dead
// process, or an unreadable one, is taken over.
func Acquire(path, warehouse string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	data, err := yaml.Marshal(Holder{PID: os.Getpid(), Warehouse: warehouse, Since: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling lock: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return fmt.Errorf("writing lock file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("creating lock file: %w", err)
		}

		holder, held, err := IsHeld(path)
		if err != nil {
			return err
		}
		if held && holder.PID != os.Getpid() {
			return &HeldError{Path: path, Holder: *holder}
		}
		if err := Release(path); err != nil {
			return fmt.Errorf("removing stale lock: %w", err)
		}
	}
	return fmt.Errorf("lock file %s keeps reappearing", path)
}

// Release removes the lock file.
func Release(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld reads the lock file and reports whether its process is alive. A
// missing or unparseable file is not held.
func IsHeld(path string) (*Holder, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading lock file: %w", err)
	}
	var h Holder
	if err := yaml.Unmarshal(data, &h); err != nil || h.PID <= 0 {
		return nil, false, nil
	}
	return &h, isProcessRunning(h.PID), nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
