package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// spoolFile is the fixed name of the pending-report file. At most one
// undelivered report exists per branch: a newer failure overwrites an
// older spooled one, which is correct because the older snapshot window
// was rolled back and will be re-run anyway.
const spoolFile = "pending-report.json"

// Spool persists an assembled report locally before transmission, so a
// crash between assembly and delivery is recoverable on the next
// invocation.
type Spool struct {
	dir string
}

// NewSpool returns a Spool rooted at dir, creating it if needed.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

// Save atomically writes the payload as the pending report.
func (s *Spool) Save(p *Payload) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	path := s.path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp spool file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename spool file: %w", err)
	}
	return nil
}

// Pending returns the spooled payload, or nil when nothing is pending.
func (s *Spool) Pending() (*Payload, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read spool file: %w", err)
	}
	return Unmarshal(data)
}

// Clear removes the pending report. Clearing an empty spool is a no-op.
func (s *Spool) Clear() error {
	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear spool file: %w", err)
	}
	return nil
}

func (s *Spool) path() string {
	return filepath.Join(s.dir, spoolFile)
}
