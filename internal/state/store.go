package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/miragesec/mirage/internal/decoy"
	"github.com/miragesec/mirage/internal/logging"
)

const (
	DeceptionsFile    = "live_deceptions.json"
	SuspiciousIPsFile = "suspicious_ips.json"
)

// Store reads the classification files maintained by the external
// detection agent. Every load re-reads the backing file so that registry
// and suspicious-set changes become visible without restarting the proxy;
// nothing is cached between calls. The store never writes.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory the store is bound to.
func (s *Store) Dir() string {
	return s.dir
}

type deceptionsFile struct {
	Endpoints decoy.Registry `json:"endpoints"`
}

type suspiciousFile struct {
	IPs []string `json:"ips"`
}

// LoadDeceptions returns the current decoy registry. A missing, unreadable
// or malformed file is a normal condition (the agent may not have written
// yet) and yields an empty registry with a diagnostic only.
func (s *Store) LoadDeceptions() decoy.Registry {
	path := filepath.Join(s.dir, DeceptionsFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Error("[STATE] Cannot read %s: %v", path, err)
		}
		return decoy.Registry{}
	}

	var doc deceptionsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Error("[STATE] Malformed deception registry %s: %v", path, err)
		return decoy.Registry{}
	}
	if doc.Endpoints == nil {
		return decoy.Registry{}
	}
	return doc.Endpoints
}

// LoadSuspiciousIPs returns the current suspicious-IP set. The same
// empty-on-error contract as LoadDeceptions applies.
func (s *Store) LoadSuspiciousIPs() map[string]bool {
	path := filepath.Join(s.dir, SuspiciousIPsFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Error("[STATE] Cannot read %s: %v", path, err)
		}
		return map[string]bool{}
	}

	var doc suspiciousFile
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Error("[STATE] Malformed suspicious-IP set %s: %v", path, err)
		return map[string]bool{}
	}

	ips := make(map[string]bool, len(doc.IPs))
	for _, ip := range doc.IPs {
		ips[ip] = true
	}
	return ips
}
