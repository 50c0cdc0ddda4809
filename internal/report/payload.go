// Package report assembles and delivers the outcome transaction of a
// build run.
//
// The payload is an explicit, versioned record: round-tripping is
// well-defined and testable independent of the transport. It is persisted
// to a local spool file before transmission is attempted, so a crash after
// assembly but before a successful send is recoverable on the next run.
// Delivery failure rolls the advanced snapshot facts back so the same
// "changed since" window is re-evaluated instead of silently lost.
package report

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion identifies the payload record layout. Receivers reject
// versions they do not understand.
const SchemaVersion = 1

// Payload is the one-shot report record sent to the collector.
type Payload struct {
	SchemaVersion int `json:"schema_version"`

	// Identity.
	RunID  string `json:"run_id"`
	Animal string `json:"animal"`
	Branch string `json:"branch"`

	// Outcome.
	Stage     string `json:"stage"`
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`

	// Captured log text for the failing stage, concatenated.
	Log string `json:"log"`

	// Changed-file lists, "!"-joined.
	ChangedThisRun      string `json:"changed_this_run"`
	ChangedSinceSuccess string `json:"changed_since_success"`

	// ChangedVersions maps each changed file to the SCM's version
	// identifier for it at the time of the run.
	ChangedVersions map[string]string `json:"changed_file_versions,omitempty"`

	// WindowStart is the prior run snapshot the change lists were
	// computed against; zero when no prior run existed.
	WindowStart int64 `json:"window_start,omitempty"`

	// Completed steps, in order, for downstream progress display.
	CompletedSteps []string `json:"completed_steps"`

	// ConfigSummary describes the environment the run was built under.
	ConfigSummary map[string]string `json:"config_summary"`

	// Archive is the gzip'd tar of every captured log in the run's work
	// areas; absent for early exclusion stages where the pipeline never
	// started.
	Archive []byte `json:"archive,omitempty"`

	// Signature authenticates the record to the collector. It is the
	// hex HMAC-SHA256 of the payload serialized with an empty
	// signature, keyed by the shared secret.
	Signature string `json:"signature,omitempty"`
}

// JoinFiles renders a changed-file list in the wire format.
func JoinFiles(files []string) string {
	return strings.Join(files, "!")
}

// Sign computes and stores the payload signature.
func (p *Payload) Sign(secret string) error {
	mac, err := p.mac(secret)
	if err != nil {
		return err
	}
	p.Signature = mac
	return nil
}

// VerifySignature reports whether the stored signature matches the
// payload content under secret.
func (p *Payload) VerifySignature(secret string) (bool, error) {
	mac, err := p.mac(secret)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(mac), []byte(p.Signature)), nil
}

func (p *Payload) mac(secret string) (string, error) {
	unsigned := *p
	unsigned.Signature = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return "", fmt.Errorf("marshal payload for signing: %w", err)
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Marshal serializes the payload for spooling or transmission.
func (p *Payload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report payload: %w", err)
	}
	return data, nil
}

// Unmarshal parses a serialized payload, rejecting unknown schema
// versions.
func Unmarshal(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse report payload: %w", err)
	}
	if p.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported report schema version %d", p.SchemaVersion)
	}
	return &p, nil
}
