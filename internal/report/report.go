// Package report defines xguard's per-extension JSON output shape and the
// hashing helper (github.com/minio/highwayhash) that derives a stable
// result identifier for it from a seed.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/minio/highwayhash"

	"github.com/viant/xguard/internal/dataflow"
)

var hashKey = []byte("xguard-result-id-key-01234567890")

// Hash returns a stable 64-bit digest of data, used to derive ResultID.
func Hash(data []byte) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, fmt.Errorf("report: init hash: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return 0, fmt.Errorf("report: write hash: %w", err)
	}
	return h.Sum64(), nil
}

// FlowHopRecord is one numbered hop of a reported flow.
type FlowHopRecord struct {
	No         int    `json:"no"`
	Location   string `json:"location"`
	Filename   string `json:"filename"`
	Identifier string `json:"identifier"`
	LineOfCode string `json:"line_of_code"`
}

// FromHops converts dataflow.FlowHop values (internal representation) into
// the reported record shape.
func FromHops(hops []dataflow.FlowHop) []FlowHopRecord {
	out := make([]FlowHopRecord, len(hops))
	for i, h := range hops {
		out[i] = FlowHopRecord{No: h.No, Location: h.Location, Filename: h.Filename,
			Identifier: h.Identifier, LineOfCode: h.LineOfCode}
	}
	return out
}

// RendezvousRecord names the sink node where a from-flow and a to-flow
// meet: the sink CallExpression, or the AssignmentExpression or
// ReturnStatement of an assignment or return sink.
type RendezvousRecord struct {
	NodeType   string `json:"node_type"`
	Range      [2]int `json:"range"`
	File       string `json:"file"`
	LineOfCode string `json:"line_of_code"`
}

// DangerRecord is one emitted vulnerability: a from-flow/to-flow pair that
// meet at Rendezvous, deterministically numbered k/N within the file.
type DangerRecord struct {
	FromFlow       []FlowHopRecord  `json:"from_flow"`
	ToFlow         []FlowHopRecord  `json:"to_flow"`
	Rendezvous     RendezvousRecord `json:"rendezvous"`
	DataFlowNumber string           `json:"data_flow_number"`
}

// ListenerRecord locates an unguarded onMessage listener reported as a 3.1
// violation (no privileged source involved, so there is no flow pair to
// report, only the listener site itself).
type ListenerRecord struct {
	Location   string `json:"location"`
	Filename   string `json:"filename"`
	LineOfCode string `json:"line_of_code"`
}

// CodeStats is per-script identifier-naming statistics.
// OneCharIdentifierPercentage is -1, and AverageIdentifierLengthByKind is
// nil, when the script has no identifiers to measure.
type CodeStats struct {
	AverageIdentifierLengthByKind map[string]float64 `json:"average_identifier_length_by_kind"`
	OneCharIdentifierPercentage   float64            `json:"one_char_identifier_percentage"`
}

// UnavailableCodeStats is the -1 sentinel returned when a script (e.g. no
// content scripts present) has nothing to measure.
func UnavailableCodeStats() CodeStats {
	return CodeStats{OneCharIdentifierPercentage: -1}
}

// ScriptResult is the detector's findings for one script role (background
// page or content script), aggregated across every file in that role.
type ScriptResult struct {
	CodeStats                         CodeStats         `json:"code_stats"`
	ExfiltrationDangers               []DangerRecord    `json:"exfiltration_dangers"`
	InfiltrationDangers               []DangerRecord    `json:"infiltration_dangers"`
	ViolationsWithoutSensitiveAPI     []ListenerRecord  `json:"31_violations_without_sensitive_api_access"`
	ExtensionStorageAccesses          map[string]int    `json:"extension_storage_accesses"`
}

// NewScriptResult returns a ScriptResult with all slice/map fields non-nil
// so they marshal as `[]`/`{}` rather than `null` when empty.
func NewScriptResult() ScriptResult {
	return ScriptResult{
		CodeStats:                     UnavailableCodeStats(),
		ExfiltrationDangers:           []DangerRecord{},
		InfiltrationDangers:           []DangerRecord{},
		ViolationsWithoutSensitiveAPI: []ListenerRecord{},
		ExtensionStorageAccesses:      map[string]int{},
	}
}

// TimingCounters records one script role's wall-clock cost and crash log;
// InternalInvariantViolation entries land under benchmarks.*.crashes.
type TimingCounters struct {
	DurationMS int64    `json:"duration_ms"`
	FileCount  int      `json:"file_count"`
	TimedOut   bool     `json:"timed_out"`
	Crashes    []string `json:"crashes,omitempty"`
}

// Benchmarks holds timing counters for each script role.
type Benchmarks struct {
	BP TimingCounters `json:"bp"`
	CS TimingCounters `json:"cs"`
}

// ExtensionResult is one extension's complete analysis output, serialized
// as JSON — the sole output format; CSV/Markdown writers are out of scope.
type ExtensionResult struct {
	Extension                 string     `json:"extension"`
	ResultID                  string     `json:"result_id"`
	Benchmarks                Benchmarks `json:"benchmarks"`
	ManifestVersion            int        `json:"manifest_version"`
	ContentScriptInjectedInto []string   `json:"content_script_injected_into"`
	BP                        ScriptResult `json:"bp"`
	CS                        ScriptResult `json:"cs"`
}

// NewExtensionResult builds an empty result shell for extensionName,
// deriving ResultID from a highwayhash digest of seed (extension.Pool.Analyze
// passes the extension's root path), so repeated runs with the same seed
// produce the same id.
func NewExtensionResult(extensionName string, manifestVersion int, seed []byte) ExtensionResult {
	id, err := Hash(seed)
	resultID := ""
	if err == nil {
		resultID = fmt.Sprintf("%016x", id)
	}
	return ExtensionResult{
		Extension:                 extensionName,
		ResultID:                  resultID,
		ManifestVersion:           manifestVersion,
		ContentScriptInjectedInto: []string{},
		BP:                        NewScriptResult(),
		CS:                        NewScriptResult(),
	}
}

// MarshalIndent renders r the way the CLI writes it to stdout/file:
// two-space indented JSON.
func (r ExtensionResult) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
