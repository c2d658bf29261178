// Package harness replays scripted graph-editing sessions against the
// history engine and checks what it admits.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: person_history
//	description: "Adding a linked node is admitted with its diff"
//	viewport: { width: 400, height: 300 }
//	steps:
//	  - file: graphs/person.yaml
//	    expect: { admitted: true }
//	  - graph:
//	      subjects:
//	        - { internal_id: n1, subject_id: "foaf:Person" }
//	    editing: true
//	    expect: { admitted: false, reason: editing }
//	assertions:
//	  - type: entry_count
//	    count: 1
//	  - type: query_contains
//	    seq: 1
//	    text: "?n1 a foaf:Person."
//
// A step supplies its graph either inline (graph) or as a JSON, YAML or CUE
// file (file) resolved relative to the scenario file.
//
// # Assertion Types
//
//   - entry_count: the number of admitted entries
//   - query_contains: the compiled query of entry seq contains text
//   - paraphrase_contains: the paraphrase of entry seq contains text
//   - lint_clean: entry seq compiles without lint warnings
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory store and a testutil.DeterministicClock,
// so entry timestamps are consecutive milliseconds after testutil.Epoch and
// traces compare byte-for-byte against golden files.
package harness
