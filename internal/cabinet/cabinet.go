// Package cabinet loads medicine cabinet definitions written in CUE,
// validates them against an embedded schema, decodes them into domain
// snapshots and imports them into the store.
//
// A cabinet declares medicines keyed by id, each with packages and
// therapies keyed by a local name:
//
//	medicines: aspirina: {
//		name: "Aspirina"
//		packages: box20: units: 20
//		therapies: morning: {
//			start: "2025-03-01"
//			schedule: {freq: "WEEKLY", byDay: ["MO", "TH"]}
//			doses: [{time: "08:00"}]
//		}
//	}
package cabinet

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error code constants, shared with the CLI.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeSchema      = "E010" // Value does not satisfy the cabinet schema

	ErrCodeBadDose     = "E101" // Dose time or amount invalid
	ErrCodeBadDate     = "E102" // Date not YYYY-MM-DD
	ErrCodeBadPackage  = "E103" // Therapy names an unknown package
	ErrCodeBadClinical = "E104" // Clinical rules do not decode
	ErrCodeNoDoses     = "E105" // Therapy has no dose times
	ErrCodeRuleClash   = "E106" // Both rule text and schedule given
)

// LoadError is a loading or decoding failure with its CUE position.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + e.Message
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}
