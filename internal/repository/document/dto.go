package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
)

// schemaVersion is stamped into every stored document.
const schemaVersion = 1

type profileDoc struct {
	Version int               `json:"v"`
	Profile applicant.Profile `json:"profile"`
}

type grantDoc struct {
	Version int               `json:"v"`
	Grant   grant.Opportunity `json:"grant"`
}

// decode unmarshals a stored document into out. Redis returns the root
// document for the legacy path and a one-element array for "$".
func decode(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return fmt.Errorf("unmarshal document array: %w", err)
		}
		if len(arr) == 0 {
			return fmt.Errorf("empty document array")
		}
		raw = arr[0]
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}
