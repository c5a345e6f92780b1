package directory

import (
	"bytes"
	"encoding/json"
	"strings"
)

// recordID is a directory id that may arrive as a JSON string or number.
// Any other shape decodes to "" and the record falls back to its username.
type recordID string

func (id *recordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = recordID(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		*id = ""
		return nil
	}
	*id = recordID(number.String())
	return nil
}
