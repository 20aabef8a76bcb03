package util

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PrintPrettyJSON prints v as indented JSON. Raw JSON is re-indented as-is
// rather than decoded, so member order is preserved.
func PrintPrettyJSON(v any) error {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = b
	}
	if len(raw) == 0 {
		fmt.Println("{}")
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
