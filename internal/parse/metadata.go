package parse

import "encoding/json"

// DecodeLenient decodes the optional task_metadata.json payload into v,
// stripping a leading BOM first. Metadata is a best-effort hint (§4.3), so a
// decode failure is returned to the caller rather than treated as fatal.
func DecodeLenient(data []byte, v interface{}) error {
	return json.Unmarshal(stripBOM(data), v)
}
