package cache

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
)

// responseRecord is the stored form of a cacheable response. Headers keep
// their order and duplicates so that round-tripping is observationally
// lossless at the HTTP layer.
type responseRecord struct {
	Body    string      `json:"body"`
	Status  int         `json:"status"`
	Headers [][2]string `json:"headers"`
}

// serializeResponse encodes a captured response for storage.
func serializeResponse(status int, header http.Header, body []byte) ([]byte, error) {
	rec := responseRecord{
		Body:    base64.StdEncoding.EncodeToString(body),
		Status:  status,
		Headers: flattenHeader(header),
	}
	return json.Marshal(rec)
}

// deserializeResponse decodes a stored response record, validating field
// presence and types. Malformed records fail with a *RecordTypeError.
func deserializeResponse(raw []byte) (status int, header http.Header, body []byte, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, nil, nil, &RecordTypeError{Field: "record", Reason: "is not an object"}
	}

	var encoded string
	if err := json.Unmarshal(fields["body"], &encoded); err != nil {
		return 0, nil, nil, &RecordTypeError{Field: "body", Reason: "is not a string"}
	}
	body, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return 0, nil, nil, &RecordTypeError{Field: "body", Reason: "is not valid base64"}
	}

	if err := json.Unmarshal(fields["status"], &status); err != nil {
		return 0, nil, nil, &RecordTypeError{Field: "status", Reason: "is not an integer"}
	}

	var pairs [][2]string
	if err := json.Unmarshal(fields["headers"], &pairs); err != nil {
		return 0, nil, nil, &RecordTypeError{Field: "headers", Reason: "is not a list of name/value pairs"}
	}

	header = make(http.Header, len(pairs))
	for _, pair := range pairs {
		header[http.CanonicalHeaderKey(pair[0])] = append(header[http.CanonicalHeaderKey(pair[0])], pair[1])
	}
	return status, header, body, nil
}

// flattenHeader turns an http.Header into an ordered list of name/value
// pairs, preserving duplicate values per name. Names are emitted in sorted
// order for stable serialisation.
func flattenHeader(header http.Header) [][2]string {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]string, 0, len(header))
	for _, name := range names {
		for _, value := range header[name] {
			pairs = append(pairs, [2]string{name, value})
		}
	}
	return pairs
}
