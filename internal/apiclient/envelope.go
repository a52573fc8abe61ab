package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Error kinds the backend uses for an invalid or expired access token.
var authErrorCodes = map[string]bool{
	"token_not_valid":       true,
	"token_expired":         true,
	"not_authenticated":     true,
	"authentication_failed": true,
}

// Envelope is the backend's response wrapper: {success, data?, message?, error?}.
// Raw DRF error bodies ({detail, code} or {field: [msgs]}) decode into the same
// struct; their keys are kept in Fields in document order.
type Envelope struct {
	Success bool
	Data    json.RawMessage
	Message string
	Error   json.RawMessage
	Code    string
	Detail  string
	Fields  []Field
}

// Field is one top-level key of the body, kept for field-error extraction.
type Field struct {
	Name  string
	Value json.RawMessage
}

// ParseEnvelope decodes body leniently; non-JSON bodies give a zero Envelope.
func ParseEnvelope(body []byte) Envelope {
	var env Envelope
	fields, err := orderedObject(body)
	if err != nil {
		return env
	}
	for _, f := range fields {
		switch f.Name {
		case "success":
			_ = json.Unmarshal(f.Value, &env.Success)
		case "data":
			env.Data = f.Value
		case "message":
			env.Message = rawString(f.Value)
		case "error":
			env.Error = f.Value
		case "code":
			env.Code = rawString(f.Value)
		case "detail":
			env.Detail = rawString(f.Value)
		}
	}
	env.Fields = fields
	return env
}

// HasData reports whether data is present and not null.
func (e Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// DecodeData unmarshals the data member into v.
func (e Envelope) DecodeData(v any) error {
	if !e.HasData() {
		return ErrNoData
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// ErrorString returns the error member when it is a plain string.
func (e Envelope) ErrorString() string {
	return rawString(e.Error)
}

// errorObject returns the error member's keys in order when it is an object.
func (e Envelope) errorObject() []Field {
	if len(bytes.TrimSpace(e.Error)) == 0 || bytes.TrimSpace(e.Error)[0] != '{' {
		return nil
	}
	fields, err := orderedObject(e.Error)
	if err != nil {
		return nil
	}
	return fields
}

// AuthErrorCode returns the token error kind carried by the envelope, either as a
// top-level code or inside the error object, or "" when there is none.
func (e Envelope) AuthErrorCode() string {
	if authErrorCodes[e.Code] {
		return e.Code
	}
	for _, f := range e.errorObject() {
		if f.Name == "code" {
			if code := rawString(f.Value); authErrorCodes[code] {
				return code
			}
		}
	}
	return ""
}

// FirstFieldError formats the first entry of the error object as "field: message".
func (e Envelope) FirstFieldError() string {
	fields := e.errorObject()
	if len(fields) == 0 {
		return ""
	}
	f := fields[0]
	return f.Name + ": " + firstMessage(f.Value)
}

// FieldError returns the first message recorded for name, looking in the error
// object first and then at the top level (raw DRF validation bodies).
func (e Envelope) FieldError(name string) string {
	for _, f := range e.errorObject() {
		if f.Name == name {
			return firstMessage(f.Value)
		}
	}
	for _, f := range e.Fields {
		if f.Name == name {
			return firstMessage(f.Value)
		}
	}
	return ""
}

func firstMessage(raw json.RawMessage) string {
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return fmt.Sprint(list[0])
	}
	if s := rawString(raw); s != "" {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// orderedObject splits a JSON object into its members preserving key order.
func orderedObject(body []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return fields, nil
}
