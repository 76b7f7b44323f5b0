package apigate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxBodyReadSize = 1 << 20 // 1MiB

// Request is the request-scoped state handed to handlers: the merged
// argument set, the authenticated principal, the flash list and the
// negotiated content type. Nothing in it is shared across requests.
type Request struct {
	id          string
	r           *http.Request
	w           http.ResponseWriter
	gate        *Gate
	operationID string
	supported   []string

	args      url.Values
	principal *Principal
	flash     []Flash

	status  int
	message string

	contentType        string
	contentTypeApplied bool
}

// ID returns the identifier generated at the start of the request. It is
// stable across authentication, handler execution and error paths, and is
// echoed in the envelope as _id.
func (rq *Request) ID() string {
	return rq.id
}

// Context returns the context of the underlying HTTP request.
func (rq *Request) Context() context.Context {
	return rq.r.Context()
}

// HTTPRequest exposes the underlying request for handlers that need it.
func (rq *Request) HTTPRequest() *http.Request {
	return rq.r
}

// Principal returns the authenticated identity, or nil for unprotected
// handlers.
func (rq *Request) Principal() *Principal {
	return rq.principal
}

// OperationID returns the identifier the handler was registered under.
func (rq *Request) OperationID() string {
	return rq.operationID
}

// SetStatus overrides the status code and message of a successful response.
func (rq *Request) SetStatus(code int, message string) {
	rq.status = code
	if message != "" {
		rq.message = message
	} else {
		rq.message = http.StatusText(code)
	}
}

// Flash appends a leveled message to the response. Messages keep their
// insertion order and surface in the envelope only when any were added.
func (rq *Request) Flash(level FlashLevel, format string, args ...interface{}) {
	rq.flash = append(rq.flash, Flash{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (rq *Request) FlashDebug(format string, args ...interface{}) {
	rq.Flash(FlashDebug, format, args...)
}

func (rq *Request) FlashInfo(format string, args ...interface{}) {
	rq.Flash(FlashInfo, format, args...)
}

func (rq *Request) FlashWarning(format string, args ...interface{}) {
	rq.Flash(FlashWarning, format, args...)
}

func (rq *Request) FlashError(format string, args ...interface{}) {
	rq.Flash(FlashError, format, args...)
}

// mergeBodyArguments folds a JSON object body into the argument set. Values
// are appended after the query arguments, so on a key collision the body
// value wins. Anything that is not a JSON object is tolerated and ignored.
func (rq *Request) mergeBodyArguments() {
	if rq.r.Body == nil {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(rq.r.Body, maxBodyReadSize))
	if err != nil || len(raw) == 0 {
		return
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	for k, v := range body {
		rq.args.Add(k, stringifyArgument(v))
	}
}

func stringifyArgument(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}

// Argument returns the named argument, or the empty string when absent. If
// the argument appears more than once the last value is returned; body
// values are merged after query values, so the body wins.
func (rq *Request) Argument(name string) string {
	values := rq.args[name]
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// HasArgument reports whether the named argument was supplied.
func (rq *Request) HasArgument(name string) bool {
	_, ok := rq.args[name]
	return ok
}

// IntArgument converts the named argument to an int. A missing or
// unconvertible value yields an ArgumentError, which answers 400 naming the
// parameter.
func (rq *Request) IntArgument(name string) (int, error) {
	if !rq.HasArgument(name) {
		return 0, &ArgumentError{Param: name, Want: "int"}
	}
	v, err := strconv.Atoi(rq.Argument(name))
	if err != nil {
		return 0, &ArgumentError{Param: name, Want: "int"}
	}
	return v, nil
}

// FloatArgument converts the named argument to a float64.
func (rq *Request) FloatArgument(name string) (float64, error) {
	if !rq.HasArgument(name) {
		return 0, &ArgumentError{Param: name, Want: "float"}
	}
	v, err := strconv.ParseFloat(rq.Argument(name), 64)
	if err != nil {
		return 0, &ArgumentError{Param: name, Want: "float"}
	}
	return v, nil
}

// BoolArgument converts the named argument to a bool. Besides true/false it
// accepts 1/0, yes/no, y/n, t/f and on/off, case insensitively.
func (rq *Request) BoolArgument(name string) (bool, error) {
	if !rq.HasArgument(name) {
		return false, &ArgumentError{Param: name, Want: "bool"}
	}
	switch strings.ToLower(rq.Argument(name)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, &ArgumentError{Param: name, Want: "bool"}
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TimeArgument converts the named argument to a time.Time, trying RFC 3339
// first and a few laxer layouts after.
func (rq *Request) TimeArgument(name string) (time.Time, error) {
	if !rq.HasArgument(name) {
		return time.Time{}, &ArgumentError{Param: name, Want: "datetime"}
	}
	value := rq.Argument(name)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ArgumentError{Param: name, Want: "datetime"}
}

// SetToken attaches a token to the outbound response, as the "token" header
// and a secure cookie. Authentication calls it when it refreshes a stale
// token.
func (rq *Request) SetToken(raw string, expires time.Time) {
	HTTPTokenSink{W: rq.w}.SetToken(raw, expires)
}

// negotiatedType resolves the response representation once per request and
// caches it.
func (rq *Request) negotiatedType() string {
	if rq.contentType == "" {
		rq.contentType = Negotiate(rq.r.Header.Get("Accept"), rq.supported)
	}
	return rq.contentType
}

// applyContentType writes the Content-Type header for the negotiated type.
// Repeated calls within one request are no-ops.
func (rq *Request) applyContentType() {
	if rq.contentTypeApplied {
		return
	}
	rq.w.Header().Set("Content-Type", rq.negotiatedType()+"; charset=UTF-8")
	rq.contentTypeApplied = true
}

// finish serializes a successful handler result. Tabular and raw results
// negotiated to a non-JSON representation answer with the rendered body
// directly; everything else is wrapped in the envelope.
func (rq *Request) finish(result Result) {
	contentType := rq.negotiatedType()

	switch result.kind {
	case resultTabular:
		if contentType != ContentTypeJSON {
			body, err := result.render(contentType)
			if err != nil {
				rq.gate.logger.Errorf("failed rendering table: %v", err)
				rq.finishError(http.StatusInternalServerError, nil)
				return
			}
			rq.writeRaw(body)
			return
		}
	case resultRaw:
		if contentType != ContentTypeJSON {
			rq.writeRaw(result.text)
			return
		}
	}

	rq.writeEnvelope(rq.status, rq.message, result.envelopeData(), "")
}

// finishError answers with an error envelope. The detail is included for
// argument errors (the client needs the parameter name) and otherwise only
// when debug mode is on; authentication and authorization failures pass a
// nil error and never leak a reason.
func (rq *Request) finishError(status int, err error) {
	message := http.StatusText(status)
	detail := ""
	if err != nil {
		var argErr *ArgumentError
		var statusErr *StatusError
		switch {
		case errors.As(err, &argErr):
			detail = argErr.Error()
		case errors.As(err, &statusErr):
			if statusErr.Message != "" {
				message = statusErr.Message
			}
			if rq.gate.config.Debug {
				detail = err.Error()
			}
		default:
			if rq.gate.config.Debug {
				detail = err.Error()
			}
		}
	}
	rq.writeEnvelope(status, message, nil, detail)
}

func (rq *Request) writeRaw(body string) {
	rq.applyContentType()
	rq.w.WriteHeader(rq.status)
	if _, err := io.WriteString(rq.w, body); err != nil {
		rq.gate.logger.Errorf("failed writing response: %v", err)
	}
}

// writeEnvelope emits the canonical response wrapper. Envelopes are always
// JSON regardless of the negotiated representation.
func (rq *Request) writeEnvelope(code int, message string, data any, detail string) {
	env := Envelope{
		ID:        rq.id,
		Timestamp: rq.gate.now().UTC(),
		Message:   message,
		Code:      code,
		Data:      data,
		Error:     detail,
		Flash:     rq.flash,
	}
	rq.w.Header().Set("Content-Type", ContentTypeJSON+"; charset=UTF-8")
	rq.w.WriteHeader(code)
	if err := json.NewEncoder(rq.w).Encode(env); err != nil {
		rq.gate.logger.Errorf("failed writing envelope: %v", err)
	}
}
