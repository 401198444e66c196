package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"pricedash/internal/backend"
	"pricedash/internal/core"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ResponseBuilder assembles a response before anything is written, so a
// rendering failure can still become a clean 500.
type ResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// NewResponse creates a builder with a 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		b.err = err
		return b
	}
	b.headers["Content-Type"] = contentTypeJSON
	b.body = buf.Bytes()
	return b
}

// Body sets a pre-rendered body of the given content type.
func (b *ResponseBuilder) Body(contentType string, content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.body = content
	return b
}

// Err reports an encoding failure from JSON.
func (b *ResponseBuilder) Err() error {
	return b.err
}

// ContentType returns the Content-Type that Write will send.
func (b *ResponseBuilder) ContentType() string {
	return b.headers["Content-Type"]
}

// Bytes returns the rendered body.
func (b *ResponseBuilder) Bytes() []byte {
	return b.body
}

// Write sends the response. An earlier encoding failure is sent as a 500.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		ErrorResponse(http.StatusInternalServerError, "failed to encode response").Write(w)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ServiceUnavailableError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ErrorFor maps a service error onto a response. Messages never include
// the underlying error text.
func ErrorFor(err error) *ResponseBuilder {
	switch {
	case errors.Is(err, backend.ErrUnknownLocale):
		return NotFoundError("unknown locale")
	case errors.Is(err, core.ErrStoreUnavailable):
		return ServiceUnavailableError("price data is temporarily unavailable")
	default:
		return InternalServerError("internal error")
	}
}
