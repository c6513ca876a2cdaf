// Package openapi checks HTTP traffic against the embedded OpenAPI document
// of the collection API.
package openapi

import (
	"bytes"
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var document []byte

// ErrUndocumented is returned for a method and path the document lacks
var ErrUndocumented = stderrors.New("route not described by the API document")

// ContractError lists the offending fields of a rejected request. Query and
// path parameters are keyed by name and body fields by their dotted path.
type ContractError struct {
	Fields map[string]string
	err    error
}

func (e *ContractError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "request violates the API contract: " + strings.Join(parts, "; ")
}

func (e *ContractError) Unwrap() error { return e.err }

// Operation is one documented method and path
type Operation struct {
	Method string
	Path   string
	ID     string
}

type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// Document returns the embedded OpenAPI document
func Document() []byte {
	return document
}

func NewDefaultValidator() (*Validator, error) {
	return NewValidator(document)
}

// NewValidator loads and validates spec before building its router
func NewValidator(spec []byte) (*Validator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("openapi: invalid document: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi: build router: %w", err)
	}
	return &Validator{doc: doc, router: router}, nil
}

func (v *Validator) route(req *http.Request) (*routers.Route, map[string]string, error) {
	route, params, err := v.router.FindRoute(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s %s", ErrUndocumented, req.Method, req.URL.Path)
	}
	return route, params, nil
}

// Documents reports whether req targets a documented operation
func (v *Validator) Documents(req *http.Request) bool {
	_, _, err := v.router.FindRoute(req)
	return err == nil
}

// OperationID returns the operationId req is routed to
func (v *Validator) OperationID(req *http.Request) (string, error) {
	route, _, err := v.route(req)
	if err != nil {
		return "", err
	}
	return route.Operation.OperationID, nil
}

// Operations lists every documented operation ordered by path and method
func (v *Validator) Operations() []Operation {
	var ops []Operation
	for path, item := range v.doc.Paths.Map() {
		for method, op := range item.Operations() {
			ops = append(ops, Operation{Method: method, Path: path, ID: op.OperationID})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

// ValidateRequest checks parameters and body of req. The body is restored
// for the handler. Violations are reported as a *ContractError.
func (v *Validator) ValidateRequest(req *http.Request) error {
	route, params, err := v.route(req)
	if err != nil {
		return err
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: params,
		Route:      route,
		Options:    &openapi3filter.Options{MultiError: true},
	}
	if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
		fields := make(map[string]string)
		collectFields(err, fields)
		return &ContractError{Fields: fields, err: err}
	}
	return nil
}

// ValidateResponse checks resp against the documented responses of req's
// operation. Tests use it to keep handlers and the document in step.
func (v *Validator) ValidateResponse(req *http.Request, resp *http.Response) error {
	route, params, err := v.route(req)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openapi: read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}
	if err := openapi3filter.ValidateResponse(req.Context(), input); err != nil {
		return fmt.Errorf("openapi: response for %s: %w", route.Operation.OperationID, err)
	}
	return nil
}

// collectFields flattens kin-openapi's nested errors into field messages
func collectFields(err error, fields map[string]string) {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, inner := range e {
			collectFields(inner, fields)
		}
	case *openapi3filter.RequestError:
		if e.Parameter != nil {
			fields[e.Parameter.Name] = reason(e.Err, e.Reason)
			return
		}
		if e.Err != nil {
			collectFields(e.Err, fields)
			return
		}
		fields["body"] = e.Reason
	case *openapi3.SchemaError:
		field := strings.Join(e.JSONPointer(), ".")
		if field == "" {
			field = "body"
		}
		fields[field] = e.Reason
	default:
		if inner := stderrors.Unwrap(err); inner != nil {
			collectFields(inner, fields)
			return
		}
		fields["request"] = err.Error()
	}
}

func reason(err error, fallback string) string {
	var schemaErr *openapi3.SchemaError
	if stderrors.As(err, &schemaErr) {
		return schemaErr.Reason
	}
	if fallback != "" {
		return fallback
	}
	if err != nil {
		return err.Error()
	}
	return "is invalid"
}
