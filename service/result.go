package service

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Header is one response header.
type Header struct {
	Name  string
	Value string
}

// ErrorPair tags an error message with the field it concerns, or "" for
// the request as a whole. Messages begin with a numeric sub-code. Pairs
// serialize as two-element JSON arrays.
type ErrorPair struct {
	Field   string
	Message string
}

// MarshalJSON renders the pair as ["field", "message"].
func (p ErrorPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Field, p.Message})
}

// Result is the outcome of one operation: status code, headers, and a
// body whose shape depends on the status (document, error pairs, or
// plain text).
type Result struct {
	Status  int
	Headers []Header
	Body    any
}

func ok(body any) Result {
	return Result{Status: http.StatusOK, Body: body}
}

func created(location string, body any) Result {
	return Result{
		Status:  http.StatusCreated,
		Headers: []Header{{Name: "Location", Value: location}},
		Body:    body,
	}
}

func noContent() Result {
	return Result{Status: http.StatusNoContent}
}

func unauthorized() Result {
	return Result{Status: http.StatusUnauthorized}
}

func forbidden() Result {
	return Result{Status: http.StatusForbidden, Body: "not authorized"}
}

func notFound(message string) Result {
	return Result{Status: http.StatusNotFound, Body: message}
}

func conflict(message string) Result {
	return Result{Status: http.StatusConflict, Body: []ErrorPair{{Message: message}}}
}

func badRequest(pairs ...ErrorPair) Result {
	return Result{Status: http.StatusBadRequest, Body: pairs}
}

func badPath(rc RequestContext) Result {
	return badRequest(ErrorPair{
		Message: fmt.Sprintf("4001 bad path: %s (trailing / or path too short or other problem)", rc.Path()),
	})
}

func internalError(err error) Result {
	return Result{Status: http.StatusInternalServerError, Body: []ErrorPair{{Message: fmt.Sprintf("5000 %v", err)}}}
}
