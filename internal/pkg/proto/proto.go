/*
Package proto implements the line protocol codec.

Wire grammar:

	Request:  VERB SP REQ_ID [ SP PAYLOAD ] CRLF
	OK:       OK SP REQ_ID [ SP PAYLOAD ] CRLF
	ERR:      ERR SP REQ_ID SP CODE SP MESSAGE CRLF
	Push:     PUSH SP SUBJECT SP PAYLOAD CRLF

A payload is a flat sequence of key=value tokens separated by single spaces.
Only the first '=' in a token separates key from value, so values keep any
'=' characters of their own (Base64 padding survives intact).
*/
package proto

import (
	"errors"
	"fmt"
	"strings"
)

// maxTokenLen is the longest accepted VERB or REQ_ID token.
const maxTokenLen = 31

// ErrMalformedRequest reports a line missing its verb or request id.
var ErrMalformedRequest = errors.New("proto: malformed request line")

// Push subjects delivered outside the request/response cycle.
const (
	PushPM       = "PM"
	PushJoin     = "JOIN"
	PushLeave    = "LEAVE"
	PushGM       = "GM"
	PushGMJoin   = "GM_JOIN"
	PushGMLeave  = "GM_LEAVE"
	PushGMKicked = "GM_KICKED"
)

// Request is a parsed protocol request line.
type Request struct {
	// Verb is the command name, e.g. "LOGIN".
	Verb string

	// ReqID is the client-chosen correlation token echoed in the response.
	ReqID string

	// Payload is the raw text after the request id (possibly empty).
	Payload string
}

// nextToken consumes leading spaces and returns the next space-delimited
// token together with the remaining input.
func nextToken(s string) (token, rest string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// ParseLine splits a line (without its CRLF terminator) into a Request.
// It fails with ErrMalformedRequest if the verb or request id is missing,
// empty, or longer than 31 characters.
func ParseLine(line string) (Request, error) {
	var req Request

	verb, rest := nextToken(line)
	if verb == "" || len(verb) > maxTokenLen {
		return req, ErrMalformedRequest
	}

	reqID, rest := nextToken(rest)
	if reqID == "" || len(reqID) > maxTokenLen {
		return req, ErrMalformedRequest
	}

	req.Verb = verb
	req.ReqID = reqID
	req.Payload = strings.TrimLeft(rest, " ")
	return req, nil
}

// Field extracts the value of the first key=value token in payload whose key
// matches key. The second return value reports whether the key was found.
func Field(payload, key string) (string, bool) {
	for _, token := range strings.Split(payload, " ") {
		if token == "" {
			continue
		}

		eq := strings.IndexByte(token, '=')
		if eq < 0 {
			continue
		}

		if token[:eq] == key {
			return token[eq+1:], true
		}
	}
	return "", false
}

// FormatOK renders an OK response line including the CRLF terminator.
// An empty payload renders as "OK <req_id>" with no trailing space.
func FormatOK(reqID, payload string) string {
	if payload == "" {
		return fmt.Sprintf("OK %s\r\n", reqID)
	}
	return fmt.Sprintf("OK %s %s\r\n", reqID, payload)
}

// FormatErr renders an ERR response line including the CRLF terminator.
func FormatErr(reqID string, status int, message string) string {
	if reqID == "" {
		reqID = "0"
	}
	return fmt.Sprintf("ERR %s %d %s\r\n", reqID, status, message)
}

// FormatPush renders a PUSH frame including the CRLF terminator.
func FormatPush(subject, payload string) string {
	return fmt.Sprintf("PUSH %s %s\r\n", subject, payload)
}
