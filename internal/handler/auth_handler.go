/*
Package handler provides the verb router and per-verb handlers for the line
protocol.

This file implements the unauthenticated and session verbs: PING, REGISTER,
LOGIN, LOGOUT, WHOAMI, and DISCONNECT.
*/
package handler

import (
	"fmt"

	"linechat/internal/app/chat"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/proto"
)

// handlePing answers the liveness probe.
func (h *Router) handlePing(c *chat.Client, req proto.Request) {
	h.ok(c, req, "pong=1")
}

// handleRegister creates a new account.
func (h *Router) handleRegister(c *chat.Client, req proto.Request) {
	values, ok := h.fields(c, req, "username", "password", "email")
	if !ok {
		return
	}
	username, password, email := values[0], values[1], values[2]

	userID, customErr := h.deps.Accounts.Register(username, password, email)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("user %s registered (id=%d)", username, userID)
	h.ok(c, req, fmt.Sprintf("user_id=%d", userID))
}

// handleLogin authenticates the credentials and opens a session bound to
// this connection.
func (h *Router) handleLogin(c *chat.Client, req proto.Request) {
	values, ok := h.fields(c, req, "username", "password")
	if !ok {
		return
	}
	username, password := values[0], values[1]

	userID, customErr := h.deps.Accounts.Authenticate(username, password)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	token, customErr := h.deps.Sessions.Create(userID, c)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("user %s logged in (id=%d)", username, userID)
	h.ok(c, req, fmt.Sprintf("token=%s user_id=%d", token, userID))
}

// handleLogout destroys the session named by the token.
func (h *Router) handleLogout(c *chat.Client, req proto.Request) {
	values, ok := h.fields(c, req, "token")
	if !ok {
		return
	}

	if !h.deps.Sessions.Destroy(values[0]) {
		h.fail(c, req, errs.New(errs.ErrInvalidToken))
		return
	}

	h.deps.Activity.Logf("session logged out")
	h.ok(c, req, "ok=1")
}

// handleWhoami resolves the token to its user id.
func (h *Router) handleWhoami(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	h.ok(c, req, fmt.Sprintf("user_id=%d", userID))
}

// handleDisconnect destroys the session if a token was supplied and asks the
// worker to terminate. The OK response drains before the stream closes.
func (h *Router) handleDisconnect(c *chat.Client, req proto.Request) {
	if token, found := proto.Field(req.Payload, "token"); found && token != "" {
		h.deps.Sessions.Destroy(token)
	}

	h.ok(c, req, "ok=1")
}
