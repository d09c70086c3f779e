/*
Package handler provides the verb router and per-verb handlers for the line
protocol.

This file implements the friendship verbs: FRIEND_INVITE, FRIEND_ACCEPT,
FRIEND_REJECT, FRIEND_PENDING, FRIEND_LIST, and FRIEND_DELETE.
*/
package handler

import (
	"fmt"
	"strings"

	"linechat/internal/app/chat"
	"linechat/internal/pkg/proto"
)

// handleFriendInvite creates a pending invite towards the named user.
func (h *Router) handleFriendInvite(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "username")
	if !ok {
		return
	}
	username := values[0]

	if customErr := h.deps.Friends.Invite(userID, username); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("friend invite: user %d -> %s", userID, username)
	h.ok(c, req, fmt.Sprintf("username=%s status=pending", username))
}

// handleFriendAccept promotes a pending invite from the named user.
func (h *Router) handleFriendAccept(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "username")
	if !ok {
		return
	}
	username := values[0]

	if customErr := h.deps.Friends.Accept(userID, username); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("friend accept: user %d <- %s", userID, username)
	h.ok(c, req, fmt.Sprintf("username=%s status=accepted", username))
}

// handleFriendReject removes a pending invite from the named user.
func (h *Router) handleFriendReject(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "username")
	if !ok {
		return
	}
	username := values[0]

	if customErr := h.deps.Friends.Reject(userID, username); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("friend reject: user %d <- %s", userID, username)
	h.ok(c, req, fmt.Sprintf("username=%s status=rejected", username))
}

// handleFriendPending lists the usernames waiting on the caller's answer.
func (h *Router) handleFriendPending(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	pending, customErr := h.deps.Friends.Pending(userID)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.ok(c, req, "username="+strings.Join(pending, ","))
}

// handleFriendList lists the caller's friends joined with their online
// status from the session registry.
func (h *Router) handleFriendList(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	names, customErr := h.deps.Friends.Friends(userID)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	entries := make([]string, 0, len(names))
	for _, name := range names {
		status := "offline"
		if id := h.deps.Accounts.UserID(name); id > 0 && h.deps.Sessions.IsOnline(id) {
			status = "online"
		}
		entries = append(entries, name+":"+status)
	}

	h.ok(c, req, "username="+strings.Join(entries, ","))
}

// handleFriendDelete removes an accepted friendship in either direction.
func (h *Router) handleFriendDelete(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "username")
	if !ok {
		return
	}
	username := values[0]

	if customErr := h.deps.Friends.Delete(userID, username); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("friend delete: user %d x %s", userID, username)
	h.ok(c, req, fmt.Sprintf("username=%s status=deleted", username))
}
