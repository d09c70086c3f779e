/*
Package handler provides the verb router and per-verb handlers for the line
protocol.

This file defines the Router, which parses each framed line into a request,
dispatches it by verb, and translates handler results into OK/ERR frames on
the originating connection. Push frames towards other connections are
emitted by the individual handlers.
*/
package handler

import (
	"strconv"

	"github.com/rs/zerolog"

	"linechat/internal/app/chat"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/proto"
)

// Router dispatches protocol requests. It implements chat.LineHandler.
type Router struct {
	deps   *AppDeps
	logger zerolog.Logger
}

// NewRouter constructs a Router over the application dependencies.
func NewRouter(deps *AppDeps) *Router {
	return &Router{
		deps:   deps,
		logger: logx.Component("router"),
	}
}

// HandleLine parses one request line and dispatches it. The return value
// reports whether the connection worker should terminate.
func (h *Router) HandleLine(c *chat.Client, line string) bool {
	req, err := proto.ParseLine(line)
	if err != nil {
		// Request id unknown; respond with id 0 and keep the connection.
		badRequest := errs.New(errs.ErrBadRequest)
		c.Push(proto.FormatErr("0", badRequest.Status, badRequest.Message))
		return false
	}

	switch req.Verb {
	case "PING":
		h.handlePing(c, req)
	case "REGISTER":
		h.handleRegister(c, req)
	case "LOGIN":
		h.handleLogin(c, req)
	case "LOGOUT":
		h.handleLogout(c, req)
	case "WHOAMI":
		h.handleWhoami(c, req)
	case "DISCONNECT":
		h.handleDisconnect(c, req)
		return true
	case "FRIEND_INVITE":
		h.handleFriendInvite(c, req)
	case "FRIEND_ACCEPT":
		h.handleFriendAccept(c, req)
	case "FRIEND_REJECT":
		h.handleFriendReject(c, req)
	case "FRIEND_PENDING":
		h.handleFriendPending(c, req)
	case "FRIEND_LIST":
		h.handleFriendList(c, req)
	case "FRIEND_DELETE":
		h.handleFriendDelete(c, req)
	case "GROUP_CREATE":
		h.handleGroupCreate(c, req)
	case "GROUP_LIST":
		h.handleGroupList(c, req)
	case "GROUP_MEMBERS":
		h.handleGroupMembers(c, req)
	case "GROUP_ADD":
		h.handleGroupAdd(c, req)
	case "GROUP_REMOVE":
		h.handleGroupRemove(c, req)
	case "GROUP_LEAVE":
		h.handleGroupLeave(c, req)
	case "PM_CHAT_START":
		h.handlePMChatStart(c, req)
	case "PM_CHAT_END":
		h.handlePMChatEnd(c, req)
	case "PM_SEND":
		h.handlePMSend(c, req)
	case "PM_HISTORY":
		h.handlePMHistory(c, req)
	case "PM_CONVERSATIONS":
		h.handlePMConversations(c, req)
	case "GM_CHAT_START":
		h.handleGMChatStart(c, req)
	case "GM_CHAT_END":
		h.handleGMChatEnd(c, req)
	case "GM_SEND":
		h.handleGMSend(c, req)
	case "GM_HISTORY":
		h.handleGMHistory(c, req)
	default:
		h.fail(c, req, errs.New(errs.ErrUnknownCommand))
	}

	return false
}

// Disconnected releases every session bound to the connection. Invoked by
// the worker on end-of-stream, transport error, or DISCONNECT.
func (h *Router) Disconnected(c *chat.Client) {
	h.deps.Sessions.RemoveByConn(c)
	h.deps.Activity.Logf("connection closed from %s", c.RemoteAddr())
}

// ok emits an OK response on the originating connection.
func (h *Router) ok(c *chat.Client, req proto.Request, payload string) {
	c.Push(proto.FormatOK(req.ReqID, payload))
}

// fail emits an ERR response carrying the error's wire status and token.
func (h *Router) fail(c *chat.Client, req proto.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.New(errs.ErrInternal)
	}
	c.Push(proto.FormatErr(req.ReqID, customErr.Status, customErr.Message))
}

// fields extracts the named payload keys. On any missing key it emits
// `400 missing_fields` and reports failure.
func (h *Router) fields(c *chat.Client, req proto.Request, keys ...string) ([]string, bool) {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value, found := proto.Field(req.Payload, key)
		if !found || value == "" {
			h.fail(c, req, errs.New(errs.ErrMissingFields))
			return nil, false
		}
		values = append(values, value)
	}
	return values, true
}

// authenticate validates the request's token and returns the caller's user
// id. On failure it emits the matching ERR response and reports failure.
func (h *Router) authenticate(c *chat.Client, req proto.Request) (int, bool) {
	token, found := proto.Field(req.Payload, "token")
	if !found || token == "" {
		h.fail(c, req, errs.New(errs.ErrMissingFields))
		return 0, false
	}

	userID, customErr := h.deps.Sessions.Validate(token)
	if customErr != nil {
		h.fail(c, req, customErr)
		return 0, false
	}
	return userID, true
}

// groupID parses the group_id payload key into a positive integer. On a
// missing or malformed value it emits the matching ERR response and reports
// failure.
func (h *Router) groupID(c *chat.Client, req proto.Request) (int, bool) {
	raw, found := proto.Field(req.Payload, "group_id")
	if !found || raw == "" {
		h.fail(c, req, errs.New(errs.ErrMissingFields))
		return 0, false
	}

	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		h.fail(c, req, errs.New(errs.ErrInvalidGroupID))
		return 0, false
	}
	return id, true
}
