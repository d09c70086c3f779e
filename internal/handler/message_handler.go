/*
Package handler provides the verb router and per-verb handlers for the line
protocol.

This file implements the conversation verbs: PM_CHAT_START, PM_CHAT_END,
PM_SEND, PM_HISTORY, PM_CONVERSATIONS, GM_CHAT_START, GM_CHAT_END, GM_SEND,
and GM_HISTORY, including live PM and GM push delivery keyed on the
recipient's chat-mode state.
*/
package handler

import (
	"fmt"
	"strconv"
	"strings"

	"linechat/internal/app/chat"
	"linechat/internal/app/gm"
	"linechat/internal/app/pm"
	"linechat/internal/pkg/proto"
)

// emptyHistory is the sentinel value rendered when a conversation has no
// messages; a bare empty value would be ambiguous inside the flat payload.
const emptyHistory = "empty"

// parseLimit reads the optional limit key. Absent or malformed values fall
// back to the store default.
func parseLimit(req proto.Request) int {
	raw, found := proto.Field(req.Payload, "limit")
	if !found {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}

// renderPMHistory renders messages as msg_id:from_username:payload:ts
// entries joined by commas, or the empty sentinel.
func (h *Router) renderPMHistory(msgs []pm.Message) string {
	if len(msgs) == 0 {
		return emptyHistory
	}

	entries := make([]string, 0, len(msgs))
	for _, m := range msgs {
		from, ok := h.deps.Accounts.Username(m.FromID)
		if !ok {
			from = "unknown"
		}
		entries = append(entries, fmt.Sprintf("%d:%s:%s:%d", m.ID, from, m.Payload, m.TS))
	}
	return strings.Join(entries, ",")
}

// renderGMHistory renders group messages in the same shape as PM history.
func (h *Router) renderGMHistory(msgs []gm.Message) string {
	if len(msgs) == 0 {
		return emptyHistory
	}

	entries := make([]string, 0, len(msgs))
	for _, m := range msgs {
		from, ok := h.deps.Accounts.Username(m.FromID)
		if !ok {
			from = "unknown"
		}
		entries = append(entries, fmt.Sprintf("%d:%s:%s:%d", m.ID, from, m.Payload, m.TS))
	}
	return strings.Join(entries, ",")
}

// handlePMChatStart enters 1:1 chat mode with the named user: records the
// chat-partner hint, marks their messages read, and returns recent history.
func (h *Router) handlePMChatStart(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "with")
	if !ok {
		return
	}
	with := values[0]

	msgs, customErr := h.deps.PM.History(userID, with, 0)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	if customErr := h.deps.PM.MarkRead(userID, with); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Sessions.SetChatPartner(userID, h.deps.Accounts.UserID(with))

	me, _ := h.deps.Accounts.Username(userID)
	h.ok(c, req, fmt.Sprintf("with=%s me=%s history=%s", with, me, h.renderPMHistory(msgs)))
}

// handlePMChatEnd leaves 1:1 chat mode, marking the partner's messages read
// on the way out.
func (h *Router) handlePMChatEnd(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	if partnerID := h.deps.Sessions.ChatPartnerOf(userID); partnerID != 0 {
		if partner, found := h.deps.Accounts.Username(partnerID); found {
			h.deps.PM.MarkRead(userID, partner)
		}
		h.deps.Sessions.SetChatPartner(userID, 0)
	}

	h.ok(c, req, "status=chat_ended")
}

// handlePMSend persists a private message and pushes it live when the
// recipient is in chat mode with the sender.
func (h *Router) handlePMSend(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "to", "content")
	if !ok {
		return
	}
	to, content := values[0], values[1]

	msgID, ts, customErr := h.deps.PM.Send(userID, to, content)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	// Live delivery only while the recipient is viewing this conversation;
	// otherwise the message waits in history and the unread count.
	toID := h.deps.Accounts.UserID(to)
	if toID > 0 && h.deps.Sessions.IsChattingWith(toID, userID) {
		if conn := h.deps.Sessions.ConnOf(toID); conn != nil {
			from, _ := h.deps.Accounts.Username(userID)
			delivered := conn.Push(proto.FormatPush(proto.PushPM,
				fmt.Sprintf("from=%s content=%s msg_id=%d ts=%d", from, content, msgID, ts)))
			if !delivered {
				h.deps.Activity.Logf("pm push to user %d dropped", toID)
			}
		}
	}

	h.deps.Activity.Logf("pm %d: user %d -> %s", msgID, userID, to)
	h.ok(c, req, fmt.Sprintf("msg_id=%d to=%s status=sent", msgID, to))
}

// handlePMHistory returns recent messages with the named user.
func (h *Router) handlePMHistory(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "with")
	if !ok {
		return
	}
	with := values[0]

	msgs, customErr := h.deps.PM.History(userID, with, parseLimit(req))
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.ok(c, req, fmt.Sprintf("with=%s messages=%s", with, h.renderPMHistory(msgs)))
}

// handlePMConversations lists every counterpart with an unread count.
func (h *Router) handlePMConversations(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	conversations, customErr := h.deps.PM.Conversations(userID)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	entries := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		other, found := h.deps.Accounts.Username(conv.OtherID)
		if !found {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s:%d", other, conv.Unread))
	}

	h.ok(c, req, "conversations="+strings.Join(entries, ","))
}

// handleGMChatStart enters group chat mode: records the chat-group hint and
// returns recent history. The caller must be a member.
func (h *Router) handleGMChatStart(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	msgs, customErr := h.deps.GM.History(userID, groupID, 0)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Sessions.SetChatGroup(userID, groupID)

	name, _ := h.deps.Groups.Name(groupID)
	me, _ := h.deps.Accounts.Username(userID)
	h.ok(c, req, fmt.Sprintf("group_id=%d group_name=%s me=%s history=%s",
		groupID, name, me, h.renderGMHistory(msgs)))
}

// handleGMChatEnd leaves group chat mode.
func (h *Router) handleGMChatEnd(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	h.deps.Sessions.SetChatGroup(userID, 0)
	h.ok(c, req, "status=chat_ended")
}

// handleGMSend persists a group message and fans it out live to every other
// member currently in the group's chat mode.
func (h *Router) handleGMSend(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "content")
	if !ok {
		return
	}
	content := values[0]

	msgID, ts, customErr := h.deps.GM.Send(userID, groupID, content)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	from, _ := h.deps.Accounts.Username(userID)
	h.pushToGroupChat(groupID,
		proto.FormatPush(proto.PushGM,
			fmt.Sprintf("from=%s group_id=%d content=%s msg_id=%d ts=%d", from, groupID, content, msgID, ts)),
		from)

	h.deps.Activity.Logf("gm %d: user %d -> group %d", msgID, userID, groupID)
	h.ok(c, req, fmt.Sprintf("msg_id=%d status=sent", msgID))
}

// handleGMHistory returns recent messages of the group's conversation.
func (h *Router) handleGMHistory(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	msgs, customErr := h.deps.GM.History(userID, groupID, parseLimit(req))
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.ok(c, req, fmt.Sprintf("group_id=%d messages=%s", groupID, h.renderGMHistory(msgs)))
}
