/*
Package handler provides the verb router and per-verb handlers for the line
protocol.

This file implements the group verbs: GROUP_CREATE, GROUP_LIST,
GROUP_MEMBERS, GROUP_ADD, GROUP_REMOVE, and GROUP_LEAVE, including the
GM_JOIN / GM_LEAVE / GM_KICKED membership pushes towards members currently
in that group's chat mode.
*/
package handler

import (
	"fmt"
	"strconv"
	"strings"

	"linechat/internal/app/chat"
	"linechat/internal/pkg/proto"
)

// pushToGroupChat delivers one frame to every member of groupID that is
// currently in the group's chat mode, skipping the excluded usernames.
// Delivery is best-effort.
func (h *Router) pushToGroupChat(groupID int, frame string, exclude ...string) {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	for _, member := range h.deps.Groups.MemberUsernames(groupID) {
		if _, excluded := skip[member]; excluded {
			continue
		}

		memberID := h.deps.Accounts.UserID(member)
		if memberID <= 0 || !h.deps.Sessions.IsInGroupChat(memberID, groupID) {
			continue
		}

		if conn := h.deps.Sessions.ConnOf(memberID); conn != nil {
			conn.Push(frame)
		}
	}
}

// handleGroupCreate allocates a group owned by the caller.
func (h *Router) handleGroupCreate(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "name")
	if !ok {
		return
	}
	name := values[0]

	groupID, customErr := h.deps.Groups.Create(userID, name)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.deps.Activity.Logf("group %d (%s) created by user %d", groupID, name, userID)
	h.ok(c, req, fmt.Sprintf("group_id=%d name=%s", groupID, name))
}

// handleGroupList lists the ids of every group the caller belongs to.
func (h *Router) handleGroupList(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	ids, customErr := h.deps.Groups.GroupIDs(userID)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	rendered := make([]string, 0, len(ids))
	for _, id := range ids {
		rendered = append(rendered, strconv.Itoa(id))
	}

	h.ok(c, req, "groups="+strings.Join(rendered, ","))
}

// handleGroupMembers lists the group's members; the caller must be one.
func (h *Router) handleGroupMembers(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	members, customErr := h.deps.Groups.Members(userID, groupID)
	if customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.ok(c, req, "members="+strings.Join(members, ","))
}

// handleGroupAdd adds a user to the group (owner only) and notifies members
// currently in the group's chat mode.
func (h *Router) handleGroupAdd(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "username")
	if !ok {
		return
	}
	username := values[0]

	if customErr := h.deps.Groups.AddMember(userID, groupID, username); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.pushToGroupChat(groupID,
		proto.FormatPush(proto.PushGMJoin, fmt.Sprintf("user=%s group_id=%d", username, groupID)),
		username)

	h.deps.Activity.Logf("group %d: user %s added by user %d", groupID, username, userID)
	h.ok(c, req, fmt.Sprintf("group_id=%d username=%s status=added", groupID, username))
}

// handleGroupRemove removes a user from the group (owner only), notifies
// members in the group's chat mode, and tells the removed user if they are
// watching that conversation.
func (h *Router) handleGroupRemove(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	values, ok := h.fields(c, req, "username")
	if !ok {
		return
	}
	username := values[0]

	// Resolve before the mutation: the removed user's chat-mode state decides
	// the GM_KICKED push after the membership record is gone.
	removedID := h.deps.Accounts.UserID(username)

	if customErr := h.deps.Groups.RemoveMember(userID, groupID, username); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	h.pushToGroupChat(groupID,
		proto.FormatPush(proto.PushGMLeave, fmt.Sprintf("user=%s group_id=%d", username, groupID)))

	if removedID > 0 && h.deps.Sessions.IsInGroupChat(removedID, groupID) {
		if conn := h.deps.Sessions.ConnOf(removedID); conn != nil {
			conn.Push(proto.FormatPush(proto.PushGMKicked, fmt.Sprintf("group_id=%d", groupID)))
		}
		h.deps.Sessions.SetChatGroup(removedID, 0)
	}

	h.deps.Activity.Logf("group %d: user %s removed by user %d", groupID, username, userID)
	h.ok(c, req, fmt.Sprintf("group_id=%d username=%s status=removed", groupID, username))
}

// handleGroupLeave removes the caller's own membership and notifies members
// in the group's chat mode.
func (h *Router) handleGroupLeave(c *chat.Client, req proto.Request) {
	userID, ok := h.authenticate(c, req)
	if !ok {
		return
	}

	groupID, ok := h.groupID(c, req)
	if !ok {
		return
	}

	if customErr := h.deps.Groups.Leave(userID, groupID); customErr != nil {
		h.fail(c, req, customErr)
		return
	}

	username, _ := h.deps.Accounts.Username(userID)

	h.pushToGroupChat(groupID,
		proto.FormatPush(proto.PushGMLeave, fmt.Sprintf("user=%s group_id=%d", username, groupID)))

	if h.deps.Sessions.IsInGroupChat(userID, groupID) {
		h.deps.Sessions.SetChatGroup(userID, 0)
	}

	h.deps.Activity.Logf("group %d: user %s left", groupID, username)
	h.ok(c, req, fmt.Sprintf("group_id=%d status=left", groupID))
}
