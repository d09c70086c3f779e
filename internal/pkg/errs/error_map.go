/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize wire responses and internal error handling.
*/
package errs

// errorMap stores the detailed CustomError struct corresponding to every
// application error code. The key is the error code (int); the value carries
// the numeric wire status and the message token sent in ERR responses.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrBadRequest:     {Code: ErrBadRequest, Status: 400, Message: "bad_request"},
	ErrMissingFields:  {Code: ErrMissingFields, Status: 400, Message: "missing_fields"},
	ErrInvalidFields:  {Code: ErrInvalidFields, Status: 422, Message: "invalid_fields"},
	ErrUnknownCommand: {Code: ErrUnknownCommand, Status: 404, Message: "unknown_command"},

	// 2xxx: Friendship, Group, and Messaging Business Logic Errors
	ErrCannotInviteSelf:       {Code: ErrCannotInviteSelf, Status: 422, Message: "cannot_invite_self"},
	ErrCannotAcceptSelf:       {Code: ErrCannotAcceptSelf, Status: 422, Message: "cannot_accept_self"},
	ErrCannotRejectSelf:       {Code: ErrCannotRejectSelf, Status: 422, Message: "cannot_reject_self"},
	ErrCannotDeleteSelf:       {Code: ErrCannotDeleteSelf, Status: 422, Message: "cannot_delete_self"},
	ErrAlreadyFriendOrPending: {Code: ErrAlreadyFriendOrPending, Status: 409, Message: "already_friend_or_pending"},
	ErrAlreadyFriends:         {Code: ErrAlreadyFriends, Status: 409, Message: "already_friends"},
	ErrInviteNotFound:         {Code: ErrInviteNotFound, Status: 404, Message: "invite_not_found"},
	ErrFriendNotFound:         {Code: ErrFriendNotFound, Status: 404, Message: "friend_not_found"},
	ErrInvalidGroupID:         {Code: ErrInvalidGroupID, Status: 400, Message: "invalid_group_id"},
	ErrNotGroupMember:         {Code: ErrNotGroupMember, Status: 403, Message: "not_group_member"},
	ErrNotGroupOwner:          {Code: ErrNotGroupOwner, Status: 403, Message: "not_group_owner"},
	ErrAlreadyMember:          {Code: ErrAlreadyMember, Status: 409, Message: "already_member"},
	ErrMemberNotFound:         {Code: ErrMemberNotFound, Status: 404, Message: "member_not_found"},
	ErrOwnerCannotLeave:       {Code: ErrOwnerCannotLeave, Status: 422, Message: "owner_cannot_leave"},
	ErrGroupNotFound:          {Code: ErrGroupNotFound, Status: 404, Message: "not_group_member"},
	ErrCannotSendToSelf:       {Code: ErrCannotSendToSelf, Status: 422, Message: "cannot_send_to_self"},

	// 3xxx: Account and Session Errors
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Status: 401, Message: "invalid_credentials"},
	ErrInvalidToken:       {Code: ErrInvalidToken, Status: 401, Message: "invalid_token"},
	ErrAlreadyLoggedIn:    {Code: ErrAlreadyLoggedIn, Status: 409, Message: "already_logged_in"},
	ErrUsernameExists:     {Code: ErrUsernameExists, Status: 409, Message: "username_exists"},
	ErrUserNotFound:       {Code: ErrUserNotFound, Status: 404, Message: "user_not_found"},

	// 5xxx: Internal System Errors
	ErrServer:   {Code: ErrServer, Status: 500, Message: "server_error"},
	ErrInternal: {Code: ErrInternal, Status: 500, Message: "internal_error"},
}
