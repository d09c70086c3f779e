/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the server and, through their wire status and message token, in
responses to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrBadRequest indicates a line that could not be parsed into verb and request id.
	ErrBadRequest = 1001

	// ErrMissingFields indicates that a required key=value argument is absent.
	ErrMissingFields = 1002

	// ErrInvalidFields indicates that request argument validation failed.
	ErrInvalidFields = 1003

	// ErrUnknownCommand indicates an unrecognized verb.
	ErrUnknownCommand = 1004
)

// 2xxx: Friendship, Group, and Messaging Business Logic Errors
const (
	// ErrCannotInviteSelf indicates a friend invite addressed to the caller.
	ErrCannotInviteSelf = 2101

	// ErrCannotAcceptSelf indicates a friend accept addressed to the caller.
	ErrCannotAcceptSelf = 2102

	// ErrCannotRejectSelf indicates a friend reject addressed to the caller.
	ErrCannotRejectSelf = 2103

	// ErrCannotDeleteSelf indicates a friend delete addressed to the caller.
	ErrCannotDeleteSelf = 2104

	// ErrAlreadyFriendOrPending indicates an edge already exists in either direction.
	ErrAlreadyFriendOrPending = 2105

	// ErrAlreadyFriends indicates an accept on an edge that is already ACCEPTED.
	ErrAlreadyFriends = 2106

	// ErrInviteNotFound indicates no PENDING edge matches the accept/reject.
	ErrInviteNotFound = 2107

	// ErrFriendNotFound indicates no ACCEPTED edge matches the delete.
	ErrFriendNotFound = 2108

	// ErrInvalidGroupID indicates a group id argument that is not a positive integer.
	ErrInvalidGroupID = 2201

	// ErrNotGroupMember indicates the caller is not a member of an existing group.
	ErrNotGroupMember = 2202

	// ErrNotGroupOwner indicates an owner-gated mutation by a non-owner.
	ErrNotGroupOwner = 2203

	// ErrAlreadyMember indicates adding a user who is already a group member.
	ErrAlreadyMember = 2204

	// ErrMemberNotFound indicates removing a user who is not a group member.
	ErrMemberNotFound = 2205

	// ErrOwnerCannotLeave indicates the group owner attempted to leave.
	ErrOwnerCannotLeave = 2206

	// ErrGroupNotFound indicates a group id that matches no group.
	ErrGroupNotFound = 2207

	// ErrCannotSendToSelf indicates a private message addressed to the sender.
	ErrCannotSendToSelf = 2301
)

// 3xxx: Account and Session Errors
const (
	// ErrInvalidCredentials indicates a failed username/password authentication.
	ErrInvalidCredentials = 3001

	// ErrInvalidToken indicates a token that matches no live session.
	ErrInvalidToken = 3002

	// ErrAlreadyLoggedIn indicates the user holds a session on another connection.
	ErrAlreadyLoggedIn = 3003

	// ErrUsernameExists indicates a registration with a taken username.
	ErrUsernameExists = 3004

	// ErrUserNotFound indicates a username that matches no account.
	ErrUserNotFound = 3005
)

// 5xxx: Internal System Errors
const (
	// ErrServer represents an unexpected I/O or store failure.
	ErrServer = 5000

	// ErrInternal represents an unclassified internal error.
	ErrInternal = 5001
)
