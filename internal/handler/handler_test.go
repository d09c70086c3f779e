package handler_test

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/internal/app/accounts"
	"linechat/internal/app/chat"
	"linechat/internal/app/friends"
	"linechat/internal/app/gm"
	"linechat/internal/app/groups"
	"linechat/internal/app/pm"
	"linechat/internal/app/sessions"
	"linechat/internal/configs"
	"linechat/internal/handler"
	"linechat/internal/pkg/activity"
	"linechat/internal/pkg/proto"
)

// testServer wires real stores in a temp directory behind the verb router.
type testServer struct {
	deps   *handler.AppDeps
	router *handler.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()

	accountStore, err := accounts.NewStore(filepath.Join(dir, "users.db"))
	require.NoError(t, err)

	groupStore, err := groups.NewStore(
		filepath.Join(dir, "groups.db"),
		filepath.Join(dir, "group_members.db"),
		accountStore,
	)
	require.NoError(t, err)

	pmStore, err := pm.NewStore(filepath.Join(dir, "pm"), accountStore)
	require.NoError(t, err)

	gmStore, err := gm.NewStore(filepath.Join(dir, "gm"), accountStore, groupStore)
	require.NoError(t, err)

	deps := &handler.AppDeps{
		Config:   &configs.AppConfig{Environment: "development", Port: 0, SessionTimeout: time.Hour, DataDir: dir},
		Accounts: accountStore,
		Sessions: sessions.NewRegistry(time.Hour),
		Friends:  friends.NewStore(filepath.Join(dir, "friends.db"), accountStore),
		Groups:   groupStore,
		PM:       pmStore,
		GM:       gmStore,
		Activity: activity.NewSink(filepath.Join(dir, "server.log")),
	}

	return &testServer{deps: deps, router: handler.NewRouter(deps)}
}

// testConn simulates one client over an in-memory pipe, with the worker and
// write pump running like a real accepted connection.
type testConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (ts *testServer) dial(t *testing.T) *testConn {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	worker := chat.NewClient(serverConn)

	go worker.WritePump()
	go worker.ReadPump(ts.router)

	t.Cleanup(func() { clientConn.Close() })

	return &testConn{conn: clientConn, reader: bufio.NewReader(clientConn)}
}

func (tc *testConn) send(t *testing.T, line string) {
	t.Helper()

	require.NoError(t, tc.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := tc.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

func (tc *testConn) recv(t *testing.T) string {
	t.Helper()

	require.NoError(t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := tc.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(line, "\r\n")
}

// recvNone asserts that nothing arrives within the grace window.
func (tc *testConn) recvNone(t *testing.T) {
	t.Helper()

	require.NoError(t, tc.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := tc.reader.ReadString('\n')
	netErr, ok := err.(net.Error)
	require.True(t, ok && netErr.Timeout(), "expected silence, got err=%v", err)
}

// payloadOf strips the "OK <req_id> " prefix of a response line.
func payloadOf(t *testing.T, resp string) string {
	t.Helper()

	parts := strings.SplitN(resp, " ", 3)
	require.Equal(t, "OK", parts[0], "response %q is not OK", resp)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// register creates an account and reports its id payload.
func (ts *testServer) register(t *testing.T, tc *testConn, username string) {
	t.Helper()

	tc.send(t, fmt.Sprintf("REGISTER r username=%s password=secret1 email=%s@b.co", username, username))
	resp := tc.recv(t)
	require.True(t, strings.HasPrefix(resp, "OK r user_id="), "register failed: %q", resp)
}

// login authenticates and returns the session token.
func (ts *testServer) login(t *testing.T, tc *testConn, username string) string {
	t.Helper()

	tc.send(t, fmt.Sprintf("LOGIN l username=%s password=secret1", username))
	payload := payloadOf(t, tc.recv(t))
	token, found := proto.Field(payload, "token")
	require.True(t, found && token != "")
	return token
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)

	tc.send(t, "PING 1")
	assert.Equal(t, "OK 1 pong=1", tc.recv(t))
}

func TestBadRequestKeepsConnection(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)

	tc.send(t, "JUNK")
	assert.Equal(t, "ERR 0 400 bad_request", tc.recv(t))

	// The connection continues serving requests.
	tc.send(t, "PING 2")
	assert.Equal(t, "OK 2 pong=1", tc.recv(t))
}

func TestUnknownCommand(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)

	tc.send(t, "FROBNICATE 9")
	assert.Equal(t, "ERR 9 404 unknown_command", tc.recv(t))
}

func TestRegisterLoginWhoami(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)

	tc.send(t, "REGISTER 1 username=alice password=secret1 email=a@b.co")
	assert.Equal(t, "OK 1 user_id=1", tc.recv(t))

	tc.send(t, "LOGIN 2 username=alice password=secret1")
	payload := payloadOf(t, tc.recv(t))
	token, found := proto.Field(payload, "token")
	require.True(t, found)
	userID, found := proto.Field(payload, "user_id")
	require.True(t, found)
	assert.Equal(t, "1", userID)
	assert.Len(t, token, 32)

	tc.send(t, "WHOAMI 3 token="+token)
	assert.Equal(t, "OK 3 user_id=1", tc.recv(t))
}

func TestRegisterErrors(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)

	ts.register(t, tc, "alice")

	tc.send(t, "REGISTER 1 username=alice password=secret1 email=a@b.co")
	assert.Equal(t, "ERR 1 409 username_exists", tc.recv(t))

	tc.send(t, "REGISTER 2 username=alice password=secret1")
	assert.Equal(t, "ERR 2 400 missing_fields", tc.recv(t))

	tc.send(t, "REGISTER 3 username=xy password=secret1 email=a@b.co")
	assert.Equal(t, "ERR 3 422 invalid_fields", tc.recv(t))
}

func TestLoginErrors(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)
	ts.register(t, tc, "alice")

	tc.send(t, "LOGIN 1 username=alice password=wrongpw")
	assert.Equal(t, "ERR 1 401 invalid_credentials", tc.recv(t))

	tc.send(t, "LOGIN 2 username=nobody password=secret1")
	assert.Equal(t, "ERR 2 401 invalid_credentials", tc.recv(t))
}

func TestAlreadyLoggedIn(t *testing.T) {
	ts := newTestServer(t)
	first := ts.dial(t)
	ts.register(t, first, "alice")
	ts.login(t, first, "alice")

	second := ts.dial(t)
	second.send(t, "LOGIN 1 username=alice password=secret1")
	assert.Equal(t, "ERR 1 409 already_logged_in", second.recv(t))
}

func TestLogoutInvalidatesToken(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)
	ts.register(t, tc, "alice")
	token := ts.login(t, tc, "alice")

	tc.send(t, "LOGOUT 1 token="+token)
	assert.Equal(t, "OK 1 ok=1", tc.recv(t))

	tc.send(t, "WHOAMI 2 token="+token)
	assert.Equal(t, "ERR 2 401 invalid_token", tc.recv(t))

	tc.send(t, "LOGOUT 3 token="+token)
	assert.Equal(t, "ERR 3 401 invalid_token", tc.recv(t))
}

func TestDisconnectEndsWorker(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)
	ts.register(t, tc, "alice")
	token := ts.login(t, tc, "alice")

	tc.send(t, "DISCONNECT 9 token="+token)
	assert.Equal(t, "OK 9 ok=1", tc.recv(t))

	// The worker terminates and the stream closes after the response.
	require.NoError(t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := tc.reader.ReadString('\n')
	require.Error(t, err)

	// The session is gone.
	other := ts.dial(t)
	other.send(t, "WHOAMI 1 token="+token)
	assert.Equal(t, "ERR 1 401 invalid_token", other.recv(t))
}

func TestConnectionDropEvictsSession(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)
	ts.register(t, tc, "alice")
	token := ts.login(t, tc, "alice")

	require.NoError(t, tc.conn.Close())

	require.Eventually(t, func() bool {
		return !ts.deps.Sessions.IsOnline(1)
	}, 2*time.Second, 10*time.Millisecond)

	other := ts.dial(t)
	other.send(t, "WHOAMI 1 token="+token)
	assert.Equal(t, "ERR 1 401 invalid_token", other.recv(t))
}

func TestOversizeLineClosesWithoutResponse(t *testing.T) {
	ts := newTestServer(t)
	tc := ts.dial(t)

	// 65537 bytes with no terminator: the framer gives up and the worker
	// closes the stream without responding.
	junk := strings.Repeat("a", 64*1024+1)
	require.NoError(t, tc.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := tc.conn.Write([]byte(junk))
	require.NoError(t, err)

	require.NoError(t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = tc.reader.ReadString('\n')
	require.Error(t, err)
	netErr, isNetErr := err.(net.Error)
	assert.False(t, isNetErr && netErr.Timeout(), "connection should close, not hang")
}

func TestFriendCycle(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	alice.send(t, "FRIEND_INVITE 10 token="+tokenA+" username=bob")
	assert.Equal(t, "OK 10 username=bob status=pending", alice.recv(t))

	bob.send(t, "FRIEND_PENDING 11 token="+tokenB)
	assert.Equal(t, "OK 11 username=alice", bob.recv(t))

	bob.send(t, "FRIEND_ACCEPT 12 token="+tokenB+" username=alice")
	assert.Equal(t, "OK 12 username=alice status=accepted", bob.recv(t))

	// Both sides see the friendship with live online status.
	alice.send(t, "FRIEND_LIST 13 token="+tokenA)
	assert.Equal(t, "OK 13 username=bob:online", alice.recv(t))

	bob.send(t, "FRIEND_LIST 14 token="+tokenB)
	assert.Equal(t, "OK 14 username=alice:online", bob.recv(t))

	// A second invite in either direction conflicts.
	alice.send(t, "FRIEND_INVITE 15 token="+tokenA+" username=bob")
	assert.Equal(t, "ERR 15 409 already_friend_or_pending", alice.recv(t))

	alice.send(t, "FRIEND_DELETE 16 token="+tokenA+" username=bob")
	assert.Equal(t, "OK 16 username=bob status=deleted", alice.recv(t))

	alice.send(t, "FRIEND_LIST 17 token="+tokenA)
	assert.Equal(t, "OK 17 username=", alice.recv(t))
}

func TestFriendListOfflineStatus(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	bob := ts.dial(t)
	ts.register(t, bob, "bob")

	tokenA := ts.login(t, alice, "alice")
	tokenB := ts.login(t, bob, "bob")

	alice.send(t, "FRIEND_INVITE 1 token="+tokenA+" username=bob")
	alice.recv(t)
	bob.send(t, "FRIEND_ACCEPT 2 token="+tokenB+" username=alice")
	bob.recv(t)

	bob.send(t, "LOGOUT 3 token="+tokenB)
	bob.recv(t)

	alice.send(t, "FRIEND_LIST 4 token="+tokenA)
	assert.Equal(t, "OK 4 username=bob:offline", alice.recv(t))
}

func TestPrivateMessageWithLivePush(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	alice.send(t, "PM_CHAT_START 20 token="+tokenA+" with=bob")
	assert.Equal(t, "OK 20 with=bob me=alice history=empty", alice.recv(t))

	bob.send(t, "PM_CHAT_START 21 token="+tokenB+" with=alice")
	assert.Equal(t, "OK 21 with=alice me=bob history=empty", bob.recv(t))

	alice.send(t, "PM_SEND 22 token="+tokenA+" to=bob content=aGk=")
	assert.Equal(t, "OK 22 msg_id=1 to=bob status=sent", alice.recv(t))

	push := bob.recv(t)
	assert.True(t, strings.HasPrefix(push, "PUSH PM from=alice content=aGk= msg_id=1 ts="), "push %q", push)

	// The message is in history for both sides.
	bob.send(t, "PM_HISTORY 23 token="+tokenB+" with=alice")
	resp := bob.recv(t)
	assert.Contains(t, resp, "messages=1:alice:aGk=:")
}

func TestPrivateMessageWithoutChatModeStaysUnread(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	alice.send(t, "PM_SEND 1 token="+tokenA+" to=bob content=aGk=")
	assert.Equal(t, "OK 1 msg_id=1 to=bob status=sent", alice.recv(t))

	// No chat mode, no push.
	bob.recvNone(t)

	bob.send(t, "PM_CONVERSATIONS 2 token="+tokenB)
	assert.Equal(t, "OK 2 conversations=alice:1", bob.recv(t))

	// Entering chat mode marks the conversation read.
	bob.send(t, "PM_CHAT_START 3 token="+tokenB+" with=alice")
	resp := bob.recv(t)
	assert.Contains(t, resp, "history=1:alice:aGk=:")

	bob.send(t, "PM_CONVERSATIONS 4 token="+tokenB)
	assert.Equal(t, "OK 4 conversations=alice:0", bob.recv(t))
}

func TestPMSendErrors(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	alice.send(t, "PM_SEND 1 token="+tokenA+" to=alice content=aGk=")
	assert.Equal(t, "ERR 1 422 cannot_send_to_self", alice.recv(t))

	alice.send(t, "PM_SEND 2 token="+tokenA+" to=nobody content=aGk=")
	assert.Equal(t, "ERR 2 404 user_not_found", alice.recv(t))

	alice.send(t, "PM_SEND 3 token=badtoken to=alice content=aGk=")
	assert.Equal(t, "ERR 3 401 invalid_token", alice.recv(t))

	alice.send(t, "PM_SEND 4 token="+tokenA+" to=alice")
	assert.Equal(t, "ERR 4 400 missing_fields", alice.recv(t))
}

func TestGroupRoundTripWithPush(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	alice.send(t, "GROUP_CREATE 30 token="+tokenA+" name=study")
	payload := payloadOf(t, alice.recv(t))
	groupID, found := proto.Field(payload, "group_id")
	require.True(t, found)
	name, _ := proto.Field(payload, "name")
	assert.Equal(t, "study", name)

	alice.send(t, "GROUP_ADD 31 token="+tokenA+" group_id="+groupID+" username=bob")
	assert.Equal(t, fmt.Sprintf("OK 31 group_id=%s username=bob status=added", groupID), alice.recv(t))

	bob.send(t, "GROUP_LIST 32 token="+tokenB)
	assert.Equal(t, "OK 32 groups="+groupID, bob.recv(t))

	bob.send(t, "GM_CHAT_START 33 token="+tokenB+" group_id="+groupID)
	resp := bob.recv(t)
	assert.Contains(t, resp, "group_name=study")
	assert.Contains(t, resp, "me=bob")
	assert.Contains(t, resp, "history=empty")

	alice.send(t, "GM_SEND 34 token="+tokenA+" group_id="+groupID+" content=aGVsbG8=")
	assert.Equal(t, "OK 34 msg_id=1 status=sent", alice.recv(t))

	push := bob.recv(t)
	expected := fmt.Sprintf("PUSH GM from=alice group_id=%s content=aGVsbG8= msg_id=1 ts=", groupID)
	assert.True(t, strings.HasPrefix(push, expected), "push %q", push)

	bob.send(t, "GM_HISTORY 35 token="+tokenB+" group_id="+groupID)
	resp = bob.recv(t)
	assert.Contains(t, resp, "messages=1:alice:aGVsbG8=:")
}

func TestGroupMembershipPushes(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	carol := ts.dial(t)
	ts.register(t, carol, "carol")
	tokenC := ts.login(t, carol, "carol")

	alice.send(t, "GROUP_CREATE 1 token="+tokenA+" name=study")
	payload := payloadOf(t, alice.recv(t))
	groupID, _ := proto.Field(payload, "group_id")

	alice.send(t, "GROUP_ADD 2 token="+tokenA+" group_id="+groupID+" username=bob")
	alice.recv(t)

	// Both alice and bob watch the group conversation.
	alice.send(t, "GM_CHAT_START 3 token="+tokenA+" group_id="+groupID)
	alice.recv(t)
	bob.send(t, "GM_CHAT_START 4 token="+tokenB+" group_id="+groupID)
	bob.recv(t)

	// Adding carol notifies the watchers, not carol.
	alice.send(t, "GROUP_ADD 5 token="+tokenA+" group_id="+groupID+" username=carol")
	assert.Equal(t, fmt.Sprintf("PUSH GM_JOIN user=carol group_id=%s", groupID), alice.recv(t))
	assert.Equal(t, fmt.Sprintf("OK 5 group_id=%s username=carol status=added", groupID), alice.recv(t))
	assert.Equal(t, fmt.Sprintf("PUSH GM_JOIN user=carol group_id=%s", groupID), bob.recv(t))
	carol.recvNone(t)

	// Kicking bob: watchers get GM_LEAVE, bob additionally GM_KICKED.
	bob.send(t, "GM_CHAT_START 6 token="+tokenB+" group_id="+groupID)
	bob.recv(t)
	alice.send(t, "GROUP_REMOVE 7 token="+tokenA+" group_id="+groupID+" username=bob")
	assert.Equal(t, fmt.Sprintf("PUSH GM_LEAVE user=bob group_id=%s", groupID), alice.recv(t))
	assert.Equal(t, fmt.Sprintf("OK 7 group_id=%s username=bob status=removed", groupID), alice.recv(t))
	assert.Equal(t, fmt.Sprintf("PUSH GM_KICKED group_id=%s", groupID), bob.recv(t))

	// Carol leaves without watching; alice still gets GM_LEAVE.
	carol.send(t, "GROUP_LEAVE 8 token="+tokenC+" group_id="+groupID)
	assert.Equal(t, fmt.Sprintf("OK 8 group_id=%s status=left", groupID), carol.recv(t))
	assert.Equal(t, fmt.Sprintf("PUSH GM_LEAVE user=carol group_id=%s", groupID), alice.recv(t))
}

func TestGroupErrors(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	alice.send(t, "GROUP_CREATE 1 token="+tokenA+" name=study")
	payload := payloadOf(t, alice.recv(t))
	groupID, _ := proto.Field(payload, "group_id")

	alice.send(t, "GROUP_MEMBERS 2 token="+tokenA+" group_id=abc")
	assert.Equal(t, "ERR 2 400 invalid_group_id", alice.recv(t))

	bob.send(t, "GROUP_MEMBERS 3 token="+tokenB+" group_id="+groupID)
	assert.Equal(t, "ERR 3 403 not_group_member", bob.recv(t))

	bob.send(t, "GROUP_ADD 4 token="+tokenB+" group_id="+groupID+" username=bob")
	assert.Equal(t, "ERR 4 403 not_group_owner", bob.recv(t))

	alice.send(t, "GROUP_LEAVE 5 token="+tokenA+" group_id="+groupID)
	assert.Equal(t, "ERR 5 422 owner_cannot_leave", alice.recv(t))

	bob.send(t, "GM_SEND 6 token="+tokenB+" group_id="+groupID+" content=aGk=")
	assert.Equal(t, "ERR 6 403 not_group_member", bob.recv(t))

	bob.send(t, "GM_SEND 7 token="+tokenB+" group_id=999 content=aGk=")
	assert.Equal(t, "ERR 7 404 not_group_member", bob.recv(t))
}

func TestPMChatEndClearsChatMode(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	bob.send(t, "PM_CHAT_START 1 token="+tokenB+" with=alice")
	bob.recv(t)

	bob.send(t, "PM_CHAT_END 2 token="+tokenB)
	assert.Equal(t, "OK 2 status=chat_ended", bob.recv(t))

	// After leaving chat mode, sends are no longer pushed.
	alice.send(t, "PM_SEND 3 token="+tokenA+" to=bob content=aGk=")
	alice.recv(t)
	bob.recvNone(t)
}

func TestTokenSurvivesBase64Padding(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t)
	ts.register(t, alice, "alice")
	tokenA := ts.login(t, alice, "alice")

	bob := ts.dial(t)
	ts.register(t, bob, "bob")
	tokenB := ts.login(t, bob, "bob")

	// Padding '=' must survive the key=value split.
	alice.send(t, "PM_SEND 1 token="+tokenA+" to=bob content=YQ==")
	assert.Equal(t, "OK 1 msg_id=1 to=bob status=sent", alice.recv(t))

	bob.send(t, "PM_HISTORY 2 token="+tokenB+" with=alice")
	assert.Contains(t, bob.recv(t), "messages=1:alice:YQ==:")
}
