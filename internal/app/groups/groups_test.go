package groups

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/internal/app/accounts"
	"linechat/internal/pkg/errs"
)

// newTestStore registers alice (1), bob (2), and carol (3) and returns the
// group store over fresh db files.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	accountStore, err := accounts.NewStore(filepath.Join(dir, "users.db"))
	require.NoError(t, err)

	for _, name := range []string{"alice", "bob", "carol"} {
		_, customErr := accountStore.Register(name, "secret1", name+"@x.co")
		require.Nil(t, customErr)
	}

	store, err := NewStore(
		filepath.Join(dir, "groups.db"),
		filepath.Join(dir, "group_members.db"),
		accountStore,
	)
	require.NoError(t, err)
	return store, dir
}

func reopen(t *testing.T, dir string) *Store {
	t.Helper()

	accountStore, err := accounts.NewStore(filepath.Join(dir, "users.db"))
	require.NoError(t, err)

	store, err := NewStore(
		filepath.Join(dir, "groups.db"),
		filepath.Join(dir, "group_members.db"),
		accountStore,
	)
	require.NoError(t, err)
	return store
}

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	store, _ := newTestStore(t)

	first, customErr := store.Create(1, "study")
	require.Nil(t, customErr)
	second, customErr := store.Create(1, "games")
	require.Nil(t, customErr)

	assert.Greater(t, second, first)
	assert.True(t, store.Exists(first))
	assert.True(t, store.Exists(second))

	name, found := store.Name(first)
	require.True(t, found)
	assert.Equal(t, "study", name)
}

func TestCreateIDsSurviveRestart(t *testing.T) {
	store, dir := newTestStore(t)

	first, customErr := store.Create(1, "study")
	require.Nil(t, customErr)

	second, customErr := reopen(t, dir).Create(1, "games")
	require.Nil(t, customErr)
	assert.Greater(t, second, first)
}

func TestOwnerIsImplicitMember(t *testing.T) {
	store, _ := newTestStore(t)

	groupID, customErr := store.Create(1, "study")
	require.Nil(t, customErr)

	members, customErr := store.Members(1, groupID)
	require.Nil(t, customErr)
	assert.Equal(t, []string{"alice"}, members)

	ids, customErr := store.GroupIDs(1)
	require.Nil(t, customErr)
	assert.Equal(t, []int{groupID}, ids)
}

func TestMembersRequiresMembership(t *testing.T) {
	store, _ := newTestStore(t)

	groupID, customErr := store.Create(1, "study")
	require.Nil(t, customErr)

	_, customErr = store.Members(2, groupID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotGroupMember, customErr.Code)
}

func TestAddMember(t *testing.T) {
	store, _ := newTestStore(t)

	groupID, customErr := store.Create(1, "study")
	require.Nil(t, customErr)

	require.Nil(t, store.AddMember(1, groupID, "bob"))
	assert.True(t, store.IsMember(groupID, "bob"))

	members, customErr := store.Members(2, groupID)
	require.Nil(t, customErr)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)
}

func TestAddMemberGates(t *testing.T) {
	store, _ := newTestStore(t)

	groupID, customErr := store.Create(1, "study")
	require.Nil(t, customErr)
	require.Nil(t, store.AddMember(1, groupID, "bob"))

	// Non-owner cannot add, member or not.
	customErr = store.AddMember(2, groupID, "carol")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotGroupOwner, customErr.Code)

	// Unknown target.
	customErr = store.AddMember(1, groupID, "nobody")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrUserNotFound, customErr.Code)

	// Duplicate membership.
	customErr = store.AddMember(1, groupID, "bob")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrAlreadyMember, customErr.Code)

	// Nonexistent group fails the ownership gate.
	customErr = store.AddMember(1, groupID+100, "bob")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotGroupOwner, customErr.Code)
}

func TestRemoveMember(t *testing.T) {
	store, _ := newTestStore(t)

	groupID, customErr := store.Create(1, "study")
	require.Nil(t, customErr)
	require.Nil(t, store.AddMember(1, groupID, "bob"))

	require.Nil(t, store.RemoveMember(1, groupID, "bob"))
	assert.False(t, store.IsMember(groupID, "bob"))

	customErr = store.RemoveMember(1, groupID, "bob")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrMemberNotFound, customErr.Code)

	customErr = store.RemoveMember(2, groupID, "alice")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotGroupOwner, customErr.Code)

	// The owner's membership cannot be revoked while the group exists.
	customErr = store.RemoveMember(1, groupID, "alice")
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrNotGroupOwner, customErr.Code)
}

func TestLeave(t *testing.T) {
	store, _ := newTestStore(t)

	groupID, customErr := store.Create(1, "study")
	require.Nil(t, customErr)
	require.Nil(t, store.AddMember(1, groupID, "bob"))

	require.Nil(t, store.Leave(2, groupID))
	assert.False(t, store.IsMember(groupID, "bob"))

	customErr = store.Leave(2, groupID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrGroupNotFound, customErr.Code)

	customErr = store.Leave(1, groupID)
	require.NotNil(t, customErr)
	assert.Equal(t, errs.ErrOwnerCannotLeave, customErr.Code)
}
