/*
Package groups implements the file-backed group store.

Two files: groups.db with one group per line,

	group_id|name|owner_username|created_at

and group_members.db with one membership per line,

	group_id|username

The owner's membership record is written at creation and cannot be revoked
while the group exists. Group ids come from an in-memory counter recovered
from the highest persisted id at startup, so they stay strictly increasing
and unique across restarts.
*/
package groups

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/accounts"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
)

// Group is one persisted group record.
type Group struct {
	ID        int
	Name      string
	Owner     string
	CreatedAt int64
}

// membership is one persisted membership record.
type membership struct {
	GroupID  int
	Username string
}

// Store is the group registry. It serializes access to both files under a
// single mutex and resolves usernames through the account store.
type Store struct {
	groupsPath  string
	membersPath string
	accounts    *accounts.Store
	mu          sync.Mutex
	nextID      int
	logger      zerolog.Logger
}

// NewStore constructs a Store over the given file paths and recovers the id
// counter from the highest persisted group id.
func NewStore(groupsPath, membersPath string, accountStore *accounts.Store) (*Store, error) {
	s := &Store{
		groupsPath:  groupsPath,
		membersPath: membersPath,
		accounts:    accountStore,
		nextID:      1,
		logger:      logx.Component("groups"),
	}

	grps, err := s.readGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to scan groups db: %w", err)
	}
	for _, g := range grps {
		if g.ID >= s.nextID {
			s.nextID = g.ID + 1
		}
	}

	return s, nil
}

// readGroups loads every parseable group record. A missing file is an empty
// store. Caller must hold s.mu (or run before the store is shared).
func (s *Store) readGroups() ([]Group, error) {
	f, err := os.Open(s.groupsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var grps []Group
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "|")
		if len(fields) != 4 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil || id <= 0 {
			continue
		}
		ts, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			continue
		}
		grps = append(grps, Group{ID: id, Name: fields[1], Owner: fields[2], CreatedAt: ts})
	}
	return grps, scanner.Err()
}

// readMembers loads every parseable membership record. Caller must hold s.mu.
func (s *Store) readMembers() ([]membership, error) {
	f, err := os.Open(s.membersPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var members []membership
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "|")
		if len(fields) != 2 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil || id <= 0 {
			continue
		}
		members = append(members, membership{GroupID: id, Username: fields[1]})
	}
	return members, scanner.Err()
}

// writeMembers rewrites group_members.db via tmp+rename. Caller must hold s.mu.
func (s *Store) writeMembers(members []membership) error {
	tmp := s.membersPath + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, m := range members {
		fmt.Fprintf(w, "%d|%s\n", m.GroupID, m.Username)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, s.membersPath)
}

// appendLine appends one line to path. Caller must hold s.mu.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(line)
	return err
}

// findLocked returns the group record for id. Caller must hold s.mu.
func (s *Store) findLocked(groupID int) (Group, bool) {
	grps, err := s.readGroups()
	if err != nil {
		return Group{}, false
	}
	for _, g := range grps {
		if g.ID == groupID {
			return g, true
		}
	}
	return Group{}, false
}

// isMemberLocked reports membership. Caller must hold s.mu.
func (s *Store) isMemberLocked(groupID int, username string) bool {
	members, err := s.readMembers()
	if err != nil {
		return false
	}
	for _, m := range members {
		if m.GroupID == groupID && m.Username == username {
			return true
		}
	}
	return false
}

// Create allocates a group owned by ownerID and records the owner's implicit
// membership. The group record is written before the membership record; a
// crash between the two appends is recoverable by re-adding the owner.
func (s *Store) Create(ownerID int, name string) (int, *errs.CustomError) {
	if name == "" || strings.ContainsAny(name, "| ") {
		return 0, errs.New(errs.ErrMissingFields)
	}

	owner, ok := s.accounts.Username(ownerID)
	if !ok {
		return 0, errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	groupID := s.nextID

	if err := appendLine(s.groupsPath, fmt.Sprintf("%d|%s|%s|%d\n", groupID, name, owner, time.Now().Unix())); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append group record")
		return 0, errs.New(errs.ErrServer)
	}
	s.nextID++

	if err := appendLine(s.membersPath, fmt.Sprintf("%d|%s\n", groupID, owner)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append owner membership")
		return 0, errs.New(errs.ErrServer)
	}

	return groupID, nil
}

// GroupIDs lists the ids of every group userID belongs to.
func (s *Store) GroupIDs(userID int) ([]int, *errs.CustomError) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return nil, errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.readMembers()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read group members db")
		return nil, errs.New(errs.ErrServer)
	}

	var ids []int
	for _, m := range members {
		if m.Username == username {
			ids = append(ids, m.GroupID)
		}
	}
	return ids, nil
}

// Members lists the usernames of groupID's members. The caller must be a
// member; a group that does not exist fails the same membership gate.
func (s *Store) Members(callerID, groupID int) ([]string, *errs.CustomError) {
	username, ok := s.accounts.Username(callerID)
	if !ok {
		return nil, errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isMemberLocked(groupID, username) {
		return nil, errs.New(errs.ErrNotGroupMember)
	}

	members, err := s.readMembers()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read group members db")
		return nil, errs.New(errs.ErrServer)
	}

	var result []string
	for _, m := range members {
		if m.GroupID == groupID {
			result = append(result, m.Username)
		}
	}
	return result, nil
}

// AddMember adds username to groupID. Only the owner may add; the target
// must be an existing active account and not already a member.
func (s *Store) AddMember(callerID, groupID int, username string) *errs.CustomError {
	caller, ok := s.accounts.Username(callerID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	if s.accounts.ActiveUserID(username) < 0 {
		return errs.New(errs.ErrUserNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.findLocked(groupID)
	if !ok || g.Owner != caller {
		return errs.New(errs.ErrNotGroupOwner)
	}

	if s.isMemberLocked(groupID, username) {
		return errs.New(errs.ErrAlreadyMember)
	}

	if err := appendLine(s.membersPath, fmt.Sprintf("%d|%s\n", groupID, username)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append membership")
		return errs.New(errs.ErrServer)
	}

	return nil
}

// RemoveMember removes username from groupID. Only the owner may remove;
// the owner's own membership is not removable this way (the owner is never
// "not a member", and removing themselves is rejected as a permission
// violation by the ownership invariant).
func (s *Store) RemoveMember(callerID, groupID int, username string) *errs.CustomError {
	caller, ok := s.accounts.Username(callerID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.findLocked(groupID)
	if !ok || g.Owner != caller {
		return errs.New(errs.ErrNotGroupOwner)
	}

	if username == g.Owner {
		return errs.New(errs.ErrNotGroupOwner)
	}

	if !s.isMemberLocked(groupID, username) {
		return errs.New(errs.ErrMemberNotFound)
	}

	members, err := s.readMembers()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read group members db")
		return errs.New(errs.ErrServer)
	}

	remaining := members[:0:0]
	for _, m := range members {
		if m.GroupID == groupID && m.Username == username {
			continue
		}
		remaining = append(remaining, m)
	}

	if err := s.writeMembers(remaining); err != nil {
		s.logger.Error().Err(err).Msg("Failed to rewrite group members db")
		return errs.New(errs.ErrServer)
	}

	return nil
}

// Leave removes userID's own membership from groupID. The owner cannot
// leave while the group exists.
func (s *Store) Leave(userID, groupID int) *errs.CustomError {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.findLocked(groupID); ok && g.Owner == username {
		return errs.New(errs.ErrOwnerCannotLeave)
	}

	if !s.isMemberLocked(groupID, username) {
		return errs.New(errs.ErrGroupNotFound)
	}

	members, err := s.readMembers()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read group members db")
		return errs.New(errs.ErrServer)
	}

	remaining := members[:0:0]
	for _, m := range members {
		if m.GroupID == groupID && m.Username == username {
			continue
		}
		remaining = append(remaining, m)
	}

	if err := s.writeMembers(remaining); err != nil {
		s.logger.Error().Err(err).Msg("Failed to rewrite group members db")
		return errs.New(errs.ErrServer)
	}

	return nil
}

// Exists reports whether groupID names a persisted group.
func (s *Store) Exists(groupID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.findLocked(groupID)
	return ok
}

// Name returns the group's name.
func (s *Store) Name(groupID int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.findLocked(groupID)
	return g.Name, ok
}

// IsMember reports whether username belongs to groupID.
func (s *Store) IsMember(groupID int, username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isMemberLocked(groupID, username)
}

// MemberUsernames lists groupID's members without a permission gate; used
// for push fan-out after membership has already been established.
func (s *Store) MemberUsernames(groupID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.readMembers()
	if err != nil {
		return nil
	}

	var result []string
	for _, m := range members {
		if m.GroupID == groupID {
			result = append(result, m.Username)
		}
	}
	return result
}
