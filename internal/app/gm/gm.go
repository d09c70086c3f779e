/*
Package gm implements the file-backed group message store.

Each group owns one append-only log at gm/<group_id>, one record per line:

	msg_id|from_id|payload|ts

The id counter is recovered at startup by scanning every log for the highest
persisted id. Send and history are gated on group membership.
*/
package gm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/accounts"
	"linechat/internal/app/groups"
	"linechat/internal/app/pm"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
)

// Message is one persisted group message record.
type Message struct {
	ID      int
	FromID  int
	Payload string
	TS      int64
}

// Store is the group message store. All operations serialize under a single
// mutex, which also guards the id counter.
type Store struct {
	dir      string
	accounts *accounts.Store
	groups   *groups.Store
	mu       sync.Mutex
	nextID   int
	logger   zerolog.Logger
}

// NewStore constructs a Store over the given gm directory, creating it and
// recovering the id counter from the highest persisted message id.
func NewStore(dir string, accountStore *accounts.Store, groupStore *groups.Store) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create gm dir %s: %w", dir, err)
	}

	s := &Store{
		dir:      dir,
		accounts: accountStore,
		groups:   groupStore,
		nextID:   1,
		logger:   logx.Component("gm"),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan gm dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		msgs, err := s.readLog(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.ID >= s.nextID {
				s.nextID = m.ID + 1
			}
		}
	}

	return s, nil
}

// logPath returns the conversation file for groupID.
func (s *Store) logPath(groupID int) string {
	return filepath.Join(s.dir, strconv.Itoa(groupID))
}

// parseRecord parses one log line. Torn trailing lines fail the field count
// and are skipped.
func parseRecord(line string) (Message, bool) {
	fields := strings.Split(line, "|")
	if len(fields) != 4 {
		return Message{}, false
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil || id <= 0 {
		return Message{}, false
	}
	fromID, err := strconv.Atoi(fields[1])
	if err != nil {
		return Message{}, false
	}
	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Message{}, false
	}

	return Message{ID: id, FromID: fromID, Payload: fields[2], TS: ts}, true
}

// readLog loads every parseable record of one group log. A missing file is
// an empty conversation.
func (s *Store) readLog(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var msgs []Message
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m, ok := parseRecord(scanner.Text()); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, scanner.Err()
}

// Send appends a message from fromID to groupID's log and returns the new
// message id and its timestamp. The group must exist and the sender must be
// a member. Push fan-out is the caller's responsibility.
func (s *Store) Send(fromID, groupID int, payload string) (int, int64, *errs.CustomError) {
	if !pm.ValidPayload(payload) {
		return 0, 0, errs.New(errs.ErrInvalidFields)
	}

	if !s.groups.Exists(groupID) {
		return 0, 0, errs.New(errs.ErrGroupNotFound)
	}

	username, ok := s.accounts.Username(fromID)
	if !ok {
		return 0, 0, errs.New(errs.ErrServer)
	}
	if !s.groups.IsMember(groupID, username) {
		return 0, 0, errs.New(errs.ErrNotGroupMember)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.logPath(groupID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open group log")
		return 0, 0, errs.New(errs.ErrServer)
	}
	defer f.Close()

	msgID := s.nextID
	ts := time.Now().Unix()
	if _, err := fmt.Fprintf(f, "%d|%d|%s|%d\n", msgID, fromID, payload, ts); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append group message record")
		return 0, 0, errs.New(errs.ErrServer)
	}
	s.nextID++

	return msgID, ts, nil
}

// History returns up to limit messages of groupID's conversation, most
// recent first. The caller must be a member. limit semantics match the
// private message store.
func (s *Store) History(viewerID, groupID, limit int) ([]Message, *errs.CustomError) {
	if !s.groups.Exists(groupID) {
		return nil, errs.New(errs.ErrGroupNotFound)
	}

	username, ok := s.accounts.Username(viewerID)
	if !ok {
		return nil, errs.New(errs.ErrServer)
	}
	if !s.groups.IsMember(groupID, username) {
		return nil, errs.New(errs.ErrNotGroupMember)
	}

	if limit == 0 {
		limit = pm.HistoryDefaultLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > pm.HistoryMaxLimit {
		limit = pm.HistoryMaxLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.readLog(s.logPath(groupID))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read group log")
		return nil, errs.New(errs.ErrServer)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}
