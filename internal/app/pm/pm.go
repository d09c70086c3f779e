/*
Package pm implements the file-backed private message store.

Each unordered user pair {a, b} with a < b owns one append-only log at
pm/<a>_<b>, one record per line:

	msg_id|from_id|payload|ts|read_flag

Message ids come from a process-wide counter persisted to pm/.msg_id after
every allocation, so ids stay unique across restarts. The read flag is 1
once the recipient has marked the record read.
*/
package pm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/app/accounts"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
)

const (
	// HistoryDefaultLimit applies when the client omits the limit.
	HistoryDefaultLimit = 50

	// HistoryMaxLimit caps any requested history length.
	HistoryMaxLimit = 100

	counterFile = ".msg_id"
)

// Message is one persisted private message record.
type Message struct {
	ID      int
	FromID  int
	Payload string
	TS      int64
	Read    bool
}

// Conversation summarizes one counterpart and the number of their messages
// the viewer has not read yet.
type Conversation struct {
	OtherID int
	Unread  int
}

// Store is the private message store. All operations serialize under a
// single mutex, which also guards the id counter.
type Store struct {
	dir      string
	accounts *accounts.Store
	mu       sync.Mutex
	nextID   int
	logger   zerolog.Logger
}

// NewStore constructs a Store over the given pm directory, creating it and
// loading the persisted id counter.
func NewStore(dir string, accountStore *accounts.Store) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pm dir %s: %w", dir, err)
	}

	s := &Store{
		dir:      dir,
		accounts: accountStore,
		nextID:   1,
		logger:   logx.Component("pm"),
	}

	data, err := os.ReadFile(filepath.Join(dir, counterFile))
	if err == nil {
		if n, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && n > 0 {
			s.nextID = n
		}
	}

	return s, nil
}

// ValidPayload reports whether payload is safe for the line protocol and the
// on-disk record separator: non-empty, no '|', space, CR, or LF.
func ValidPayload(payload string) bool {
	return payload != "" && !strings.ContainsAny(payload, "| \r\n")
}

// logPath returns the conversation file for the unordered pair {a, b}.
func (s *Store) logPath(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return filepath.Join(s.dir, fmt.Sprintf("%d_%d", a, b))
}

// saveCounterLocked persists the next unallocated id. Caller must hold s.mu.
func (s *Store) saveCounterLocked() {
	path := filepath.Join(s.dir, counterFile)
	if err := os.WriteFile(path, []byte(strconv.Itoa(s.nextID)), 0o644); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist pm message counter")
	}
}

// parseRecord parses one log line. Torn trailing lines fail the field count
// and are skipped.
func parseRecord(line string) (Message, bool) {
	fields := strings.Split(line, "|")
	if len(fields) != 5 {
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
	readFlag, err := strconv.Atoi(fields[4])
	if err != nil {
		return Message{}, false
	}

	return Message{ID: id, FromID: fromID, Payload: fields[2], TS: ts, Read: readFlag == 1}, true
}

// readLog loads every parseable record of one conversation file. A missing
// file is an empty conversation. Caller must hold s.mu.
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

// Send appends a message from fromID to toUsername and returns the new
// message id and its timestamp. Push delivery is the caller's
// responsibility.
func (s *Store) Send(fromID int, toUsername, payload string) (int, int64, *errs.CustomError) {
	fromUsername, ok := s.accounts.Username(fromID)
	if !ok {
		return 0, 0, errs.New(errs.ErrServer)
	}

	if fromUsername == toUsername {
		return 0, 0, errs.New(errs.ErrCannotSendToSelf)
	}

	if !ValidPayload(payload) {
		return 0, 0, errs.New(errs.ErrInvalidFields)
	}

	toID := s.accounts.ActiveUserID(toUsername)
	if toID < 0 {
		return 0, 0, errs.New(errs.ErrUserNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.logPath(fromID, toID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open conversation log")
		return 0, 0, errs.New(errs.ErrServer)
	}
	defer f.Close()

	msgID := s.nextID
	ts := time.Now().Unix()
	if _, err := fmt.Fprintf(f, "%d|%d|%s|%d|0\n", msgID, fromID, payload, ts); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append message record")
		return 0, 0, errs.New(errs.ErrServer)
	}

	s.nextID++
	s.saveCounterLocked()

	return msgID, ts, nil
}

// History returns up to limit messages between viewerID and otherUsername,
// most recent first. limit is clamped to [1, HistoryMaxLimit]; 0 selects
// HistoryDefaultLimit. A conversation that never happened is empty, not an
// error.
func (s *Store) History(viewerID int, otherUsername string, limit int) ([]Message, *errs.CustomError) {
	otherID := s.accounts.UserID(otherUsername)
	if otherID < 0 {
		return nil, errs.New(errs.ErrUserNotFound)
	}

	if limit == 0 {
		limit = HistoryDefaultLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > HistoryMaxLimit {
		limit = HistoryMaxLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.readLog(s.logPath(viewerID, otherID))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read conversation log")
		return nil, errs.New(errs.ErrServer)
	}

	// Records are persisted oldest first; reverse and truncate.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Conversations enumerates every counterpart userID has a log with, plus the
// count of their unread messages, ordered by counterpart id.
func (s *Store) Conversations(userID int) ([]Conversation, *errs.CustomError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enumerate pm dir")
		return nil, errs.New(errs.ErrServer)
	}

	var result []Conversation
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		a, b, ok := parsePairName(entry.Name())
		if !ok {
			continue
		}

		var otherID int
		switch userID {
		case a:
			otherID = b
		case b:
			otherID = a
		default:
			continue
		}

		msgs, err := s.readLog(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}

		unread := 0
		for _, m := range msgs {
			if m.FromID == otherID && !m.Read {
				unread++
			}
		}
		result = append(result, Conversation{OtherID: otherID, Unread: unread})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].OtherID < result[j].OtherID })
	return result, nil
}

// parsePairName splits a conversation filename "<a>_<b>" into its user ids.
func parsePairName(name string) (int, int, bool) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil || a <= 0 {
		return 0, 0, false
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil || b <= 0 {
		return 0, 0, false
	}
	return a, b, true
}

// MarkRead sets the read flag on every record otherUsername sent to
// viewerID. Re-running is idempotent; a missing conversation is a no-op.
func (s *Store) MarkRead(viewerID int, otherUsername string) *errs.CustomError {
	otherID := s.accounts.UserID(otherUsername)
	if otherID < 0 {
		return errs.New(errs.ErrUserNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.logPath(viewerID, otherID)
	msgs, err := s.readLog(path)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read conversation log")
		return errs.New(errs.ErrServer)
	}
	if msgs == nil {
		return nil
	}

	for i := range msgs {
		if msgs[i].FromID == otherID {
			msgs[i].Read = true
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create tmp conversation log")
		return errs.New(errs.ErrServer)
	}

	w := bufio.NewWriter(f)
	for _, m := range msgs {
		read := 0
		if m.Read {
			read = 1
		}
		fmt.Fprintf(w, "%d|%d|%s|%d|%d\n", m.ID, m.FromID, m.Payload, m.TS, read)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		s.logger.Error().Err(err).Msg("Failed to write tmp conversation log")
		return errs.New(errs.ErrServer)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		s.logger.Error().Err(err).Msg("Failed to close tmp conversation log")
		return errs.New(errs.ErrServer)
	}

	if err := os.Rename(tmp, path); err != nil {
		s.logger.Error().Err(err).Msg("Failed to replace conversation log")
		return errs.New(errs.ErrServer)
	}

	return nil
}
