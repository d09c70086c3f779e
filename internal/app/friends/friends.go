/*
Package friends implements the file-backed friendship store (friends.db).

One directed edge per line, fields joined by '|':

	from_username|to_username|STATUS|timestamp

STATUS is PENDING or ACCEPTED; a rejected or deleted edge is removed
entirely. Once ACCEPTED the relation is symmetric: either direction
satisfies "is friend of". Mutations rewrite through a sibling .tmp file and
an atomic rename.
*/
package friends

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

// Edge statuses as persisted.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
)

// edge is one persisted friendship record.
type edge struct {
	From   string
	To     string
	Status string
	TS     int64
}

// Store is the friendship registry. It resolves usernames through the
// account store and serializes all file access under its own mutex.
type Store struct {
	path     string
	accounts *accounts.Store
	mu       sync.Mutex
	logger   zerolog.Logger
}

// NewStore constructs a Store over the given friends.db path.
func NewStore(path string, accountStore *accounts.Store) *Store {
	return &Store{
		path:     path,
		accounts: accountStore,
		logger:   logx.Component("friends"),
	}
}

// readEdges loads every parseable edge. A missing file is an empty store.
// Caller must hold s.mu.
func (s *Store) readEdges() ([]edge, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var edges []edge
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "|")
		if len(fields) != 4 {
			continue
		}
		ts, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			continue
		}
		edges = append(edges, edge{From: fields[0], To: fields[1], Status: fields[2], TS: ts})
	}
	return edges, scanner.Err()
}

// writeEdges rewrites the whole file via tmp+rename. Caller must hold s.mu.
func (s *Store) writeEdges(edges []edge) error {
	tmp := s.path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, e := range edges {
		fmt.Fprintf(w, "%s|%s|%s|%d\n", e.From, e.To, e.Status, e.TS)
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

	return os.Rename(tmp, s.path)
}

// Invite creates a PENDING edge from the caller towards toUsername.
// Any PENDING or ACCEPTED edge between the pair, in either direction,
// blocks a new invite.
func (s *Store) Invite(fromID int, toUsername string) *errs.CustomError {
	fromUsername, ok := s.accounts.Username(fromID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	if fromUsername == toUsername {
		return errs.New(errs.ErrCannotInviteSelf)
	}

	if s.accounts.ActiveUserID(toUsername) < 0 {
		return errs.New(errs.ErrUserNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.readEdges()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read friends db")
		return errs.New(errs.ErrServer)
	}

	for _, e := range edges {
		samePair := (e.From == fromUsername && e.To == toUsername) ||
			(e.From == toUsername && e.To == fromUsername)
		if samePair && (e.Status == StatusPending || e.Status == StatusAccepted) {
			return errs.New(errs.ErrAlreadyFriendOrPending)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open friends db for append")
		return errs.New(errs.ErrServer)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s|%s|%s|%d\n", fromUsername, toUsername, StatusPending, time.Now().Unix()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append friend edge")
		return errs.New(errs.ErrServer)
	}

	return nil
}

// Accept promotes the PENDING edge fromUsername -> caller to ACCEPTED with a
// refreshed timestamp. The match is strict on that direction.
func (s *Store) Accept(toID int, fromUsername string) *errs.CustomError {
	toUsername, ok := s.accounts.Username(toID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	if toUsername == fromUsername {
		return errs.New(errs.ErrCannotAcceptSelf)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.readEdges()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read friends db")
		return errs.New(errs.ErrServer)
	}

	for i, e := range edges {
		samePair := (e.From == fromUsername && e.To == toUsername) ||
			(e.From == toUsername && e.To == fromUsername)
		if samePair && e.Status == StatusAccepted {
			return errs.New(errs.ErrAlreadyFriends)
		}

		if e.From == fromUsername && e.To == toUsername && e.Status == StatusPending {
			edges[i].Status = StatusAccepted
			edges[i].TS = time.Now().Unix()
			if err := s.writeEdges(edges); err != nil {
				s.logger.Error().Err(err).Msg("Failed to rewrite friends db")
				return errs.New(errs.ErrServer)
			}
			return nil
		}
	}

	return errs.New(errs.ErrInviteNotFound)
}

// Reject removes the PENDING edge fromUsername -> caller entirely.
func (s *Store) Reject(toID int, fromUsername string) *errs.CustomError {
	toUsername, ok := s.accounts.Username(toID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	if toUsername == fromUsername {
		return errs.New(errs.ErrCannotRejectSelf)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.readEdges()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read friends db")
		return errs.New(errs.ErrServer)
	}

	for i, e := range edges {
		if e.From == fromUsername && e.To == toUsername && e.Status == StatusPending {
			remaining := append(append([]edge{}, edges[:i]...), edges[i+1:]...)
			if err := s.writeEdges(remaining); err != nil {
				s.logger.Error().Err(err).Msg("Failed to rewrite friends db")
				return errs.New(errs.ErrServer)
			}
			return nil
		}
	}

	return errs.New(errs.ErrInviteNotFound)
}

// Pending lists the usernames with a PENDING invite towards userID.
func (s *Store) Pending(userID int) ([]string, *errs.CustomError) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return nil, errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.readEdges()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read friends db")
		return nil, errs.New(errs.ErrServer)
	}

	var pending []string
	for _, e := range edges {
		if e.To == username && e.Status == StatusPending {
			pending = append(pending, e.From)
		}
	}
	return pending, nil
}

// Friends lists the usernames joined across all ACCEPTED edges touching
// userID in either direction.
func (s *Store) Friends(userID int) ([]string, *errs.CustomError) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return nil, errs.New(errs.ErrServer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.readEdges()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read friends db")
		return nil, errs.New(errs.ErrServer)
	}

	var result []string
	for _, e := range edges {
		if e.Status != StatusAccepted {
			continue
		}
		switch username {
		case e.From:
			result = append(result, e.To)
		case e.To:
			result = append(result, e.From)
		}
	}
	return result, nil
}

// Delete removes the ACCEPTED edge between the caller and otherUsername,
// whichever direction it points.
func (s *Store) Delete(userID int, otherUsername string) *errs.CustomError {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return errs.New(errs.ErrServer)
	}

	if username == otherUsername {
		return errs.New(errs.ErrCannotDeleteSelf)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.readEdges()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read friends db")
		return errs.New(errs.ErrServer)
	}

	for i, e := range edges {
		samePair := (e.From == username && e.To == otherUsername) ||
			(e.From == otherUsername && e.To == username)
		if samePair && e.Status == StatusAccepted {
			remaining := append(append([]edge{}, edges[:i]...), edges[i+1:]...)
			if err := s.writeEdges(remaining); err != nil {
				s.logger.Error().Err(err).Msg("Failed to rewrite friends db")
				return errs.New(errs.ErrServer)
			}
			return nil
		}
	}

	return errs.New(errs.ErrFriendNotFound)
}
