/*
Package accounts implements the file-backed user registry (users.db).

One user per line, fields joined by '|':

	id|username|salt|hash|email|active

All reads and mutations serialize through a single mutex. This bounds
throughput but eliminates torn records.
*/
package accounts

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/randx"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 32
	passwordMinLen = 6
	passwordMaxLen = 128
	emailMinLen    = 5
	emailMaxLen    = 96
)

// User is one persisted account record.
type User struct {
	ID       int
	Username string
	Salt     string
	Hash     string
	Email    string
	Active   bool
}

// Store is the account registry. Mutations append to the backing file; the
// id sequence is max existing id + 1.
type Store struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewStore constructs a Store over the given users.db path, creating the
// file if it does not exist yet.
func NewStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open users db %s: %w", path, err)
	}
	f.Close()

	return &Store{
		path:   path,
		logger: logx.Component("accounts"),
	}, nil
}

// IsValidUsername reports whether s satisfies the username rules:
// 3-32 characters from [A-Za-z0-9_].
func IsValidUsername(s string) bool {
	if len(s) < usernameMinLen || len(s) > usernameMaxLen {
		return false
	}
	for _, c := range s {
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
		if !ok {
			return false
		}
	}
	return true
}

// isValidPassword reports whether s satisfies the password rules:
// 6-128 characters, no spaces.
func isValidPassword(s string) bool {
	if len(s) < passwordMinLen || len(s) > passwordMaxLen {
		return false
	}
	return !strings.ContainsRune(s, ' ')
}

// isValidEmail reports whether s is shaped like an email address:
// 5-96 characters, no spaces, an '@' that is not first, and a '.' somewhere
// after the '@' that neither immediately follows it nor ends the string.
func isValidEmail(s string) bool {
	if len(s) < emailMinLen || len(s) > emailMaxLen {
		return false
	}
	if strings.ContainsRune(s, ' ') {
		return false
	}

	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return false
	}

	domain := s[at+1:]
	dot := strings.IndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}

	return true
}

// parseRecord parses one users.db line. Lines that do not carry the full
// field count are skipped by callers (crash tolerance for a torn final line).
func parseRecord(line string) (User, bool) {
	fields := strings.Split(line, "|")
	if len(fields) != 6 {
		return User{}, false
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil || id <= 0 {
		return User{}, false
	}

	active, err := strconv.Atoi(fields[5])
	if err != nil {
		return User{}, false
	}

	return User{
		ID:       id,
		Username: fields[1],
		Salt:     fields[2],
		Hash:     fields[3],
		Email:    fields[4],
		Active:   active == 1,
	}, true
}

// readAll loads every parseable record. Caller must hold s.mu.
func (s *Store) readAll() ([]User, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var users []User
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if u, ok := parseRecord(scanner.Text()); ok {
			users = append(users, u)
		}
	}
	return users, scanner.Err()
}

// Register validates the inputs, assigns the next user id, and appends the
// new record. The stored hash is bcrypt over "salt:password"; the record
// layout stays compatible with any deployed users.db.
func (s *Store) Register(username, password, email string) (int, *errs.CustomError) {
	if !IsValidUsername(username) || !isValidPassword(password) || !isValidEmail(email) {
		return 0, errs.New(errs.ErrInvalidFields)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read users db")
		return 0, errs.New(errs.ErrServer)
	}

	maxID := 0
	for _, u := range users {
		if u.Username == username {
			return 0, errs.New(errs.ErrUsernameExists)
		}
		if u.ID > maxID {
			maxID = u.ID
		}
	}

	salt := randx.SaltHex()
	hashed, err := bcrypt.GenerateFromPassword([]byte(salt+":"+password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		return 0, errs.New(errs.ErrServer)
	}

	nextID := maxID + 1

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to open users db for append")
		return 0, errs.New(errs.ErrServer)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d|%s|%s|%s|%s|%d\n", nextID, username, salt, string(hashed), email, 1); err != nil {
		s.logger.Error().Err(err).Msg("Failed to append user record")
		return 0, errs.New(errs.ErrServer)
	}

	return nextID, nil
}

// Authenticate verifies the credentials against the stored salt and hash and
// confirms the account is active. Every failure kind (unknown user, wrong
// password, inactive account, malformed input) surfaces as invalid
// credentials so login responses do not leak which part failed.
func (s *Store) Authenticate(username, password string) (int, *errs.CustomError) {
	if !IsValidUsername(username) || !isValidPassword(password) {
		return 0, errs.New(errs.ErrInvalidCredentials)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read users db")
		return 0, errs.New(errs.ErrServer)
	}

	for _, u := range users {
		if u.Username != username {
			continue
		}
		if !u.Active {
			return 0, errs.New(errs.ErrInvalidCredentials)
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(u.Salt+":"+password)) != nil {
			return 0, errs.New(errs.ErrInvalidCredentials)
		}
		return u.ID, nil
	}

	return 0, errs.New(errs.ErrInvalidCredentials)
}

// UserID returns the id for username, or -1 when no record matches.
// Inactive accounts still resolve; target-of-operation lookups that must
// exclude them use ActiveUserID.
func (s *Store) UserID(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if err != nil {
		return -1
	}

	for _, u := range users {
		if u.Username == username {
			return u.ID
		}
	}
	return -1
}

// ActiveUserID returns the id for username, or -1 when no active record
// matches. New operations (invites, group adds, message sends) target only
// active accounts.
func (s *Store) ActiveUserID(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if err != nil {
		return -1
	}

	for _, u := range users {
		if u.Username == username && u.Active {
			return u.ID
		}
	}
	return -1
}

// Username returns the username for id. Inactive accounts resolve so that
// history and membership reads keep rendering departed users.
func (s *Store) Username(id int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if err != nil {
		return "", false
	}

	for _, u := range users {
		if u.ID == id {
			return u.Username, true
		}
	}
	return "", false
}
