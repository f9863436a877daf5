// Package store persists the per-chat configuration documents.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"gatekeeper/model"
)

// ErrClosed is returned once Close has begun; the store accepts no further
// operations while draining.
var ErrClosed = errors.New("config store is closed")

const schema = `CREATE TABLE IF NOT EXISTS chat_configs (
	chat_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (chat_id, key)
);`

// Store is the config document store. Reads of never-written keys return the
// documented default and durably write it back, so every document self-heals.
// Access to one chat's document is serialized by a per-chat lock; different
// chats proceed independently. The lock is never held across a transport call.
type Store struct {
	db *sqlx.DB

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Open connects to the sqlite database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat_configs table: %w", err)
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close blocks new operations and waits for in-flight writes, then closes the
// database. This is a drain, not a rollback.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return s.db.Close()
}

// begin registers an in-flight operation, failing once the store is draining.
func (s *Store) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.wg.Add(1)
	return nil
}

func (s *Store) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.locks[chatID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[chatID] = mu
	}
	return mu
}

// Get returns the stored value for (chatID, key), or the documented default.
// A missing key is written back before returning; a read failure degrades to
// the default rather than propagating.
func (s *Store) Get(chatID, key string) (string, error) {
	def := model.DefaultValue(key)
	if err := s.begin(); err != nil {
		return def, err
	}
	defer s.wg.Done()
	mu := s.chatLock(chatID)
	mu.Lock()
	defer mu.Unlock()

	var value string
	err := s.db.Get(&value, `SELECT value FROM chat_configs WHERE chat_id = ? AND key = ?`, chatID, key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, sql.ErrNoRows):
		if err := s.upsert(chatID, key, def); err != nil {
			return def, err
		}
		return def, nil
	default:
		// A corrupt or unreadable document means defaults, never a failure.
		log.Warn().Err(err).Str("chat", chatID).Str("key", key).Msg("config read failed, using default")
		return def, nil
	}
}

// Set stores a single property of the chat document.
func (s *Store) Set(chatID, key, value string) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.wg.Done()
	mu := s.chatLock(chatID)
	mu.Lock()
	defer mu.Unlock()
	return s.upsert(chatID, key, value)
}

func (s *Store) upsert(chatID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_configs (chat_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (chat_id, key) DO UPDATE SET value = excluded.value`,
		chatID, key, value)
	if err != nil {
		return fmt.Errorf("write config %s/%s: %w", chatID, key, err)
	}
	return nil
}

// GetBool reads a boolean property, treating unparseable values as the
// documented default.
func (s *Store) GetBool(chatID, key string) bool {
	raw, _ := s.Get(chatID, key)
	v, err := strconv.ParseBool(raw)
	if err != nil {
		v, _ = strconv.ParseBool(model.DefaultValue(key))
	}
	return v
}

func (s *Store) SetBool(chatID, key string, value bool) error {
	return s.Set(chatID, key, strconv.FormatBool(value))
}

// GetInt reads an integer property, treating unparseable values as the
// documented default.
func (s *Store) GetInt(chatID, key string) int {
	raw, _ := s.Get(chatID, key)
	v, err := strconv.Atoi(raw)
	if err != nil {
		v, _ = strconv.Atoi(model.DefaultValue(key))
	}
	return v
}

func (s *Store) SetInt(chatID, key string, value int) error {
	return s.Set(chatID, key, strconv.Itoa(value))
}

func (s *Store) GetInt64(chatID, key string) int64 {
	raw, _ := s.Get(chatID, key)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		v, _ = strconv.ParseInt(model.DefaultValue(key), 10, 64)
	}
	return v
}

func (s *Store) SetInt64(chatID, key string, value int64) error {
	return s.Set(chatID, key, strconv.FormatInt(value, 10))
}

// GetStringSlice reads a JSON list property such as the ignore list.
func (s *Store) GetStringSlice(chatID, key string) []string {
	raw, _ := s.Get(chatID, key)
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Warn().Err(err).Str("chat", chatID).Str("key", key).Msg("bad list value, using empty")
		return nil
	}
	return out
}

func (s *Store) SetStringSlice(chatID, key string, value []string) error {
	if value == nil {
		value = []string{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(chatID, key, string(raw))
}

// GetStringMap reads a JSON object property such as the trigger list.
func (s *Store) GetStringMap(chatID, key string) map[string]string {
	raw, _ := s.Get(chatID, key)
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Warn().Err(err).Str("chat", chatID).Str("key", key).Msg("bad map value, using empty")
		return map[string]string{}
	}
	return out
}

func (s *Store) SetStringMap(chatID, key string, value map[string]string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(chatID, key, string(raw))
}

// GetQuestions reads the chat's quiz question bank.
func (s *Store) GetQuestions(chatID string) map[string]model.QuizQuestion {
	raw, _ := s.Get(chatID, model.KeyQuestionList)
	out := make(map[string]model.QuizQuestion)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("bad question bank, using empty")
		return map[string]model.QuizQuestion{}
	}
	return out
}

func (s *Store) SetQuestions(chatID string, questions map[string]model.QuizQuestion) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	return s.Set(chatID, model.KeyQuestionList, string(raw))
}
