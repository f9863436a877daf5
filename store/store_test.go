package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetReturnsDefaultAndHealsDocument(t *testing.T) {
	s := openTestStore(t)

	v, err := s.Get("g1", model.KeyCaptchaTime)
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	// The default was written back, not just returned.
	var stored string
	err = s.db.Get(&stored, `SELECT value FROM chat_configs WHERE chat_id = ? AND key = ?`,
		"g1", model.KeyCaptchaTime)
	require.NoError(t, err)
	assert.Equal(t, "5", stored)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set("g1", model.KeyLanguage, "ES"))
	v, err := s.Get("g1", model.KeyLanguage)
	require.NoError(t, err)
	assert.Equal(t, "ES", v)

	require.NoError(t, s.Set("g1", model.KeyLanguage, "EN"))
	v, _ = s.Get("g1", model.KeyLanguage)
	assert.Equal(t, "EN", v)
}

func TestChatsAreIsolated(t *testing.T) {
	s := openTestStore(t)

	s.SetInt("g1", model.KeyCaptchaTime, 10)
	assert.Equal(t, 10, s.GetInt("g1", model.KeyCaptchaTime))
	assert.Equal(t, 5, s.GetInt("g2", model.KeyCaptchaTime))
}

func TestTypedAccessorsFallBackOnGarbage(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set("g1", model.KeyEnabled, "not-a-bool"))
	assert.True(t, s.GetBool("g1", model.KeyEnabled))

	require.NoError(t, s.Set("g1", model.KeyCaptchaDifficulty, "banana"))
	assert.Equal(t, 2, s.GetInt("g1", model.KeyCaptchaDifficulty))
}

func TestStringSliceRoundTrip(t *testing.T) {
	s := openTestStore(t)

	assert.Empty(t, s.GetStringSlice("g1", model.KeyIgnoreList))

	require.NoError(t, s.SetStringSlice("g1", model.KeyIgnoreList, []string{"u1", "u2"}))
	assert.Equal(t, []string{"u1", "u2"}, s.GetStringSlice("g1", model.KeyIgnoreList))

	require.NoError(t, s.SetStringSlice("g1", model.KeyIgnoreList, nil))
	assert.Empty(t, s.GetStringSlice("g1", model.KeyIgnoreList))
}

func TestStringMapRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetStringMap("g1", model.KeyTriggerList, map[string]string{"rules": "be kind"}))
	m := s.GetStringMap("g1", model.KeyTriggerList)
	assert.Equal(t, "be kind", m["rules"])
}

func TestQuestionsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	bank := map[string]model.QuizQuestion{
		"capital": {Prompt: "capital", Answer: "Paris", Wrongs: []string{"Rome", "Lima"}},
	}
	require.NoError(t, s.SetQuestions("g1", bank))

	got := s.GetQuestions("g1")
	require.Contains(t, got, "capital")
	assert.Equal(t, "Paris", got["capital"].Answer)
	assert.Len(t, got["capital"].Wrongs, 2)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set("g1", model.KeyLanguage, "EN"), ErrClosed)
	v, err := s.Get("g1", model.KeyLanguage)
	assert.ErrorIs(t, err, ErrClosed)
	// Even closed, reads degrade to the default.
	assert.Equal(t, "EN", v)
}
