package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
)

func TestSessionTableLogin(t *testing.T) {
	tbl := NewSessionTable(0)

	s, err := tbl.Login(1, "alice")
	require.NoError(t, err)
	assert.Equal(t, StateSelectingChatroom, s.State)
	assert.Equal(t, "alice", tbl.Username(1))
	assert.Equal(t, 1, tbl.Len())

	id, ok := tbl.Lookup("alice")
	assert.True(t, ok)
	assert.EqualValues(t, 1, id)
}

func TestSessionTableRejects(t *testing.T) {
	tbl := NewSessionTable(DefaultMaxUsernameLen)
	_, err := tbl.Login(1, "alice")
	require.NoError(t, err)

	cases := []struct {
		name     string
		id       uint64
		username string
		want     error
	}{
		{"empty", 2, "", merr.ErrUsernameEmpty},
		{"too long", 2, strings.Repeat("a", 26), merr.ErrUsernameTooLong},
		{"taken", 2, "alice", merr.ErrUsernameTaken},
		{"case sensitive is not taken", 3, "Alice", nil},
		{"already logged in", 1, "bob", merr.ErrAlreadyLoggedIn},
		{"runes not bytes", 4, strings.Repeat("é", 25), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tbl.Login(tc.id, tc.username)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSessionTableDiscardFreesName(t *testing.T) {
	tbl := NewSessionTable(0)
	_, err := tbl.Login(1, "alice")
	require.NoError(t, err)

	s, err := tbl.Discard(1)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Username)
	assert.Zero(t, tbl.Len())

	_, err = tbl.Discard(1)
	assert.ErrorIs(t, err, merr.ErrSessionNotFound)

	_, err = tbl.Login(2, "alice")
	assert.NoError(t, err)
}

func TestSessionTableUniqueness(t *testing.T) {
	tbl := NewSessionTable(0)
	names := []string{"a", "b", "a", "c", "b", "a"}
	for i, name := range names {
		_, _ = tbl.Login(uint64(i+1), name)
	}
	seen := map[string]bool{}
	for id := uint64(1); id <= uint64(len(names)); id++ {
		s, ok := tbl.Get(id)
		if !ok {
			continue
		}
		assert.False(t, seen[s.Username], s.Username)
		seen[s.Username] = true
	}
	assert.Equal(t, 3, tbl.Len())
}
