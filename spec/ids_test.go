package spec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserID(t *testing.T) {
	u, err := NewUserID("@alice:example.com:8448")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Local())
	assert.Equal(t, ServerName("example.com:8448"), u.Domain())
	assert.Equal(t, "@alice:example.com:8448", u.String())

	for _, bad := range []string{"", "alice:example.com", "@alice", "@:example.com", "@al ice:example.com", "@alice:exa_mple.com"} {
		_, err := NewUserID(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewRoomID(t *testing.T) {
	r, err := NewRoomID("!abc:example.com")
	require.NoError(t, err)
	assert.Equal(t, "abc", r.OpaqueID())
	assert.Equal(t, ServerName("example.com"), r.Domain())

	v12, err := NewRoomID("!31hneApxJ_1o-63DmFrpeqnkFfWppnzWso1JvH3ogLM")
	require.NoError(t, err)
	assert.Equal(t, ServerName(""), v12.Domain())

	for _, bad := range []string{"", "!", "abc:example.com", "!abc:"} {
		_, err := NewRoomID(bad)
		assert.Error(t, err, bad)
	}
}

func TestServerNameValid(t *testing.T) {
	for name, want := range map[ServerName]bool{
		"example.com":      true,
		"example.com:8448": true,
		"1.2.3.4":          true,
		"[::1]:8448":       true,
		"[::1]":            true,
		"[nope]":           false,
		"":                 false,
		"exa mple.com":     false,
	} {
		assert.Equal(t, want, name.Valid(), name)
	}
}

func TestIDsJSON(t *testing.T) {
	var v struct {
		User UserID `json:"user"`
		Room RoomID `json:"room"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"user":"@a:b.c","room":"!r:b.c"}`), &v))
	assert.Equal(t, "b.c", string(v.User.Domain()))
	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"@a:b.c","room":"!r:b.c"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"user":"nope"}`), &v))
}

func TestWidgetError(t *testing.T) {
	var res ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(`{"error":{"message":"Failed","matrix_api_error":{"http_status":403,"errcode":"M_FORBIDDEN","error":"No"}}}`), &res))
	assert.EqualError(t, res.Error, "Failed (M_FORBIDDEN: No)")
	assert.EqualError(t, NewErrorResponse("Unknown action: %s", "x").Error, "Unknown action: x")
}

func TestRawJSONNull(t *testing.T) {
	out, err := json.Marshal(struct {
		Data RawJSON `json:"data"`
	}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":null}`, string(out))
	assert.JSONEq(t, `{"a":1}`, string(MustMarshal(map[string]int{"a": 1})))
}
