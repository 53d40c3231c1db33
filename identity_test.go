package quadrant

import (
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestIdentityPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quadrant", "identity.json")

	identity, err := LoadOrCreateIdentity(path)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, identity.UserId, Id{})
	assert.NotEqual(t, identity.Username, "")

	// same identity on the next load
	identity2, err := LoadOrCreateIdentity(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, identity.UserId, identity2.UserId)
	assert.Equal(t, identity.Username, identity2.Username)
}

func TestIdentityCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	identity := &Identity{}
	assert.Equal(t, identity.Save(path), nil)

	// a stored identity without an id is regenerated, not returned
	identity2, err := LoadOrCreateIdentity(path)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, identity2.UserId, Id{})
}

func TestParseParticipantToken(t *testing.T) {
	userId := NewId()

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id":      userId.String(),
		"display_name": "pat",
	}).SignedString([]byte("test"))
	assert.Equal(t, err, nil)

	identity, err := ParseParticipantTokenUnverified(token)
	assert.Equal(t, err, nil)
	assert.Equal(t, userId, identity.UserId)
	assert.Equal(t, "pat", identity.Username)

	// a token without a user id is rejected
	token, err = gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"display_name": "pat",
	}).SignedString([]byte("test"))
	assert.Equal(t, err, nil)
	_, err = ParseParticipantTokenUnverified(token)
	assert.NotEqual(t, err, nil)

	_, err = ParseParticipantTokenUnverified("not a token")
	assert.NotEqual(t, err, nil)
}

func TestGenerateUsername(t *testing.T) {
	for i := 0; i < 100; i += 1 {
		assert.NotEqual(t, GenerateUsername(), "")
	}
}
