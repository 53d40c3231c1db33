package quadrant

import (
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"os"
	"path/filepath"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// stable per-device participant identity.
// the file under the user config dir plays the role browser local
// storage plays for a web client.
type Identity struct {
	UserId   Id     `json:"user_id"`
	Username string `json:"username"`
}

func NewIdentity() *Identity {
	return &Identity{
		UserId:   NewId(),
		Username: GenerateUsername(),
	}
}

var usernameAdjectives = []string{
	"amber", "bold", "calm", "deft", "eager", "fuzzy",
	"gentle", "keen", "lively", "mellow", "quick", "vivid",
}

var usernameAnimals = []string{
	"badger", "crane", "dolphin", "falcon", "heron", "lynx",
	"marmot", "otter", "puffin", "raven", "tapir", "wren",
}

func GenerateUsername() string {
	adjective := usernameAdjectives[mathrand.Intn(len(usernameAdjectives))]
	animal := usernameAnimals[mathrand.Intn(len(usernameAnimals))]
	return fmt.Sprintf("%s-%s-%02d", adjective, animal, mathrand.Intn(100))
}

func DefaultIdentityPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "quadrant", "identity.json"), nil
}

// loads the persisted identity, creating and persisting a fresh one on
// first use or when the stored file cannot be parsed
func LoadOrCreateIdentity(path string) (*Identity, error) {
	if identityBytes, err := os.ReadFile(path); err == nil {
		identity := &Identity{}
		if err := json.Unmarshal(identityBytes, identity); err == nil && !identity.UserId.IsZero() {
			return identity, nil
		}
	}

	identity := NewIdentity()
	if err := identity.Save(path); err != nil {
		return nil, err
	}
	return identity, nil
}

func (self *Identity) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	identityBytes, err := json.Marshal(self)
	if err != nil {
		return err
	}
	return os.WriteFile(path, identityBytes, 0600)
}

// extracts an identity from a token minted by an embedding page.
// the claims are read without verification; nothing here grants access,
// the token only seeds the id and display name.
func ParseParticipantTokenUnverified(token string) (*Identity, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := parsed.Claims.(gojwt.MapClaims)

	identity := &Identity{}

	if userIdStr, ok := claims["user_id"].(string); ok {
		if userId, err := ParseId(userIdStr); err == nil {
			identity.UserId = userId
		}
	}
	if username, ok := claims["display_name"].(string); ok {
		identity.Username = username
	}

	if identity.UserId.IsZero() {
		return nil, fmt.Errorf("participant token missing user_id")
	}
	if identity.Username == "" {
		identity.Username = GenerateUsername()
	}
	return identity, nil
}
