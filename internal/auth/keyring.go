package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/rolecraft/turneval/internal/model"
)

// ErrInvalidCredentials is returned for an unknown client or a wrong key.
// Callers must not reveal which of the two it was.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrClientRevoked is returned for a validly signed token whose client is no
// longer configured, or whose role has changed since issue.
var ErrClientRevoked = errors.New("auth: client revoked")

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// subjectNamespace scopes the UUIDs derived from client IDs.
var subjectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://turneval.dev/clients"))

// Client is an API client allowed to request tokens.
type Client struct {
	ID   string
	Role model.ClientRole
}

// Subject returns the stable UUID used as the JWT subject for the client.
func (c Client) Subject() uuid.UUID {
	return uuid.NewSHA1(subjectNamespace, []byte(c.ID))
}

// ClientKey is a configured client with its plaintext API key.
type ClientKey struct {
	Client
	APIKey string
}

// ParseClientKeys parses "client_id:role:api_key" entries separated by commas.
func ParseClientKeys(list string) ([]ClientKey, error) {
	var out []ClientKey
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			return nil, fmt.Errorf("auth: client key entry must be client_id:role:api_key")
		}
		if err := model.ValidateClientID(parts[0]); err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		role, err := model.ParseClientRole(parts[1])
		if err != nil {
			return nil, fmt.Errorf("auth: client %s: %w", parts[0], err)
		}
		out = append(out, ClientKey{Client: Client{ID: parts[0], Role: role}, APIKey: parts[2]})
	}
	return out, nil
}

// Keyring verifies client API keys against Argon2id hashes computed at startup.
// It is read-only after construction and safe for concurrent use.
type Keyring struct {
	clients map[string]hashedClient
}

type hashedClient struct {
	client Client
	hash   string
}

// NewKeyring hashes every key. Duplicate client IDs are rejected.
func NewKeyring(keys []ClientKey) (*Keyring, error) {
	k := &Keyring{clients: make(map[string]hashedClient, len(keys))}
	for _, ck := range keys {
		if _, dup := k.clients[ck.ID]; dup {
			return nil, fmt.Errorf("auth: duplicate client %q", ck.ID)
		}
		h, err := HashAPIKey(ck.APIKey)
		if err != nil {
			return nil, err
		}
		k.clients[ck.ID] = hashedClient{client: ck.Client, hash: h}
	}
	return k, nil
}

// Len returns the number of configured clients.
func (k *Keyring) Len() int {
	return len(k.clients)
}

// Authenticate returns the client for a valid ID and key.
func (k *Keyring) Authenticate(clientID, apiKey string) (Client, error) {
	hc, ok := k.clients[clientID]
	if !ok {
		DummyVerify()
		return Client{}, ErrInvalidCredentials
	}
	valid, err := VerifyAPIKey(apiKey, hc.hash)
	if err != nil {
		return Client{}, err
	}
	if !valid {
		return Client{}, ErrInvalidCredentials
	}
	return hc.client, nil
}

// Admit checks validated claims against the current client set. With
// persistent signing keys a token outlives a config change, so a client
// removed from TURNEVAL_API_KEYS, or given a different role, is refused
// until it requests a new token.
func (k *Keyring) Admit(claims *Claims) error {
	hc, ok := k.clients[claims.ClientID]
	if !ok || hc.client.Subject().String() != claims.Subject {
		return ErrClientRevoked
	}
	if hc.client.Role != claims.Role {
		return fmt.Errorf("%w: role is now %s", ErrClientRevoked, hc.client.Role)
	}
	return nil
}

// HashAPIKey hashes an API key using Argon2id.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(hash), nil
}

// DummyVerify performs an Argon2id hash with the same cost parameters as real
// verification, so that response timing does not reveal whether a client_id exists.
func DummyVerify() {
	argon2.IDKey([]byte("dummy"), make([]byte, saltLen), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyAPIKey checks an API key against an Argon2id hash.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	saltB64, hashB64, ok := strings.Cut(encoded, "$")
	if !ok {
		return false, fmt.Errorf("auth: invalid hash format")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	expected, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}
	computed := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}
