package metabase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fernet/fernet-go"
)

// sessionFile is the session-id cache under the data dir. Metabase sessions
// stay valid for up to 14 days server-side, so reusing one across daily runs
// avoids a login per run.
const sessionFile = ".metabase.session"

type sessionCache struct {
	path string
}

func newSessionCache(dataDir string) *sessionCache {
	return &sessionCache{path: filepath.Join(dataDir, sessionFile)}
}

func (c *sessionCache) read() string {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *sessionCache) write(sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.path, []byte(sessionID), 0o600)
}

// decrypt recovers a Fernet-encrypted credential with the configured key.
func decrypt(secretKey, encrypted string) (string, error) {
	keys, err := fernet.DecodeKeys(secretKey)
	if err != nil {
		return "", fmt.Errorf("invalid secret key: %w", err)
	}
	plain := fernet.VerifyAndDecrypt([]byte(encrypted), 0, keys)
	if plain == nil {
		return "", fmt.Errorf("credential decryption failed")
	}
	return string(plain), nil
}
