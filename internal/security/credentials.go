package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"kpisync/internal/common"
)

const (
	// Keyring service name
	keyringService = "kpisync"
	// Salt for key derivation
	saltSize = 32
	// Number of iterations for PBKDF2
	pbkdf2Iterations = 100000
	// Key size for AES-256
	keySize = 32

	// DefaultEntry holds the service account key used by the Sheets client.
	DefaultEntry = "service-account"
)

// ErrNotFound is returned when no credential is stored under a name.
var ErrNotFound = errors.New("credential not found")

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// CredentialStore keeps secrets in the OS keyring, or in AES-GCM encrypted
// files under dir when no keyring is available.
type CredentialStore struct {
	useKeyring bool
	dir        string
	masterKey  []byte
}

type credentialFile struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewCredentialStore picks the keyring when the platform has one. Setting
// KPISYNC_USE_KEYCHAIN=false forces encrypted file storage in ~/.kpisync/credentials.
func NewCredentialStore() (*CredentialStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".kpisync", "credentials")

	if isKeyringAvailable() {
		return &CredentialStore{useKeyring: true, dir: dir}, nil
	}
	return NewFileStore(dir)
}

// NewKeyringStore stores secrets in the OS keyring and keeps the name index in dir.
func NewKeyringStore(dir string) *CredentialStore {
	return &CredentialStore{useKeyring: true, dir: dir}
}

// NewFileStore stores encrypted secrets in dir, creating its master key on first use.
func NewFileStore(dir string) (*CredentialStore, error) {
	cs := &CredentialStore{dir: dir}
	key, err := cs.getMasterKey()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize master key: %w", err)
	}
	cs.masterKey = key
	return cs, nil
}

// UsesKeyring reports whether secrets go to the OS keyring.
func (cs *CredentialStore) UsesKeyring() bool {
	return cs.useKeyring
}

// Set stores value under name, replacing any previous value.
func (cs *CredentialStore) Set(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}

	if cs.useKeyring {
		if err := keyring.Set(keyringService, name, value); err != nil {
			return fmt.Errorf("failed to store in keyring: %w", err)
		}
		return cs.updateIndex(name, true)
	}

	encrypted, err := cs.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return cs.saveFile(name, &credentialFile{Name: name, Value: encrypted})
}

// Get returns the value stored under name, or ErrNotFound.
func (cs *CredentialStore) Get(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	if cs.useKeyring {
		value, err := keyring.Get(keyringService, name)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return "", fmt.Errorf("failed to get from keyring: %w", err)
		}
		return value, nil
	}

	cred, err := cs.loadFile(name)
	if err != nil {
		return "", err
	}
	value, err := cs.decrypt(cred.Value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return value, nil
}

// Delete removes name. Deleting a missing credential returns ErrNotFound.
func (cs *CredentialStore) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	if cs.useKeyring {
		err := keyring.Delete(keyringService, name)
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return fmt.Errorf("failed to delete from keyring: %w", err)
		}
		return cs.updateIndex(name, false)
	}

	path, err := common.ValidatePath(cs.credentialPath(name), cs.dir)
	if err != nil {
		return fmt.Errorf("invalid credential file path: %w", err)
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return nil
}

// List returns the stored credential names, sorted.
func (cs *CredentialStore) List() ([]string, error) {
	if cs.useKeyring {
		// Keyring doesn't support listing, so we maintain a separate index
		return cs.readIndex()
	}

	entries, err := os.ReadDir(cs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".cred" {
			names = append(names, entry.Name()[:len(entry.Name())-len(".cred")])
		}
	}
	sort.Strings(names)
	return names, nil
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid credential name %q", name)
	}
	return nil
}

// Encryption methods

func (cs *CredentialStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(cs.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (cs *CredentialStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(cs.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, encryptedData := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Helper methods

func (cs *CredentialStore) getMasterKey() ([]byte, error) {
	keyPath, err := common.ValidatePath(filepath.Join(cs.dir, ".master"), cs.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid master key path: %w", err)
	}

	data, err := os.ReadFile(keyPath) // #nosec G304 - path is validated
	if err == nil {
		// Extract the key part (skip the salt)
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	// Derive key from machine-specific data
	key := pbkdf2.Key([]byte(getMachineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(cs.dir, common.DirPermissionSecure); err != nil {
		return nil, err
	}
	keyData := append(salt, key...)
	if err := os.WriteFile(keyPath, keyData, common.FilePermissionSecure); err != nil { // #nosec G304
		return nil, err
	}
	return key, nil
}

func (cs *CredentialStore) credentialPath(name string) string {
	return filepath.Join(cs.dir, name+".cred")
}

func (cs *CredentialStore) saveFile(name string, cred *credentialFile) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cs.dir, common.DirPermissionSecure); err != nil {
		return err
	}

	path, err := common.ValidatePath(cs.credentialPath(name), cs.dir)
	if err != nil {
		return fmt.Errorf("invalid credential file path: %w", err)
	}
	return os.WriteFile(path, data, common.FilePermissionSecure) // #nosec G304
}

func (cs *CredentialStore) loadFile(name string) (*credentialFile, error) {
	path, err := common.ValidatePath(cs.credentialPath(name), cs.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid credential file path: %w", err)
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	var cred credentialFile
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (cs *CredentialStore) indexPath() (string, error) {
	path, err := common.ValidatePath(filepath.Join(cs.dir, ".index"), cs.dir)
	if err != nil {
		return "", fmt.Errorf("invalid index file path: %w", err)
	}
	return path, nil
}

func (cs *CredentialStore) readIndex() ([]string, error) {
	path, err := cs.indexPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (cs *CredentialStore) updateIndex(name string, add bool) error {
	index, err := cs.readIndex()
	if err != nil {
		return err
	}

	next := []string{}
	for _, n := range index {
		if n != name {
			next = append(next, n)
		}
	}
	if add {
		next = append(next, name)
	}
	sort.Strings(next)

	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cs.dir, common.DirPermissionSecure); err != nil {
		return err
	}
	path, err := cs.indexPath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, common.FilePermissionSecure) // #nosec G304
}

// Platform-specific helpers

func isKeyringAvailable() bool {
	if os.Getenv("KPISYNC_USE_KEYCHAIN") == "false" {
		return false
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Secret Service needs a session bus, which desktop sessions provide
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

func getMachineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	data := fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)
	hash := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(hash[:])
}
