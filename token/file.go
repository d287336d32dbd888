package token

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for the credential file key.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
	saltLen    = 16

	fileFormatVersion = 1
)

// ErrDecrypt means the credential file exists but cannot be opened with the
// configured passphrase.
var ErrDecrypt = errors.New("credential file cannot be decrypted")

// sealedFile is the on-disk layout. Values is the AES-GCM sealed JSON map.
type sealedFile struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Values  []byte `json:"values"`
}

// FileBackend is an encrypted key-value file. The whole map is sealed with
// AES-256-GCM under a key derived from the passphrase and the file's salt.
type FileBackend struct {
	path       string
	passphrase []byte

	mu      sync.Mutex
	keySalt []byte
	key     []byte
}

// NewFileBackend returns a backend persisting to path. The parent directory
// is created with mode 0700 if missing.
func NewFileBackend(path string, passphrase []byte) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("credential file path is empty")
	}
	if len(passphrase) == 0 {
		return nil, errors.New("credential file passphrase is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return &FileBackend{path: path, passphrase: passphrase}, nil
}

// Path returns the credential file location.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Get(key string) (string, bool, error) {
	values, _, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileBackend) Set(values map[string]string) error {
	return f.update(func(m map[string]string) {
		for k, v := range values {
			m[k] = v
		}
	})
}

func (f *FileBackend) Delete(keys ...string) error {
	return f.update(func(m map[string]string) {
		for _, k := range keys {
			delete(m, k)
		}
	})
}

// update applies fn to the current map under the file lock and writes the
// result back atomically.
func (f *FileBackend) update(fn func(map[string]string)) error {
	lock, err := acquireFileLock(context.Background(), f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.release()

	values, salt, err := f.load()
	switch {
	case errors.Is(err, ErrDecrypt):
		// sealed under another passphrase: start over
		values, salt = make(map[string]string), nil
	case err != nil:
		return err
	}
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	fn(values)
	return f.store(values, salt)
}

func (f *FileBackend) load() (map[string]string, []byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var sf sealedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if sf.Version != fileFormatVersion {
		return nil, nil, fmt.Errorf("unsupported credential file version %d", sf.Version)
	}

	gcm, err := f.cipher(sf.Salt)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := gcm.Open(nil, sf.Nonce, sf.Values, nil)
	if err != nil {
		return nil, nil, ErrDecrypt
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credential values: %w", err)
	}
	return values, sf.Salt, nil
}

func (f *FileBackend) store(values map[string]string, salt []byte) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return err
	}
	gcm, err := f.cipher(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	data, err := json.Marshal(sealedFile{
		Version: fileFormatVersion,
		Salt:    salt,
		Nonce:   nonce,
		Values:  gcm.Seal(nil, nonce, plaintext, nil),
	})
	if err != nil {
		return err
	}

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// cipher returns an AES-GCM AEAD for salt, deriving the key only when the
// salt changes.
func (f *FileBackend) cipher(salt []byte) (cipher.AEAD, error) {
	f.mu.Lock()
	if f.key == nil || string(f.keySalt) != string(salt) {
		f.key = argon2.IDKey(f.passphrase, salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
		f.keySalt = append([]byte(nil), salt...)
	}
	key := f.key
	f.mu.Unlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
