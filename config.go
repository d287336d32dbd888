package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cinesync/cli/api"
)

// config holds the resolved settings for one invocation.
type config struct {
	ServerURL string
	TokenFile string
	StoreKey  string
	Language  string
	LogFile   string
	LogLevel  zerolog.Level

	// storeKeyDerived is set when no key was configured.
	storeKeyDerived bool

	Command string
	Args    []string
}

// parseConfig resolves flags, environment and defaults.
// Priority: flag > env > default.
func parseConfig(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("cinesync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(fs, stderr) }

	flagServerURL := fs.String(
		"server-url",
		"",
		"Backend URL (default: http://localhost:8080 or SERVER_URL env)",
	)
	flagTokenFile := fs.String(
		"token-file",
		"",
		"Encrypted credential file (default: ~/.cinesync/credentials.enc or TOKEN_FILE env)",
	)
	flagStoreKey := fs.String("store-key", "", "Passphrase for the credential file (or STORE_KEY env)")
	flagLanguage := fs.String("language", "", "Movie metadata language (default: en-US or LANGUAGE env)")
	flagLogFile := fs.String("log-file", "", "Write logs to this file (or LOG_FILE env)")
	flagLogLevel := fs.String("log-level", "", "debug, info, warn or error (default: info or LOG_LEVEL env)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config{
		ServerURL: getConfig(*flagServerURL, "SERVER_URL", "http://localhost:8080"),
		TokenFile: getConfig(*flagTokenFile, "TOKEN_FILE", defaultTokenFile()),
		StoreKey:  getConfig(*flagStoreKey, "STORE_KEY", ""),
		Language:  getConfig(*flagLanguage, "LANGUAGE", api.DefaultLanguage),
		LogFile:   getConfig(*flagLogFile, "LOG_FILE", ""),
	}

	if err := validateServerURL(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid SERVER_URL: %w", err)
	}

	level, err := zerolog.ParseLevel(getConfig(*flagLogLevel, "LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.StoreKey == "" {
		cfg.StoreKey = derivedStoreKey()
		cfg.storeKeyDerived = true
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return nil, errors.New("no command given")
	}
	cfg.Command = fs.Arg(0)
	cfg.Args = fs.Args()[1:]
	return cfg, nil
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Usage: cinesync [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  login <email>                 sign in (password is prompted)")
	fmt.Fprintln(w, "  register <email> <username>   create an account and sign in")
	fmt.Fprintln(w, "  logout                        forget the stored credential")
	fmt.Fprintln(w, "  whoami                        show the signed-in user")
	fmt.Fprintln(w, "  movies [-pages N]             browse popular movies")
	fmt.Fprintln(w, "  board <movieID>               open a movie's message board")
	fmt.Fprintln(w, "  comment <movieID> <text>      post a comment")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func isPlainHTTP(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "http://")
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cinesync-credentials.enc"
	}
	return filepath.Join(home, ".cinesync", "credentials.enc")
}

// derivedStoreKey ties the credential file to this machine and account when
// no passphrase is configured. It only keeps the file opaque to casual reads.
func derivedStoreKey() string {
	host, _ := os.Hostname()
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	sum := sha256.Sum256([]byte("cinesync:" + host + ":" + name))
	return hex.EncodeToString(sum[:])
}
