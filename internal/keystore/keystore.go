// Package keystore implements C2 (spec.md §4.2): long-term CURVE key pair
// generation and persistence, and reconciliation of the public-key
// directory consumed by the transport authenticator. Grounded on
// taco/crypto.py's init_local_crypto (zmq.auth.create_certificates,
// stored under {store}/{id}/private and {store}/{id}/public) and on
// spec.md §6's exact file naming, "{peer-id}-{client|server}.key".
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/anacrolix/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/pebbe/zmq4"

	"github.com/taconet/taco/internal/peertable"
)

const (
	privateDirName = "private"
	publicDirName  = "public"

	clientSecretFile = "local-client.key_secret"
	serverSecretFile = "local-server.key_secret"
	clientPublicFile = "local-client.key"
	serverPublicFile = "local-server.key"
)

// KeyPair is one CURVE public/secret key pair, z85-encoded text as
// zmq4.NewCurveKeypair produces.
type KeyPair struct {
	Public string
	Secret string
}

// Store owns this node's long-term key pairs and the reconciled public-key
// directory other enabled peers' keys live in.
type Store struct {
	root       string // {store}/{local-id}
	logger     log.Logger
	mu         sync.Mutex
	client     KeyPair
	server     KeyPair
	version    int64 // settings-version, bumped on every reconcile
}

// Open creates (on first run) or loads this node's key pairs under
// storeRoot/localID, and returns a Store ready for Reconcile calls.
func Open(storeRoot, localID string, logger log.Logger) (*Store, error) {
	root := filepath.Join(storeRoot, localID)
	priv := filepath.Join(root, privateDirName)
	pub := filepath.Join(root, publicDirName)
	if err := os.MkdirAll(priv, 0700); err != nil {
		return nil, errors.Wrap(err, "creating private key directory")
	}
	if err := os.MkdirAll(pub, 0755); err != nil {
		return nil, errors.Wrap(err, "creating public key directory")
	}

	s := &Store{root: root, logger: logger.WithNames("taco", "keystore")}

	var err error
	s.client, err = loadOrGenerate(filepath.Join(priv, clientPublicFile), filepath.Join(priv, clientSecretFile))
	if err != nil {
		return nil, errors.Wrap(err, "client key pair")
	}
	s.server, err = loadOrGenerate(filepath.Join(priv, serverPublicFile), filepath.Join(priv, serverSecretFile))
	if err != nil {
		return nil, errors.Wrap(err, "server key pair")
	}
	return s, nil
}

func loadOrGenerate(publicPath, secretPath string) (KeyPair, error) {
	pubBytes, pubErr := os.ReadFile(publicPath)
	secBytes, secErr := os.ReadFile(secretPath)
	if pubErr == nil && secErr == nil {
		return KeyPair{Public: string(pubBytes), Secret: string(secBytes)}, nil
	}

	pub, sec, err := zmq4.NewCurveKeypair()
	if err != nil {
		return KeyPair{}, errors.Wrap(err, "generating CURVE key pair")
	}
	if err := os.WriteFile(publicPath, []byte(pub), 0644); err != nil {
		return KeyPair{}, err
	}
	if err := os.WriteFile(secretPath, []byte(sec), 0600); err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Secret: sec}, nil
}

// ClientPublicKey and ServerPublicKey expose this node's public halves for
// UI export, per spec.md §4.2.
func (s *Store) ClientPublicKey() string { return s.client.Public }
func (s *Store) ServerPublicKey() string { return s.server.Public }
func (s *Store) ClientKeyPair() KeyPair  { return s.client }
func (s *Store) ServerKeyPair() KeyPair  { return s.server }

// PublicDir is the directory the transport authenticator watches.
func (s *Store) PublicDir() string { return filepath.Join(s.root, publicDirName) }

// Version returns the current settings-version token.
func (s *Store) Version() int64 { return atomic.LoadInt64(&s.version) }

// Reconcile rewrites the public-key directory to contain exactly the keys
// of currently enabled peers, idempotently, and bumps the settings-version
// token so consumers (the transport authenticator) know to reconfigure.
// Spec.md §4.2 / testable property in §8.
func (s *Store) Reconcile(table *peertable.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[string][]byte{}
	for _, p := range table.Enabled() {
		wanted[fmt.Sprintf("%s-client.key", p.Identity)] = p.ClientPublicKey
		wanted[fmt.Sprintf("%s-server.key", p.Identity)] = p.ServerPublicKey
	}

	dir := s.PublicDir()
	existing, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "reading public key directory")
	}
	present := map[string]bool{}
	for _, ent := range existing {
		present[ent.Name()] = true
	}

	for name, keyData := range wanted {
		if len(keyData) == 0 {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), keyData, 0644); err != nil {
			return errors.Wrapf(err, "writing public key %s", name)
		}
	}
	for name := range present {
		if _, ok := wanted[name]; !ok {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				s.logger.Levelf(log.Warning, "removing stale public key %s: %v", name, err)
			}
		}
	}

	atomic.AddInt64(&s.version, 1)
	s.logger.Levelf(log.Debug, "reconciled public key directory, version=%d", s.Version())
	return nil
}

// WatchExternalEdits starts an fsnotify watch on the public key
// directory so a key file dropped or edited by something other than
// Reconcile (e.g. an operator copying a peer's key in by hand) still
// bumps the settings-version token, letting C7's authenticator pick it
// up without a restart. Runs until stop is closed.
func (s *Store) WatchExternalEdits(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating public key directory watcher")
	}
	if err := watcher.Add(s.PublicDir()); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watching public key directory")
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				atomic.AddInt64(&s.version, 1)
				s.logger.Levelf(log.Debug, "public key directory changed externally (%s), version=%d", ev.Name, s.Version())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Levelf(log.Warning, "public key directory watch error: %v", err)
			}
		}
	}()
	return nil
}
