// Package settings implements the on-disk settings document described in
// spec.md §6 ("On-disk state") and the save_settings/save_shares/
// save_peers UI boundary of spec.md §6. Grounded on taco/settings.go's
// single JSON document with the same top-level key names. The file is
// read once by Load; edits made to it outside Update are not picked up.
package settings

import (
	"encoding/json"
	"os"
	"sync"
)

// PeerEntry mirrors one value in the "Peers" map.
type PeerEntry struct {
	Hostname        string `json:"hostname"`
	Port            uint16 `json:"port"`
	Enabled         bool   `json:"enabled"`
	Dynamic         bool   `json:"dynamic"`
	LocalNickname   string `json:"localnick"`
	RemoteNickname  string `json:"nickname"`
	ClientPublicKey string `json:"clientkey"`
	ServerPublicKey string `json:"serverkey"`
}

// ShareEntry mirrors one [name, path] pair in the "Shares" sequence.
type ShareEntry struct {
	Name string
	Path string
}

// Document is the exact shape of the on-disk JSON settings document,
// field names matching spec.md §6's top-level keys verbatim.
type Document struct {
	LocalUUID             string               `json:"Local UUID"`
	Nickname              string               `json:"Nickname"`
	ApplicationIP         string               `json:"Application IP"`
	ApplicationPort       int                  `json:"Application Port"`
	WebIP                 string               `json:"Web IP"`
	WebPort               int                  `json:"Web Port"`
	DownloadLocation      string               `json:"Download Location"`
	UploadLimitKBps       int                  `json:"Upload Limit"`
	DownloadLimitKBps     int                  `json:"Download Limit"`
	CertificatesStore     string               `json:"TacoNET Certificates Store"`
	Shares                [][2]string          `json:"Shares"`
	Peers                 map[string]PeerEntry `json:"Peers"`
}

// Store loads, holds, and persists a Document. Mutations go through
// Update, which serializes writers and atomically replaces the file
// (write-to-temp-then-rename, avoiding a torn read by a concurrent UI
// request) and then calls onChange, if Load was given one (cmd/taco
// passes nil; Supervisor.SavePeers calls Restart itself).
type Store struct {
	path     string
	mu       sync.Mutex
	doc      Document
	onChange func(Document)
}

func Default(path string) Document {
	return Document{
		ApplicationPort:  9700,
		WebPort:          8700,
		DownloadLocation: "downloads",
		Peers:            map[string]PeerEntry{},
	}
}

// Load reads path, creating it with defaults if absent.
func Load(path string, onChange func(Document)) (*Store, error) {
	s := &Store{path: path, onChange: onChange}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.doc = Default(path)
		if err := s.persist(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

func (s *Store) Get() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Update replaces the document and persists it, then notifies onChange.
// Spec.md §6's save_settings/save_shares/save_peers.
func (s *Store) Update(mutate func(*Document)) error {
	s.mu.Lock()
	mutate(&s.doc)
	doc := s.doc
	err := s.persist()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.onChange != nil {
		s.onChange(doc)
	}
	return nil
}

func (s *Store) persist() error {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
