// Command taco wires the Session Supervisor and the three engines it
// owns (C6, C7, C8) and blocks until an OS signal arrives. The HTTP UI,
// settings-file watcher, and directory-listing worker pool are out of
// scope (spec.md §1) and live outside this repository.
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/log"

	"github.com/taconet/taco/internal/clientengine"
	"github.com/taconet/taco/internal/identity"
	"github.com/taconet/taco/internal/keystore"
	"github.com/taconet/taco/internal/peertable"
	"github.com/taconet/taco/internal/serverengine"
	"github.com/taconet/taco/internal/settings"
	"github.com/taconet/taco/internal/supervisor"
)

var logger = log.Default.WithNames("taco", "main")

type args struct {
	Settings string `arg:"--settings" default:"settings.json" help:"path to the settings JSON document"`
	Store    string `arg:"--store" default:"certstore" help:"key store root directory"`
}

func main() {
	var a args
	arg.MustParse(&a)

	settingsStore, err := settings.Load(a.Settings, nil)
	if err != nil {
		logger.Levelf(log.Error, "loading settings: %v", err)
		os.Exit(1)
	}
	doc := settingsStore.Get()

	if doc.LocalUUID == "" {
		id, err := identity.New()
		if err != nil {
			logger.Levelf(log.Error, "generating node identity: %v", err)
			os.Exit(1)
		}
		if err := settingsStore.Update(func(d *settings.Document) { d.LocalUUID = id }); err != nil {
			logger.Levelf(log.Error, "persisting node identity: %v", err)
			os.Exit(1)
		}
		doc = settingsStore.Get()
	}

	keys, err := keystore.Open(a.Store, doc.LocalUUID, log.Default)
	if err != nil {
		logger.Levelf(log.Error, "opening key store: %v", err)
		os.Exit(1)
	}

	sup := supervisor.New(doc.LocalUUID, doc.Nickname, keys, settingsStore, doc.DownloadLocation)
	for id, p := range doc.Peers {
		if err := sup.AddPeer(peerRecordFromEntry(id, p)); err != nil {
			logger.Levelf(log.Warning, "loading peer %s: %v", id, err)
		}
	}
	shareNames := make([]string, len(doc.Shares))
	sharePaths := make([]string, len(doc.Shares))
	for i, sh := range doc.Shares {
		shareNames[i], sharePaths[i] = sh[0], sh[1]
	}
	if err := sup.Shares().Replace(shareNames, sharePaths); err != nil {
		logger.Levelf(log.Warning, "loading shares: %v", err)
	}
	sup.UploadLimiter().SetCap(int64(doc.UploadLimitKBps) * 1024)
	sup.DownloadLimiter().SetCap(int64(doc.DownloadLimitKBps) * 1024)

	stop := make(chan struct{})
	if err := keys.WatchExternalEdits(stop); err != nil {
		logger.Levelf(log.Warning, "watching public key directory: %v", err)
	}

	addr := "tcp://" + doc.ApplicationIP + ":" + strconv.Itoa(doc.ApplicationPort)
	client, server := startEngines(sup, addr)

	sup.SetRestartHook(func() {
		logger.Levelf(log.Info, "restarting engines after peer-table change")
		client.Stop()
		server.Stop()
		client, server = startEngines(sup, addr)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	close(stop)
	client.Stop()
	server.Stop()
	sup.Transfers().Close()
}

// startEngines constructs and launches a fresh C6/C7 pair. Called once at
// startup and again from the restart hook whenever SavePeers replaces the
// peer table (spec.md §6's "save_peers... the last triggers restart()").
func startEngines(sup *supervisor.Supervisor, addr string) (*clientengine.Engine, *serverengine.Engine) {
	client := clientengine.New(sup)
	go client.Run()

	server, err := serverengine.New(sup, addr, sup.ServerKeys())
	if err != nil {
		logger.Levelf(log.Error, "starting server engine: %v", err)
		os.Exit(1)
	}
	go server.Run()
	return client, server
}

func peerRecordFromEntry(id string, p settings.PeerEntry) peertable.Record {
	return peertable.Record{
		Identity:        id,
		Hostname:        p.Hostname,
		Port:            p.Port,
		Enabled:         p.Enabled,
		Dynamic:         p.Dynamic,
		LocalNickname:   p.LocalNickname,
		RemoteNickname:  p.RemoteNickname,
		ClientPublicKey: []byte(p.ClientPublicKey),
		ServerPublicKey: []byte(p.ServerPublicKey),
	}
}
