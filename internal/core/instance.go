package core

import (
	"github.com/zhouchenh/trustDNS/internal/anchor"
	"github.com/zhouchenh/trustDNS/internal/config"
	"github.com/zhouchenh/trustDNS/internal/dnssec"
	"github.com/zhouchenh/trustDNS/internal/logger"
)

// Instance is one running trust anchor maintenance service: the manager,
// its trust stores, and the configuration they were assembled from.
type Instance interface {
	Manager() *anchor.Manager
	TrustStore() *dnssec.Store
	Start() error
	Stop()
}

type instance struct {
	cfg     *config.Config
	manager *anchor.Manager
	trust   *dnssec.Store
}

func NewInstance(cfg *config.Config) Instance {
	trust := dnssec.NewStore()
	anchors := cfg.Anchors
	manager := anchor.NewManager(cfg.Upstream, dnssec.Keys{}, trust, anchor.Options{
		HoldDown:        anchors.HoldDownTime,
		KeepRemoved:     anchors.KeepRemoved,
		RefreshOverride: anchors.RefreshOverride,
		Bootstrap: anchor.Bootstrapper{
			URL:            anchors.BootstrapURL,
			CAPath:         ResolvePath(anchors.BootstrapCA),
			Socks5Proxy:    anchors.Socks5Proxy,
			Socks5Username: anchors.Socks5Username,
			Socks5Password: anchors.Socks5Password,
		},
	})
	return &instance{cfg: cfg, manager: manager, trust: trust}
}

func (i *instance) Manager() *anchor.Manager {
	return i.manager
}

func (i *instance) TrustStore() *dnssec.Store {
	return i.trust
}

// Start installs static and negative anchors, then attaches the managed
// keyset file (bootstrapping it when absent) or detaches in unmanaged mode.
func (i *instance) Start() error {
	anchors := i.cfg.Anchors
	for _, keyText := range anchors.StaticAnchors {
		if err := i.manager.Add(keyText); err != nil {
			logger.Error().Err(err).Str("anchor", keyText).Msg("ignoring unusable static trust anchor")
		}
	}
	if len(anchors.InsecureDomains) > 0 {
		i.manager.SetInsecure(anchors.InsecureDomains)
	}
	return i.manager.Configure(ResolvePath(anchors.ManagedFile), anchors.Unmanaged)
}

func (i *instance) Stop() {
	i.manager.Close()
}
