package config

import (
	"encoding/json"
	"io"

	"github.com/zhouchenh/trustDNS/pkg/upstream/resolver"
)

func LoadConfig(r io.Reader) (*Config, error) {
	rawData, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var data interface{}
	err = json.Unmarshal(rawData, &data)
	if err != nil {
		return nil, err
	}
	rawConfig, s, f := Descriptor().Describe(data)
	ok := s > 0 && f < 1
	if !ok {
		return nil, ErrBadConfig
	}
	config, ok := rawConfig.(*Config)
	if !ok || config == nil || config.Anchors == nil {
		return nil, ErrBadConfig
	}
	if !config.Anchors.Unmanaged && config.Anchors.ManagedFile == "" {
		return nil, ErrMissingManagedFile
	}
	if config.Upstream == nil {
		config.Upstream, err = defaultUpstream()
		if err != nil {
			return nil, err
		}
	}
	return config, nil
}

func defaultUpstream() (resolver.Resolver, error) {
	describable, ok := resolver.GetResolverDescriptorByTypeName("rootNameServer")
	if !ok {
		return nil, ErrUnexpectedBadConfig
	}
	raw, s, f := describable.Describe(map[string]interface{}{})
	if s < 1 || f > 0 {
		return nil, ErrUnexpectedBadConfig
	}
	r, ok := raw.(resolver.Resolver)
	if !ok {
		return nil, ErrUnexpectedBadConfig
	}
	return r, nil
}
