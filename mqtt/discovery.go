package mqtt

import (
	"encoding/json"
	"maps"
	"slices"

	"solax-modbus/solax"
)

// DiscoveryDevice groups every entity under one device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
}

// DiscoveryConfig is the retained payload on <discovery>/<component>/<node>/<key>/config.
type DiscoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	ObjectID          string          `json:"object_id"`
	StateTopic        string          `json:"state_topic"`
	CommandTopic      string          `json:"command_topic,omitempty"`
	AvailabilityTopic string          `json:"availability_topic"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	EnabledByDefault  bool            `json:"enabled_by_default"`
	Min               *float64        `json:"min,omitempty"`
	Max               *float64        `json:"max,omitempty"`
	Step              *float64        `json:"step,omitempty"`
	Options           []string        `json:"options,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}

// component は Home Assistant のプラットフォーム名
func component(e solax.EntityDesc) string {
	return e.Kind().String()
}

func (b *Bridge) discoveryTopic(e solax.EntityDesc) string {
	return b.opts.DiscoveryPrefix + "/" + component(e) + "/" + b.opts.NodeID + "/" + e.Key + "/config"
}

func (b *Bridge) discoveryConfig(e solax.EntityDesc) DiscoveryConfig {
	cfg := DiscoveryConfig{
		Name:              e.Name,
		UniqueID:          b.opts.NodeID + "_" + e.Key,
		ObjectID:          b.opts.NodeID + "_" + e.Key,
		StateTopic:        b.stateTopic(e.Key),
		AvailabilityTopic: b.statusTopic(),
		Unit:              e.Meta.Unit,
		DeviceClass:       e.Meta.DeviceClass,
		StateClass:        e.Meta.StateClass,
		Icon:              e.Meta.Icon,
		EnabledByDefault:  !e.Meta.DisabledDefault,
		Device: DiscoveryDevice{
			Identifiers:  []string{b.opts.NodeID},
			Name:         b.opts.DeviceName,
			Manufacturer: "SolaX Power",
			Model:        b.catalog.Flags().String(),
		},
	}
	if cfg.Name == "" {
		cfg.Name = e.Key
	}
	if e.Writable() {
		cfg.CommandTopic = b.commandTopic(e.Key)
	}
	switch s := e.Spec.(type) {
	case solax.NumberDesc:
		cfg.Min, cfg.Max, cfg.Step = &s.Min, &s.Max, &s.Step
	case solax.SelectDesc:
		for _, code := range slices.Sorted(maps.Keys(s.Options)) {
			cfg.Options = append(cfg.Options, s.Options[code])
		}
	}
	return cfg
}

// PublishDiscovery announces every catalog entity.
func (b *Bridge) PublishDiscovery() error {
	for _, e := range b.catalog.Entities() {
		payload, err := json.Marshal(b.discoveryConfig(e))
		if err != nil {
			return err
		}
		if err := b.broker.Publish(b.discoveryTopic(e), payload, true); err != nil {
			return err
		}
	}
	return nil
}
