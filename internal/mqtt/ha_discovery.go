package mqtt

import (
	"github.com/berfenger/virtualdevices/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device         HADiscoveryDevice `json:"device"`
	StateTopic     string            `json:"state_topic,omitempty"`
	CommandTopic   string            `json:"command_topic,omitempty"`
	DeviceClass    string            `json:"device_class,omitempty"`
	AvTopic        string            `json:"availability_topic,omitempty"`
	EntityCategory string            `json:"entity_category,omitempty"`
	Name           string            `json:"name"`
	UniqueId       string            `json:"unique_id"`
	ObjectId       string            `json:"object_id,omitempty"`
	Platform       string            `json:"platform"`
	PayloadOn      string            `json:"payload_on,omitempty"`
	PayloadOff     string            `json:"payload_off,omitempty"`
	PayloadPress   string            `json:"payload_press,omitempty"`
	Icon           string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// HADiscoveryTopic places an entity under its device node.
func HADiscoveryTopic(client *MQTTClient, entity domain.EntityDescription) string {
	return client.DiscoveryTopic(entity.Platform, nodeId(entity.Device), entity.ObjectId())
}

// EntityToHADiscoveryMessage returns false for platforms without an MQTT
// representation.
func EntityToHADiscoveryMessage(client *MQTTClient, entity domain.EntityDescription) (HADiscoveryConfig, bool) {
	disConfig := HADiscoveryConfig{
		Device:   device(entity.Device),
		AvTopic:  client.BridgeStateTopic(),
		Name:     entity.Name,
		UniqueId: entity.UniqueId,
		ObjectId: entity.ObjectId(),
		Platform: "mqtt",
	}
	if entity.DeviceClass != nil {
		disConfig.DeviceClass = *entity.DeviceClass
	}
	switch entity.Platform {
	case domain.PLATFORM_SWITCH:
		disConfig.StateTopic = client.SwitchStateTopic(entity.ObjectId())
		disConfig.CommandTopic = client.SwitchCommandTopic(entity.ObjectId())
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	case domain.PLATFORM_BUTTON:
		disConfig.CommandTopic = client.ButtonPressTopic(entity.ObjectId())
		disConfig.PayloadPress = MQTT_PAYLOAD_PRESS
	default:
		return disConfig, false
	}
	return disConfig, true
}

func nodeId(d domain.Device) string {
	return domain.EntityDescription{UniqueId: d.Id}.ObjectId()
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
