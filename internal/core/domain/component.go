package domain

import (
	"regexp"
	"sort"
)

const (
	PLATFORM_SWITCH = "switch"
	PLATFORM_BUTTON = "button"
)

var SupportedPlatforms = []string{PLATFORM_SWITCH, PLATFORM_BUTTON}

var platformDeviceClasses = map[string][]string{
	PLATFORM_SWITCH: {"outlet", "switch"},
	PLATFORM_BUTTON: {"identify", "restart", "update"},
}

// StaticDeviceClasses enumerates the device classes known for each platform.
type StaticDeviceClasses struct{}

func (StaticDeviceClasses) DeviceClasses(platform string) []string {
	classes := append([]string(nil), platformDeviceClasses[platform]...)
	sort.Strings(classes)
	return classes
}

type Device struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	Version      string `json:"sw_version,omitempty"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	ViaDevice    string `json:"via_device,omitempty"`
}

// EntityDescription is what the registrar needs to expose a live entity.
type EntityDescription struct {
	EntryId     string  `json:"entry_id"`
	RecordId    string  `json:"record_id"`
	Module      string  `json:"module"`
	Platform    string  `json:"platform"`
	UniqueId    string  `json:"unique_id"`
	Name        string  `json:"name"`
	DeviceClass *string `json:"device_class,omitempty"`
	Device      Device  `json:"device"`
}

var objectIdInvalid = regexp.MustCompile("[^a-zA-Z0-9_]+")

// ObjectId is the unique id reduced to characters allowed in a topic level.
func (d EntityDescription) ObjectId() string {
	return objectIdInvalid.ReplaceAllString(d.UniqueId, "_")
}

type PluginInfo struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Platforms   []string `json:"platforms"`
	Source      string   `json:"source"`
	Mixins      []string `json:"mixins,omitempty"`
}
