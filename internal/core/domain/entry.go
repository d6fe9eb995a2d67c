package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DEVICE_CLASS_NONE          = "-"
	DEFAULT_ENTITY_NAME        = "My New Virtual Entity"
	DEFAULT_DEVICE_TITLE       = "My New Virtual Device"
	DEFAULT_DEVICE_MANUFACTURE = "Virtual Device"
)

// EntityRecord is the persisted configuration of one entity.
type EntityRecord struct {
	Id           string         `json:"id" yaml:"id"`
	DeviceClass  string         `json:"device_class" yaml:"device_class"`
	FriendlyName string         `json:"friendly_name" yaml:"friendly_name"`
	Module       string         `json:"module" yaml:"module"`
	Platform     string         `json:"platform" yaml:"platform"`
	Data         map[string]any `json:"data" yaml:"data"`
}

type EntryData struct {
	Manufacturer string         `json:"manufacturer" yaml:"manufacturer"`
	Model        string         `json:"model" yaml:"model"`
	Entities     []EntityRecord `json:"entities" yaml:"entities"`
}

// DeviceEntry is one configured virtual device.
type DeviceEntry struct {
	EntryId   string    `json:"entry_id" yaml:"entry_id"`
	Title     string    `json:"title" yaml:"title"`
	Data      EntryData `json:"data" yaml:"data"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// NewRecordId returns 32 lowercase hex characters.
func NewRecordId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewEntityRecord(module, platform string) EntityRecord {
	return EntityRecord{
		Id:           NewRecordId(),
		DeviceClass:  DEVICE_CLASS_NONE,
		FriendlyName: DEFAULT_ENTITY_NAME,
		Module:       module,
		Platform:     platform,
		Data:         map[string]any{},
	}
}

func (r EntityRecord) Clone() EntityRecord {
	c := r
	c.Data = CloneBag(r.Data)
	return c
}

func (d EntryData) Clone() EntryData {
	c := d
	c.Entities = make([]EntityRecord, len(d.Entities))
	for i := range d.Entities {
		c.Entities[i] = d.Entities[i].Clone()
	}
	return c
}

func (d EntryData) FindEntity(id string) (EntityRecord, bool) {
	for i := range d.Entities {
		if d.Entities[i].Id == id {
			return d.Entities[i], true
		}
	}
	return EntityRecord{}, false
}

// UpsertEntity replaces the record with the same id or appends it.
func (d *EntryData) UpsertEntity(rec EntityRecord) {
	for i := range d.Entities {
		if d.Entities[i].Id == rec.Id {
			d.Entities[i] = rec
			return
		}
	}
	d.Entities = append(d.Entities, rec)
}

func (d *EntryData) RemoveEntity(id string) bool {
	for i := range d.Entities {
		if d.Entities[i].Id == id {
			d.Entities = append(d.Entities[:i], d.Entities[i+1:]...)
			return true
		}
	}
	return false
}

func (d EntryData) UsesModule(module string) bool {
	for i := range d.Entities {
		if d.Entities[i].Module == module {
			return true
		}
	}
	return false
}

// CloneBag deep-copies a property bag decoded from JSON or YAML.
func CloneBag(bag map[string]any) map[string]any {
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneBag(t)
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	default:
		return v
	}
}
