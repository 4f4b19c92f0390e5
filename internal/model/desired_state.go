package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrDocument = errors.New("desired state document error")
)

// DesiredState is the authoritative record for a single machine as pushed by hegel.
//
// nolint:govet // fieldalignment - struct is better readable in its current form.
type DesiredState struct {
	ID             string          `json:"id"`
	State          State           `json:"state"`
	FacilityCode   string          `json:"facility_code"`
	PlanSlug       string          `json:"plan_slug"`
	BondingMode    int             `json:"bonding_mode"`
	NetworkPorts   []NetworkPort   `json:"network_ports"`
	PreinstalledOS *PreinstalledOS `json:"preinstalled_operating_system_version,omitempty"`

	// Instance is only present once the machine has been assigned.
	Instance *Instance `json:"instance,omitempty"`
}

// OperatingSystem identifies an OS image.
//
// Members without a field are kept and encoded as received, the installer
// reads the whole object from the metadata file.
type OperatingSystem struct {
	Slug     string `json:"slug,omitempty"`
	OSSlug   string `json:"os_slug"`
	ImageTag string `json:"image_tag,omitempty"`
	Distro   string `json:"distro,omitempty"`
	Version  string `json:"version,omitempty"`

	raw members
}

type operatingSystem OperatingSystem

func (o *OperatingSystem) UnmarshalJSON(b []byte) error {
	var typed operatingSystem

	raw, err := decodeMembers(b, &typed)
	if err != nil {
		return errors.Wrap(ErrDocument, "operating system: "+err.Error())
	}

	*o = OperatingSystem(typed)
	o.raw = raw

	return nil
}

func (o OperatingSystem) MarshalJSON() ([]byte, error) {
	if o.raw == nil {
		return json.Marshal(operatingSystem(o))
	}

	out := o.raw.clone()
	if o.Slug != "" {
		if err := out.set("slug", o.Slug); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

// PreinstalledOS is the OS currently imaged on disk along with the storage layout it was imaged with.
type PreinstalledOS struct {
	OperatingSystem
	Storage any `json:"storage"`
}

// UnmarshalJSON moves the storage member out of the operating system.
func (p *PreinstalledOS) UnmarshalJSON(b []byte) error {
	var os OperatingSystem
	if err := json.Unmarshal(b, &os); err != nil {
		return err
	}

	storage := struct {
		Storage any `json:"storage"`
	}{}

	if err := json.Unmarshal(b, &storage); err != nil {
		return errors.Wrap(ErrDocument, "preinstalled storage: "+err.Error())
	}

	delete(os.raw, "storage")

	p.OperatingSystem = os
	p.Storage = storage.Storage

	return nil
}

func (p PreinstalledOS) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(p.OperatingSystem)
	if err != nil {
		return nil, err
	}

	out := members{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	if err := out.set("storage", p.Storage); err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// Instance is the machine assignment.
//
// nolint:govet // fieldalignment - struct is better readable in its current form.
type Instance struct {
	ID                  string          `json:"id"`
	Hostname            string          `json:"hostname"`
	State               string          `json:"state,omitempty"`
	CryptedRootPassword string          `json:"crypted_root_password,omitempty"`
	IPAddresses         []IPAddress     `json:"ip_addresses"`
	OperatingSystem     OperatingSystem `json:"operating_system_version"`
	Storage             any             `json:"storage"`
	UserData            UserData        `json:"userdata,omitempty"`
	NetworkReady        bool            `json:"network_ready"`
	Services            *Services       `json:"services,omitempty"`
}

// IPAddress is an address assigned to an instance, members without a field are kept.
type IPAddress struct {
	Address       string `json:"address"`
	AddressFamily int    `json:"address_family"`
	CIDR          int    `json:"cidr,omitempty"`
	Gateway       string `json:"gateway,omitempty"`
	Netmask       string `json:"netmask,omitempty"`
	Network       string `json:"network,omitempty"`
	Management    bool   `json:"management"`
	Public        bool   `json:"public"`

	raw members
}

type ipAddress IPAddress

func (a *IPAddress) UnmarshalJSON(b []byte) error {
	var typed ipAddress

	raw, err := decodeMembers(b, &typed)
	if err != nil {
		return errors.Wrap(ErrDocument, "ip address: "+err.Error())
	}

	*a = IPAddress(typed)
	a.raw = raw

	return nil
}

func (a IPAddress) MarshalJSON() ([]byte, error) {
	if a.raw == nil {
		return json.Marshal(ipAddress(a))
	}

	return json.Marshal(a.raw)
}

// Services is the optional set of services requested for an instance.
//
// The authority sends either an object keyed by service name or a list of names,
// the value is encoded back as received.
type Services struct {
	names map[string]struct{}
	raw   json.RawMessage
}

// NewServices returns the set of the given service names.
func NewServices(names ...string) *Services {
	s := &Services{names: map[string]struct{}{}}
	for _, name := range names {
		s.names[name] = struct{}{}
	}

	s.raw, _ = json.Marshal(names)

	return s
}

// Has returns true when the named service was requested.
func (s *Services) Has(name string) bool {
	if s == nil {
		return false
	}

	_, exists := s.names[name]

	return exists
}

// Len returns the number of requested services.
func (s *Services) Len() int {
	if s == nil {
		return 0
	}

	return len(s.names)
}

func (s *Services) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s.names = map[string]struct{}{}
	s.raw = nil

	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	object := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &object); err == nil {
		for name := range object {
			s.names[name] = struct{}{}
		}

		s.raw = append(json.RawMessage{}, b...)

		return nil
	}

	list := []string{}
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.Wrap(ErrDocument, "services: expected an object or a list of names")
	}

	for _, name := range list {
		s.names[name] = struct{}{}
	}

	s.raw = append(json.RawMessage{}, b...)

	return nil
}

func (s Services) MarshalJSON() ([]byte, error) {
	if s.raw == nil {
		return []byte("null"), nil
	}

	return s.raw, nil
}

// members are the raw members of a JSON object.
type members map[string]json.RawMessage

// decodeMembers decodes b into typed and returns all of its raw members.
func decodeMembers(b []byte, typed any) (members, error) {
	var raw members
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(b, typed); err != nil {
		return nil, err
	}

	return raw, nil
}

func (m members) clone() members {
	c := make(members, len(m))
	for k, v := range m {
		c[k] = v
	}

	return c
}

func (m members) set(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m[key] = b

	return nil
}

// NetworkPort is a physical port on the machine.
type NetworkPort struct {
	Type string          `json:"type"`
	Name string          `json:"name"`
	Data NetworkPortData `json:"data"`
}

type NetworkPortData struct {
	MAC  string `json:"mac"`
	Bond string `json:"bond"`
}

// UserData is free form instance user data.
//
// The authority sends null or false when none was set, both decode to an empty value.
type UserData string

func (u *UserData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false")) {
		*u = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(ErrDocument, "userdata: "+err.Error())
	}

	*u = UserData(s)

	return nil
}

// ParseDesiredState decodes a desired state document.
func ParseDesiredState(b []byte) (*DesiredState, error) {
	ds := &DesiredState{}
	if err := json.Unmarshal(b, ds); err != nil {
		return nil, errors.Wrap(ErrDocument, err.Error())
	}

	if ds.ID == "" {
		return nil, errors.Wrap(ErrDocument, "missing machine id")
	}

	return ds, nil
}

// Sanitized returns the document encoded as indented JSON with the userdata omitted.
func (d *DesiredState) Sanitized() string {
	c := *d
	if d.Instance != nil {
		i := *d.Instance
		i.UserData = "~~ OMITTED ~~"
		c.Instance = &i
	}

	b, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return ""
	}

	return string(b)
}

// InstanceID returns the assigned instance identifier, if any.
func (d *DesiredState) InstanceID() string {
	if d.Instance == nil {
		return ""
	}

	return d.Instance.ID
}
