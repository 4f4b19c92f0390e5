package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const phoneHome = "http://tinkerbell.example/phone-home"

func provisioningDocument(t *testing.T) *DesiredState {
	t.Helper()

	doc := `{
	  "id": "0b1d2a9e-5c3f-4a3e-8d5a-6f3e7b3c2a10",
	  "state": "provisioning",
	  "facility_code": "ewr1",
	  "plan_slug": "t1.small.x86",
	  "bonding_mode": 4,
	  "network_ports": [
	    {"type": "data", "name": "eth0", "data": {"mac": "00:00:00:00:00:01", "bond": "bond0"}},
	    {"type": "ipmi", "name": "ipmi0", "data": {"mac": "00:00:00:00:00:02", "bond": ""}}
	  ],
	  "preinstalled_operating_system_version": {"os_slug": "ubuntu_20_04", "image_tag": "abc", "storage": {"disks": []}},
	  "instance": {
	    "id": "instance-1",
	    "hostname": "box",
	    "crypted_root_password": "hash",
	    "ip_addresses": [{"address": "10.0.0.2", "address_family": 4, "management": true, "public": false}],
	    "operating_system_version": {"os_slug": "ubuntu_22_04", "image_tag": "def"},
	    "storage": {"disks": [{"device": "/dev/sda"}]},
	    "network_ready": true
	  }
	}`

	ds, err := ParseDesiredState([]byte(doc))
	require.NoError(t, err)

	return ds
}

func TestNewMetadata(t *testing.T) {
	ds := provisioningDocument(t)

	m, err := NewMetadata(ds, phoneHome)
	require.NoError(t, err)

	assert.Equal(t, "instance-1", m.ID)
	assert.Equal(t, "box", m.Hostname)
	require.NotNil(t, m.PasswordHash)
	assert.Equal(t, "hash", *m.PasswordHash)
	assert.Equal(t, "t1.small.x86", m.Class)
	assert.Equal(t, "t1.small.x86", m.Plan)
	assert.Equal(t, "ewr1", m.Facility)
	assert.Equal(t, StateProvisioning, m.State)
	assert.Equal(t, phoneHome, m.PhoneHomeURL)
	assert.Equal(t, "ubuntu_22_04", m.OperatingSystem.Slug)
	assert.Equal(t, "ubuntu_22_04", m.OperatingSystem.OSSlug)
	assert.Equal(t, 4, m.Network.Bonding.Mode)
	assert.Equal(t, ds.Instance.Storage, m.Storage)

	// only data ports are listed as interfaces
	require.Len(t, m.Network.Interfaces, 1)
	assert.Equal(t, NetworkInterface{Bond: "bond0", MAC: "00:00:00:00:00:01", Name: "eth0"}, m.Network.Interfaces[0])
}

func TestNewMetadataPreinstall(t *testing.T) {
	ds := provisioningDocument(t)
	ds.State = StatePreinstalling
	ds.Instance = nil

	m, err := NewMetadata(ds, phoneHome)
	require.NoError(t, err)

	assert.Equal(t, "preinstall", m.ID)
	assert.Equal(t, "preinstall", m.Hostname)
	require.NotNil(t, m.PasswordHash)
	assert.Equal(t, "preinstall", *m.PasswordHash)
	assert.Empty(t, m.Network.Addresses)
	assert.NotNil(t, m.Network.Addresses)
	assert.Equal(t, "ubuntu_20_04", m.OperatingSystem.Slug)
	assert.Equal(t, "abc", m.OperatingSystem.ImageTag)
	assert.Equal(t, ds.PreinstalledOS.Storage, m.Storage)

	// the preinstalled storage layout is moved out of the operating system
	b, err := json.Marshal(m.OperatingSystem)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "storage")

	ds.PreinstalledOS = nil
	_, err = NewMetadata(ds, phoneHome)
	assert.ErrorIs(t, err, ErrMetadata)
}

func TestMetadataWithState(t *testing.T) {
	m, err := NewMetadata(provisioningDocument(t), phoneHome)
	require.NoError(t, err)

	checkEnv := m.WithState(StateCheckEnv)
	assert.Equal(t, StateCheckEnv, checkEnv.State)
	assert.Equal(t, StateProvisioning, m.State)
	assert.Equal(t, m.ID, checkEnv.ID)
}

func TestMetadataRoundTrip(t *testing.T) {
	m, err := NewMetadata(provisioningDocument(t), phoneHome)
	require.NoError(t, err)

	b, err := m.Marshal()
	require.NoError(t, err)

	got := Metadata{}
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.State, got.State)
	assert.Equal(t, m.Storage, got.Storage)
	assert.Equal(t, m.Network.Interfaces, got.Network.Interfaces)
	assert.Equal(t, m.Network.Bonding, got.Network.Bonding)
	require.Len(t, got.Network.Addresses, 1)
	assert.Equal(t, "10.0.0.2", got.Network.Addresses[0].Address)
}

func TestMetadataKeepsUnknownMembers(t *testing.T) {
	doc := `{
	  "id": "hw",
	  "state": "provisioning",
	  "plan_slug": "c3.medium.x86",
	  "network_ports": [],
	  "instance": {
	    "id": "i",
	    "hostname": "box",
	    "ip_addresses": [
	      {"address": "10.0.0.2", "address_family": 4, "enabled": true, "parent_block": {"network": "10.0.0.0", "cidr": 29}}
	    ],
	    "operating_system_version": {"os_slug": "windows_2019", "image_tag": "t", "license_activation": {"state": "unlicensed"}}
	  }
	}`

	ds, err := ParseDesiredState([]byte(doc))
	require.NoError(t, err)

	m, err := NewMetadata(ds, phoneHome)
	require.NoError(t, err)

	b, err := m.Marshal()
	require.NoError(t, err)

	got := map[string]any{}
	require.NoError(t, json.Unmarshal(b, &got))

	os := got["operating_system"].(map[string]any)
	assert.Equal(t, "windows_2019", os["slug"])
	assert.Equal(t, "windows_2019", os["os_slug"])
	assert.Equal(t, "t", os["image_tag"])
	assert.Equal(t, map[string]any{"state": "unlicensed"}, os["license_activation"])

	addresses := got["network"].(map[string]any)["addresses"].([]any)
	require.Len(t, addresses, 1)

	address := addresses[0].(map[string]any)
	assert.Equal(t, true, address["enabled"])
	assert.Equal(t, map[string]any{"network": "10.0.0.0", "cidr": float64(29)}, address["parent_block"])

	// absent members are encoded the way the installer expects them
	assert.Equal(t, "", got["storage"])
	assert.Nil(t, got["password_hash"])
	assert.Contains(t, got, "password_hash")
	assert.Nil(t, got["services"])
}

func TestMetadataServices(t *testing.T) {
	for _, services := range []string{`["osie"]`, `{"osie":"https://example.net/osie.tar.gz"}`} {
		doc := `{"id": "hw", "state": "provisioning", "network_ports": [],
		  "instance": {"id": "i", "operating_system_version": {"os_slug": "ubuntu_22_04"}, "services": ` + services + `}}`

		ds, err := ParseDesiredState([]byte(doc))
		require.NoError(t, err)

		m, err := NewMetadata(ds, phoneHome)
		require.NoError(t, err)

		b, err := m.Marshal()
		require.NoError(t, err)

		got := map[string]json.RawMessage{}
		require.NoError(t, json.Unmarshal(b, &got))
		assert.JSONEq(t, services, string(got["services"]))
	}
}

func TestMetadataMarshalError(t *testing.T) {
	m := &Metadata{Storage: math.Inf(1)}

	_, err := m.Marshal()
	assert.ErrorIs(t, err, ErrMetadata)
}
