package model

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const preinstallSentinel = "preinstall"

var (
	ErrMetadata = errors.New("metadata error")
)

// Metadata is the flattened descriptor handed to the installer in the metadata file.
//
// nolint:govet // fieldalignment - struct is better readable in its current form.
type Metadata struct {
	Class           string          `json:"class"`
	Facility        string          `json:"facility"`
	Hostname        string          `json:"hostname"`
	ID              string          `json:"id"`
	Network         Network         `json:"network"`
	OperatingSystem OperatingSystem `json:"operating_system"`
	PasswordHash    *string         `json:"password_hash"`
	PhoneHomeURL    string          `json:"phone_home_url"`
	Plan            string          `json:"plan"`
	Services        *Services       `json:"services"`
	State           State           `json:"state"`
	Storage         any             `json:"storage"`
}

type Network struct {
	Addresses  []IPAddress        `json:"addresses"`
	Bonding    Bonding            `json:"bonding"`
	Interfaces []NetworkInterface `json:"interfaces"`
}

type Bonding struct {
	Mode int `json:"mode"`
}

type NetworkInterface struct {
	Bond string `json:"bond"`
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// NewMetadata builds the installer metadata from the desired state document.
//
// When the document carries no instance, a placeholder preinstall instance is
// derived from the preinstalled operating system.
func NewMetadata(ds *DesiredState, phoneHomeURL string) (Metadata, error) {
	instance := ds.Instance
	if instance == nil {
		if ds.PreinstalledOS == nil {
			return Metadata{}, errors.Wrap(ErrMetadata, "no instance and no preinstalled operating system")
		}

		instance = &Instance{
			ID:                  preinstallSentinel,
			Hostname:            preinstallSentinel,
			CryptedRootPassword: preinstallSentinel,
			IPAddresses:         []IPAddress{},
			OperatingSystem:     ds.PreinstalledOS.OperatingSystem,
			Storage:             ds.PreinstalledOS.Storage,
		}
	}

	os := instance.OperatingSystem
	os.Slug = os.OSSlug

	addresses := instance.IPAddresses
	if addresses == nil {
		addresses = []IPAddress{}
	}

	var passwordHash *string
	if hash := instance.CryptedRootPassword; hash != "" {
		passwordHash = &hash
	}

	// the installer expects an empty string when no layout was given
	storage := instance.Storage
	if storage == nil {
		storage = ""
	}

	interfaces := []NetworkInterface{}
	for _, p := range ds.NetworkPorts {
		if p.Type != "data" {
			continue
		}

		interfaces = append(interfaces, NetworkInterface{Bond: p.Data.Bond, MAC: p.Data.MAC, Name: p.Name})
	}

	return Metadata{
		Class:    ds.PlanSlug,
		Facility: ds.FacilityCode,
		Hostname: instance.Hostname,
		ID:       instance.ID,
		Network: Network{
			Addresses:  addresses,
			Bonding:    Bonding{Mode: ds.BondingMode},
			Interfaces: interfaces,
		},
		OperatingSystem: os,
		PasswordHash:    passwordHash,
		PhoneHomeURL:    phoneHomeURL,
		Plan:            ds.PlanSlug,
		Services:        instance.Services,
		State:           ds.State,
		Storage:         storage,
	}, nil
}

// WithState returns a copy of the metadata with the state replaced.
func (m Metadata) WithState(state State) Metadata {
	m.State = state
	return m
}

// Marshal returns the JSON encoded metadata.
func (m *Metadata) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(ErrMetadata, err.Error())
	}

	return b, nil
}
