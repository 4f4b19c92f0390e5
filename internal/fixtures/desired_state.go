package fixtures

import (
	"github.com/jinzhu/copier"
	"github.com/metal-toolbox/osie-runner/internal/model"
)

const (
	HardwareID   = "fb0e2ad6-0b7e-4e1e-a2c6-2bd5f2d2a7f1"
	InstanceID   = "4b6a4a2c-9c0b-4b7e-8d5e-2f9f6d3f8a10"
	PhoneHomeURL = "http://tinkerbell.example.net/phone-home"
)

var (
	// PreinstallingState is a machine being imaged ahead of any assignment.
	PreinstallingState = &model.DesiredState{
		ID:           HardwareID,
		State:        model.StatePreinstalling,
		FacilityCode: "ewr1",
		PlanSlug:     "c3.small.x86",
		BondingMode:  4,
		NetworkPorts: []model.NetworkPort{
			{Type: "data", Name: "eth0", Data: model.NetworkPortData{MAC: "b8:ce:f6:01:02:03", Bond: "bond0"}},
			{Type: "data", Name: "eth1", Data: model.NetworkPortData{MAC: "b8:ce:f6:01:02:04", Bond: "bond0"}},
			{Type: "ipmi", Name: "ipmi0", Data: model.NetworkPortData{MAC: "b8:ce:f6:01:02:05"}},
		},
		PreinstalledOS: &model.PreinstalledOS{
			OperatingSystem: model.OperatingSystem{
				OSSlug:   "ubuntu_22_04",
				ImageTag: "2c7e1e2f0d",
				Distro:   "ubuntu",
				Version:  "22.04",
			},
			Storage: map[string]any{
				"disks": []any{
					map[string]any{"device": "/dev/sda", "wipeTable": true},
				},
			},
		},
	}

	// ProvisioningState is an assigned machine whose instance matches the preinstalled image.
	ProvisioningState = &model.DesiredState{
		ID:           HardwareID,
		State:        model.StateProvisioning,
		FacilityCode: "ewr1",
		PlanSlug:     "c3.small.x86",
		BondingMode:  4,
		NetworkPorts: []model.NetworkPort{
			{Type: "data", Name: "eth0", Data: model.NetworkPortData{MAC: "b8:ce:f6:01:02:03", Bond: "bond0"}},
			{Type: "data", Name: "eth1", Data: model.NetworkPortData{MAC: "b8:ce:f6:01:02:04", Bond: "bond0"}},
		},
		PreinstalledOS: &model.PreinstalledOS{
			OperatingSystem: model.OperatingSystem{
				OSSlug:   "ubuntu_22_04",
				ImageTag: "2c7e1e2f0d",
			},
			Storage: map[string]any{
				"disks": []any{
					map[string]any{"device": "/dev/sda", "wipeTable": true},
				},
			},
		},
		Instance: &model.Instance{
			ID:                  InstanceID,
			Hostname:            "node-1",
			State:               "provisioning",
			CryptedRootPassword: "$6$salt$hash",
			IPAddresses: []model.IPAddress{
				{Address: "10.1.2.3", AddressFamily: 4, CIDR: 31, Gateway: "10.1.2.2", Public: false, Management: true},
			},
			OperatingSystem: model.OperatingSystem{
				OSSlug:   "ubuntu_22_04",
				ImageTag: "2c7e1e2f0d",
			},
			Storage: map[string]any{
				"disks": []any{
					map[string]any{"device": "/dev/sda", "wipeTable": true},
				},
			},
			NetworkReady: true,
		},
	}
)

func copyState(src *model.DesiredState) *model.DesiredState {
	dst := &model.DesiredState{}

	copyOptions := copier.Option{IgnoreEmpty: true, DeepCopy: true}

	err := copier.CopyWithOption(dst, src, copyOptions)
	if err != nil {
		panic(err)
	}

	return dst
}

// NewPreinstallingState returns a copy of the PreinstallingState fixture.
func NewPreinstallingState() *model.DesiredState {
	return copyState(PreinstallingState)
}

// NewProvisioningState returns a copy of the ProvisioningState fixture.
func NewProvisioningState() *model.DesiredState {
	return copyState(ProvisioningState)
}
