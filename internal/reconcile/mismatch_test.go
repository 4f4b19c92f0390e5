package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagDiffers(t *testing.T) {
	tests := []struct {
		name     string
		pre      model.OperatingSystem
		target   model.OperatingSystem
		expected bool
		err      bool
	}{
		{
			"identical",
			model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
			model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
			false,
			false,
		},
		{
			"image tag differs",
			model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
			model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "def"},
			true,
			false,
		},
		{
			"image tag missing on one side",
			model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
			model.OperatingSystem{OSSlug: "ubuntu_22_04"},
			true,
			false,
		},
		{
			"both image tags missing",
			model.OperatingSystem{OSSlug: "debian_12"},
			model.OperatingSystem{OSSlug: "debian_12"},
			false,
			false,
		},
		{
			"slug differs",
			model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
			model.OperatingSystem{OSSlug: "debian_12", ImageTag: "abc"},
			true,
			false,
		},
		{
			"missing slug",
			model.OperatingSystem{ImageTag: "abc"},
			model.OperatingSystem{OSSlug: "debian_12", ImageTag: "abc"},
			false,
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			differs, _, _, err := tagDiffers(&tc.pre, &tc.target)
			if tc.err {
				assert.ErrorIs(t, err, ErrHandler)
				return
			}

			require.Nil(t, err)
			assert.Equal(t, tc.expected, differs)
		})
	}
}

func TestStorageDiffers(t *testing.T) {
	disks := func() any {
		return map[string]any{"disks": []any{map[string]any{"device": "/dev/sda"}}}
	}

	assert.False(t, storageDiffers(disks(), disks()))
	assert.False(t, storageDiffers(nil, nil))
	assert.True(t, storageDiffers(nil, map[string]any{}))
	assert.True(t, storageDiffers(disks(), map[string]any{"disks": []any{map[string]any{"device": "/dev/sdb"}}}))
}

func TestWantsCustomImage(t *testing.T) {
	pre := &model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"}

	tests := []struct {
		name     string
		userdata model.UserData
		expected bool
	}{
		{"no userdata", "", false},
		{"no image keys", "#!/bin/sh\necho hello\n", false},
		{"only repo", "image_repo=https://github.com/example/images", false},
		{"preinstalled image", "#cloud-config\n# image_repo=" + PacketImagesRepo + " image_tag=abc\n", false},
		{"custom tag", "image_repo=" + PacketImagesRepo + "\nimage_tag=def\n", true},
		{"custom repo", "image_repo=https://github.com/example/images image_tag=abc", true},
		{"keys need a word boundary", "my_image_repo=x my_image_tag=y", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wants, _, _ := wantsCustomImage(pre, tc.userdata)
			assert.Equal(t, tc.expected, wants)
		})
	}
}

func services(t *testing.T, raw string) *model.Services {
	t.Helper()

	s := &model.Services{}
	require.Nil(t, json.Unmarshal([]byte(raw), s))

	return s
}

func TestWantsCustomOSIE(t *testing.T) {
	tests := []struct {
		name     string
		instance *model.Instance
		expected bool
		err      bool
	}{
		{
			"nothing set",
			&model.Instance{},
			false,
			false,
		},
		{
			"services object has osie",
			&model.Instance{Services: services(t, `{"osie": "https://example.net/osie.tar.gz"}`)},
			true,
			false,
		},
		{
			"services list has osie",
			&model.Instance{Services: services(t, `["lldp", "osie"]`)},
			true,
			false,
		},
		{
			"services list without osie",
			&model.Instance{Services: services(t, `["lldp"]`)},
			false,
			false,
		},
		{
			"empty services list falls back to userdata",
			&model.Instance{
				Services: services(t, `[]`),
				UserData: `# services={"osie": "https://example.net/osie.tar.gz"}`,
			},
			true,
			false,
		},
		{
			"services take precedence over userdata",
			&model.Instance{
				Services: services(t, `{"lldp": "on"}`),
				UserData: `# services={"osie": "https://example.net/osie.tar.gz"}`,
			},
			false,
			false,
		},
		{
			"userdata services line",
			&model.Instance{UserData: "#!/bin/sh\n  #  services={\"osie\": \"https://example.net/osie.tar.gz\"}\r\necho hi\n"},
			true,
			false,
		},
		{
			"userdata without services line",
			&model.Instance{UserData: "#!/bin/sh\necho osie\n"},
			false,
			false,
		},
		{
			"malformed services line",
			&model.Instance{UserData: `# services={"osie": "x",}`},
			false,
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wants, err := wantsCustomOSIE(tc.instance)
			if tc.err {
				assert.ErrorIs(t, err, ErrHandler)
				return
			}

			require.Nil(t, err)
			assert.Equal(t, tc.expected, wants)
		})
	}
}

func TestMismatch(t *testing.T) {
	le := logrus.NewEntry(logrus.New())

	pre := &model.PreinstalledOS{
		OperatingSystem: model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
		Storage:         map[string]any{"disks": []any{}},
	}

	instance := &model.Instance{
		OperatingSystem: model.OperatingSystem{OSSlug: "ubuntu_22_04", ImageTag: "abc"},
		Storage:         map[string]any{"disks": []any{}},
	}

	got, err := mismatch(le, pre, instance)
	require.Nil(t, err)
	assert.False(t, got)

	instance.Storage = nil

	got, err = mismatch(le, pre, instance)
	require.Nil(t, err)
	assert.True(t, got)

	instance.OperatingSystem.OSSlug = ""

	_, err = mismatch(le, pre, instance)
	assert.ErrorIs(t, err, ErrHandler)
}
