package reconcile

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PacketImagesRepo is the repository the preinstalled images are built from.
const PacketImagesRepo = "https://github.com/packethost/packet-images"

var (
	servicesLineRe = regexp.MustCompile(`^\s*#\s*services=({.*"osie"\s*:\s*".*})$`)

	// kept in sync with the installer userdata parsing
	imageRepoRe = regexp.MustCompile(`\bimage_repo=(\S+)`)
	imageTagRe  = regexp.MustCompile(`\bimage_tag=(\S+)`)
)

// slugTag returns the os_slug:image_tag identity of an operating system.
func slugTag(os *model.OperatingSystem) (string, error) {
	if os.OSSlug == "" {
		return "", errors.Wrap(ErrHandler, "required field missing from desired state, key=os_slug")
	}

	return os.OSSlug + ":" + os.ImageTag, nil
}

// tagDiffers returns true when the preinstalled image is not the image the instance asks for.
func tagDiffers(pre *model.OperatingSystem, target *model.OperatingSystem) (differs bool, preTag, targetTag string, err error) {
	preTag, err = slugTag(pre)
	if err != nil {
		return false, "", "", err
	}

	targetTag, err = slugTag(target)
	if err != nil {
		return false, "", "", err
	}

	return preTag != targetTag, preTag, targetTag, nil
}

// storageDiffers returns true when the storage layouts are not structurally equal.
func storageDiffers(pre, target any) bool {
	return !cmp.Equal(pre, target)
}

// customImage returns the repo#tag image requested in the userdata, if any.
func customImage(userdata string) string {
	repo := imageRepoRe.FindStringSubmatch(userdata)
	tag := imageTagRe.FindStringSubmatch(userdata)

	if repo == nil || tag == nil {
		return ""
	}

	return repo[1] + "#" + tag[1]
}

// wantsCustomImage returns true when the userdata requests an image other than the preinstalled one.
func wantsCustomImage(pre *model.OperatingSystem, userdata model.UserData) (wants bool, custom, preinstalled string) {
	if userdata == "" {
		return false, "", ""
	}

	custom = customImage(string(userdata))
	preinstalled = PacketImagesRepo + "#" + pre.ImageTag

	return custom != "" && custom != preinstalled, custom, preinstalled
}

// wantsCustomOSIE returns true when the instance asks for a custom installer environment.
//
// The services field takes precedence, the userdata is only scanned for
// a services line when the field is empty.
func wantsCustomOSIE(instance *model.Instance) (bool, error) {
	if instance.Services.Len() > 0 {
		return instance.Services.Has("osie"), nil
	}

	if instance.UserData == "" {
		return false, nil
	}

	for _, line := range strings.Split(string(instance.UserData), "\n") {
		match := servicesLineRe.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
		if match == nil {
			continue
		}

		services := map[string]any{}
		if err := json.Unmarshal([]byte(match[1]), &services); err != nil {
			return false, errors.Wrap(ErrHandler, "userdata services line: "+err.Error())
		}

		_, exists := services["osie"]

		return exists, nil
	}

	return false, nil
}

// mismatch returns true when the preinstalled OS cannot be used as is for the instance.
func mismatch(le *logrus.Entry, pre *model.PreinstalledOS, instance *model.Instance) (bool, error) {
	differs, preTag, targetTag, err := tagDiffers(&pre.OperatingSystem, &instance.OperatingSystem)
	if err != nil {
		return false, err
	}

	if differs {
		le.WithFields(logrus.Fields{
			"preinstalled": preTag,
			"instance":     targetTag,
		}).Info("preinstalled does not match instance selection")

		return true, nil
	}

	if storageDiffers(pre.Storage, instance.Storage) {
		le.WithFields(logrus.Fields{
			"preinstalled": pre.Storage,
			"instance":     instance.Storage,
		}).Info("preinstalled storage does not match instance storage")

		return true, nil
	}

	if wants, custom, preinstalled := wantsCustomImage(&pre.OperatingSystem, instance.UserData); wants {
		le.WithFields(logrus.Fields{
			"customRepoTag":       custom,
			"preinstalledRepoTag": preinstalled,
		}).Info("using custom image")

		return true, nil
	}

	return false, nil
}
