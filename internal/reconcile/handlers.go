package reconcile

import (
	"context"
	"time"

	"github.com/metal-toolbox/osie-runner/internal/installer"
	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/metal-toolbox/osie-runner/internal/statedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// preinstalling images the preinstalled OS on a machine that is not assigned yet.
func (e *Engine) preinstalling(ctx context.Context, ds *model.DesiredState) (Outcome, error) {
	le := e.logger.WithField("hardwareID", ds.ID)

	if ds.Instance != nil {
		le.Error("handling preinstall, but an instance exists")
		return Continue, nil
	}

	md, err := model.NewMetadata(ds, e.opts.PhoneHomeURL)
	if err != nil {
		return Continue, errors.Wrap(ErrHandler, err.Error())
	}

	if err := e.writeMetadata(md); err != nil {
		return Continue, err
	}

	le = le.WithField("instanceID", md.ID)
	startTS := time.Now()

	le.Info("running installer")

	if err := e.install(ctx, ds.ID, md.ID, installArgs(false)); err != nil {
		return Continue, errors.Wrap(ErrFatal, "preinstall: "+err.Error())
	}

	le.WithField("elapsed", time.Since(startTS).String()).Info("finished")

	if ds.State == model.StatePreinstalling {
		e.notifier.Notify(ctx, model.NewInstanceEvent(ds.ID))
	}

	return Continue, nil
}

// provisioning installs the instance OS, repairing the disks first when the
// preinstalled image cannot be used.
func (e *Engine) provisioning(ctx context.Context, ds *model.DesiredState) (Outcome, error) {
	instance := ds.Instance
	if instance == nil {
		return Continue, nil
	}

	le := e.logger.WithFields(logrus.Fields{"hardwareID": ds.ID, "instanceID": instance.ID})

	if !instance.NetworkReady {
		le.WithField("networkReady", instance.NetworkReady).Info("network is not ready yet")
		return Continue, nil
	}

	customOSIE, err := wantsCustomOSIE(instance)
	if err != nil {
		return Continue, err
	}

	if customOSIE {
		le.Info("custom osie detected")

		if err := e.Wipe(ctx, ds); err != nil {
			return Exit, err
		}

		if err := e.setupReboot(le); err != nil {
			return Continue, err
		}

		return Exit, nil
	}

	if ds.PreinstalledOS == nil {
		return Continue, errors.Wrap(ErrHandler, "required field missing from desired state, key=preinstalled_operating_system_version")
	}

	repair, err := mismatch(le, ds.PreinstalledOS, instance)
	if err != nil {
		return Continue, err
	}

	md, err := model.NewMetadata(ds, e.opts.PhoneHomeURL)
	if err != nil {
		return Continue, errors.Wrap(ErrHandler, err.Error())
	}

	staged := md
	if repair {
		le.Info("temporarily overriding state to " + string(model.StateCheckEnv))
		staged = md.WithState(model.StateCheckEnv)
	}

	le.Info("writing metadata")

	if err := e.writeMetadata(staged); err != nil {
		return Continue, err
	}

	if instance.UserData != "" {
		le.Info("writing userdata")

		if err := e.store.WriteFile(model.UserdataFile, []byte(instance.UserData), statedir.ModeFile); err != nil {
			return Continue, errors.Wrap(ErrHandler, err.Error())
		}
	}

	args := installArgs(instance.UserData != "")
	startTS := time.Now()

	if repair {
		outcome, done, err := e.repair(ctx, le, ds, md, args)
		if done || err != nil {
			return outcome, err
		}

		le.Info("running install from scratch")
	} else {
		le.Info("ready to finish provision")
	}

	le.Info("sending " + model.EventTypeProvisioning + " event")
	e.notifier.Notify(ctx, model.NewProvisioningEvent())

	le.Info("running installer")

	if err := e.install(ctx, ds.ID, md.ID, args); err != nil {
		return Continue, errors.Wrap(ErrFatal, "install: "+err.Error())
	}

	le.WithField("elapsed", time.Since(startTS).String()).Info("finished")

	if e.store.IsExecutable(model.CleanupFile) {
		le.Info("exiting because osie is done")
		return Exit, nil
	}

	return Continue, nil
}

// repair wipes the disks and runs the installer in the check environment mode.
//
// done is true when the handler should return the outcome without running the final install.
func (e *Engine) repair(ctx context.Context, le *logrus.Entry, ds *model.DesiredState, md model.Metadata, args []string) (outcome Outcome, done bool, err error) {
	if err := e.Wipe(ctx, ds); err != nil {
		return Exit, true, err
	}

	err = e.install(ctx, ds.ID, md.ID, args)

	var exitErr *installer.ExitError
	if errors.As(err, &exitErr) {
		le.WithError(err).Warn("environment check failed, setting up reboot")

		if err := e.setupReboot(le); err != nil {
			return Continue, true, err
		}

		return Exit, true, nil
	}

	if err != nil {
		return Continue, true, errors.Wrap(ErrHandler, "check-env: "+err.Error())
	}

	le.Info("reverting metadata to correct state")
	le.Info("writing metadata")

	if err := e.writeMetadata(md); err != nil {
		return Continue, true, err
	}

	if e.store.Exists(model.ExtractedFile) {
		le.Info("deleting " + model.ExtractedFile + " file")

		if err := e.store.Remove(model.ExtractedFile); err != nil {
			return Continue, true, errors.Wrap(ErrHandler, err.Error())
		}
	}

	if e.store.IsExecutable(model.LoopFile) {
		le.Info("exiting because osie needs something from the host")
		return Exit, true, nil
	}

	return Continue, false, nil
}

func (e *Engine) writeMetadata(md model.Metadata) error {
	b, err := md.Marshal()
	if err != nil {
		return errors.Wrap(ErrHandler, err.Error())
	}

	if err := e.store.WriteFile(model.MetadataFile, b, statedir.ModeFile); err != nil {
		return errors.Wrap(ErrHandler, err.Error())
	}

	return nil
}

// setupReboot writes the cleanup script the host runs once the runner exits.
func (e *Engine) setupReboot(le *logrus.Entry) error {
	le.Info("setting up " + model.CleanupFile + " with reboot")

	if err := e.store.WriteFile(model.CleanupFile, []byte(model.CleanupScript), statedir.ModeExecutable); err != nil {
		return errors.Wrap(ErrHandler, err.Error())
	}

	return nil
}
