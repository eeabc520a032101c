// Package locator determines a user's position from a device report, falling back to an IP
// lookup.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/compass/internal/geocoding"
	"github.com/UnknownOlympus/compass/internal/models"
)

// ErrNoDeviceFix is reported when the client sent neither coordinates nor an error.
var ErrNoDeviceFix = errors.New("device reported no position")

// Resolution is the tagged outcome of locating a user.
type Resolution struct {
	Source      models.LocationSource
	Coordinates models.Coordinates
	DeviceErr   error // why the device path was skipped; nil for SourceDevice
	Err         error // set only for SourceFailed
}

// Resolver prefers the device position and falls back to an IP lookup.
type Resolver struct {
	ip      geocoding.IPLocator
	timeout time.Duration
	log     *slog.Logger
}

// NewResolver returns a Resolver. A non-positive timeout disables the lookup deadline.
func NewResolver(ip geocoding.IPLocator, timeout time.Duration, log *slog.Logger) *Resolver {
	return &Resolver{ip: ip, timeout: timeout, log: log}
}

// Resolve never returns an error; failures are reported as SourceFailed.
func (r *Resolver) Resolve(ctx context.Context, device models.DeviceReport, clientIP string) Resolution {
	deviceErr := checkDevice(device)
	if deviceErr == nil {
		return Resolution{Source: models.SourceDevice, Coordinates: *device.Coordinates}
	}

	r.log.WarnContext(ctx, "Device location unavailable, falling back to IP", "reason", deviceErr)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	coords, err := r.ip.Locate(ctx, clientIP)
	if err != nil {
		r.log.ErrorContext(ctx, "IP location lookup failed", "ip", clientIP, "error", err)
		return Resolution{
			Source:    models.SourceFailed,
			DeviceErr: deviceErr,
			Err:       fmt.Errorf("ip lookup: %w", err),
		}
	}

	return Resolution{Source: models.SourceIP, Coordinates: *coords, DeviceErr: deviceErr}
}

func checkDevice(device models.DeviceReport) error {
	switch {
	case device.Error != "":
		return errors.New(device.Error)
	case device.Coordinates == nil:
		return ErrNoDeviceFix
	case !device.Coordinates.Valid():
		return fmt.Errorf("%w: device sent %s", geocoding.ErrInvalidCoords, device.Coordinates)
	default:
		return nil
	}
}
