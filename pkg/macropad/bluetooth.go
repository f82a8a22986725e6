package macropad

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var macAddressPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// bluetoothReconnector nudges a paired-but-absent macropad back over
// bluetooth using bluetoothctl. It looks the device's MAC address up by name
// in the paired device list, then asks the controller to connect; if the
// plain connect fails it re-trusts the device and tries once more.
type bluetoothReconnector struct {
	logger *zap.SugaredLogger
}

func newBluetoothReconnector(logger *zap.SugaredLogger) *bluetoothReconnector {
	return &bluetoothReconnector{logger: logger.Named("bluetooth")}
}

func (b *bluetoothReconnector) Reconnect(ctx context.Context, deviceName string) bool {
	mac, err := b.lookupAddress(ctx, deviceName)
	if err != nil {
		b.logger.Warnw("Failed to look up bluetooth device", "device", deviceName, "error", err)
		return false
	}
	if mac == "" {
		b.logger.Debugw("Device not in paired device list", "device", deviceName)
		return false
	}

	b.logger.Infow("Attempting bluetooth reconnect", "device", deviceName, "address", mac)

	if err := exec.CommandContext(ctx, "bluetoothctl", "connect", mac).Run(); err == nil {
		return true
	}

	// a failed connect often means trust was lost; re-trust and retry
	b.logger.Debugw("Plain connect failed, re-trusting device", "address", mac)
	if err := exec.CommandContext(ctx, "bluetoothctl", "trust", mac).Run(); err != nil {
		b.logger.Warnw("Failed to trust bluetooth device", "address", mac, "error", err)
		return false
	}

	if err := exec.CommandContext(ctx, "bluetoothctl", "connect", mac).Run(); err != nil {
		b.logger.Warnw("Bluetooth reconnect failed", "address", mac, "error", err)
		return false
	}

	return true
}

// lookupAddress parses `bluetoothctl devices` output, whose lines look like
// "Device XX:XX:XX:XX:XX:XX Some Name", and returns the MAC of the device
// with the given name, or "" if it isn't listed.
func (b *bluetoothReconnector) lookupAddress(ctx context.Context, deviceName string) (string, error) {
	out, err := exec.CommandContext(ctx, "bluetoothctl", "devices").Output()
	if err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), " ", 3)
		if len(fields) < 3 || fields[0] != "Device" {
			continue
		}

		mac, name := fields[1], fields[2]
		if !macAddressPattern.MatchString(mac) {
			continue
		}

		if name == deviceName {
			return mac, nil
		}
	}

	return "", scanner.Err()
}
