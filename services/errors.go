package services

import "errors"

var (
	// ErrNoControlClient indicates the dashboard was built without a pull client for commands.
	ErrNoControlClient = errors.New("no control client configured")
	// ErrRequestFailed indicates the dashboard API answered with a non-2xx status.
	ErrRequestFailed = errors.New("dashboard api request failed")
	// ErrDeviceNotFound indicates the server does not know the device.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrPolicyRejected indicates the server refused to save the wear policy.
	ErrPolicyRejected = errors.New("wear policy rejected")
)
