package device

import "context"

// Milliwatts is an instantaneous power reading in device-native units.
type Milliwatts int64

// Credentials identify the device account used to open a connection.
type Credentials struct {
	Username string
	Password string
}

// Port is the capability to open a connection to a power-metering device.
// Implementations must honor the deadline carried by ctx; the caller bounds
// every connect attempt with its own timeout.
type Port interface {
	Connect(ctx context.Context, address string, creds Credentials) (Conn, error)
}

// Conn is an open device connection that can deliver one instantaneous
// power reading per call. A Conn is used from a single goroutine.
type Conn interface {
	ReadPower(ctx context.Context) (Milliwatts, error)
	Close() error
}
