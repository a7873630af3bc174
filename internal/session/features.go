package session

import (
	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
)

// Features records optional capabilities of the remote end. It is derived
// once from the negotiated capabilities and never probed again.
type Features struct {
	JavaScript        bool
	Screenshots       bool
	Rotation          bool
	WebStorage        bool
	LocationContext   bool
	NetworkConnection bool
	// Debugger is set when the capabilities advertise a debugging endpoint.
	Debugger bool
}

// DeriveFeatures reads the feature flags out of caps. The standardized
// dialect dropped javascriptEnabled and takesScreenshot because every
// conforming remote end supports both.
func DeriveFeatures(caps map[string]any, d command.Dialect) Features {
	_, debugger := cdp.EndpointFromCapabilities(caps)
	f := Features{
		JavaScript:        boolCap(caps, "javascriptEnabled"),
		Screenshots:       boolCap(caps, "takesScreenshot"),
		Rotation:          boolCap(caps, "rotatable"),
		WebStorage:        boolCap(caps, "webStorageEnabled"),
		LocationContext:   boolCap(caps, "locationContextEnabled"),
		NetworkConnection: boolCap(caps, "networkConnectionEnabled"),
		Debugger:          debugger,
	}
	if d == command.DialectW3C {
		f.JavaScript = true
		f.Screenshots = true
	}
	return f
}

func boolCap(caps map[string]any, key string) bool {
	v, _ := caps[key].(bool)
	return v
}
