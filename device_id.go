package session

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

var deviceIdentifier = struct {
	once sync.Once
	id   string
}{}

// DeviceIdentifier returns a stable identifier for this installation:
// a UUID derived from the hardware fingerprint when one is available,
// otherwise a random UUID that stays stable for the process lifetime.
// Mobile shells override this through the gateway option; this resolver
// covers desktop/server hosts.
func DeviceIdentifier() string {
	deviceIdentifier.once.Do(func() {
		if fp := hardwareFingerprint(); fp != "" {
			if id, err := hashid.NewUUID(fp); err == nil {
				deviceIdentifier.id = id.String()
				return
			}
		}
		deviceIdentifier.id = uuid.NewString()
	})
	return deviceIdentifier.id
}

func hardwareFingerprint() string {
	switch runtime.GOOS {
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id", "/sys/class/dmi/id/product_uuid"} {
			if raw, err := os.ReadFile(path); err == nil {
				if id := strings.TrimSpace(string(raw)); id != "" {
					return id
				}
			}
		}
	}

	host, err := os.Hostname()
	if err != nil || host == "" || host == "localhost" {
		return ""
	}
	return host
}
