// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager defaults and advertised records
package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Test Server",
		Port:        3000,
	})
	defer mgr.Stop()

	assert.Equal(t, []string{"path=/"}, mgr.TXT())
}

func TestCustomPath(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Server", Port: 3000, Path: "/ws", Format: "16000Hz/1ch/16bit"})
	defer mgr.Stop()

	assert.Equal(t, []string{"path=/ws", "format=16000Hz/1ch/16bit"}, mgr.TXT())
}

func TestStopIsIdempotent(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Server", Port: 3000})
	mgr.Stop()
	mgr.Stop()
}
