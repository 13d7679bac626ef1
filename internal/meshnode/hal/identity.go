package hal

import (
	"os"
	"strconv"
	"strings"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/pkg/log"
)

// GitSHA is the short commit of the running build, set with
// -ldflags "-X github.com/autopeer-io/meshnode/internal/meshnode/hal.GitSHA=1a2b3c4d".
var GitSHA = "00000000"

const (
	nodeIDEnv  = "MESHNODE_NODE_ID"
	nodeIDFile = "/etc/meshnode/node-id"
)

type identity struct {
	nodeID  uint64
	info    core.DeviceInfo
	version string
	name    string
}

var _ core.Identity = (*identity)(nil)

func (i *identity) NodeID() uint64              { return i.nodeID }
func (i *identity) BuildID() uint32             { return i.info.GitSHA }
func (i *identity) DeviceInfo() core.DeviceInfo { return i.info }
func (i *identity) Version() string             { return i.version }
func (i *identity) DeviceName() string          { return i.name }

// DiscoverNodeID returns the node id from, in order, the explicit value, the
// MESHNODE_NODE_ID environment variable and /etc/meshnode/node-id. Zero means
// none was found.
func DiscoverNodeID(explicit string) uint64 {
	candidates := []struct {
		source string
		value  func() string
	}{
		{"flag", func() string { return explicit }},
		{"env", func() string { return os.Getenv(nodeIDEnv) }},
		{"file", func() string {
			content, err := os.ReadFile(nodeIDFile)
			if err != nil {
				return ""
			}
			return string(content)
		}},
	}

	for _, c := range candidates {
		v := strings.TrimSpace(c.value())
		if v == "" {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
		if err != nil || id == 0 {
			log.Warn("Ignoring invalid node id", "source", c.source, "value", v)
			continue
		}
		log.Info("Node id discovered", "source", c.source, "nodeID", id)
		return id
	}

	return 0
}

// parseGitSHA reads the leading 8 hex digits of sha.
func parseGitSHA(sha string) uint32 {
	if len(sha) > 8 {
		sha = sha[:8]
	}
	v, err := strconv.ParseUint(sha, 16, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// parseVersion reads "major.minor.patch" with an optional leading v.
func parseVersion(s string) (major, minor, patch uint8) {
	parts := strings.SplitN(strings.TrimPrefix(s, "v"), ".", 3)
	out := [3]uint8{}
	for i, p := range parts {
		// Drop pre-release and build suffixes such as "3-rc1".
		if j := strings.IndexAny(p, "-+"); j >= 0 {
			p = p[:j]
		}
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			break
		}
		out[i] = uint8(v)
	}
	return out[0], out[1], out[2]
}
