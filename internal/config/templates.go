package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Template returns a commented config file holding the defaults.
func Template() string {
	return defaultTemplate
}

// WriteTemplate writes Template to path, creating parent directories.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `# clowdctl configuration
address = "clowd.xyz:12998"
log_level = "info"

connect_timeout = "10s"
handshake_timeout = "10s"
# "0" waits for the final COMPLETE without a bound.
complete_timeout = "2m"
write_timeout = "30s"
# How long an idle connection is kept for reuse.
idle_timeout = "10s"
max_connect_attempts = 1
dscp = 0
no_delay = true
max_payload_bytes = 67108864

[tls]
enabled = false
ca_file = ""
server_name = ""
insecure_skip_verify = false

[login]
username = ""
# Either a plain password or the 32-character client hash.
password = ""
password_hash = ""

[upload]
direct = false
view_limit = 0
valid_for = "0"
`
