package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders Default as a toml document that Load accepts unchanged.
func Template() ([]byte, error) {
	def := Default()
	file := File{
		Peer:           def.Session.Peer,
		Codec:          def.Session.Codec,
		DialTimeout:    def.Session.DialTimeout.String(),
		WriteTimeout:   def.Session.WriteTimeout.String(),
		RequestTimeout: def.Session.RequestTimeout.String(),
		Reconnect: ReconnectFile{
			Delay:      def.Session.Reconnect.InitialDelay.String(),
			Multiplier: def.Session.Reconnect.Multiplier,
			MaxDelay:   def.Session.Reconnect.MaxDelay.String(),
			Jitter:     def.Session.Reconnect.Jitter,
		},
		Transport: TransportFile{
			Kind:          string(def.Transport.Kind),
			Command:       def.Session.Peer,
			Args:          []string{def.Session.Peer},
			MaxReadBytes:  def.Transport.Limits.MaxReadBytes,
			MaxWriteBytes: def.Transport.Limits.MaxWriteBytes,
		},
		Admin: AdminFile{
			Listen:      "127.0.0.1:7070",
			CorsOrigins: def.Admin.CorsOrigins,
		},
		Log: LogFile{Level: def.Log.Level},
	}
	body, err := toml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return append([]byte(templateHeader), body...), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, template, 0o600)
}

const templateHeader = `# dlportctl configuration
# transport.kind: exec | unix | tcp | ws
# request_timeout "0s" waits for a reply until the channel drops.

`
