package session

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c12stack/c12/app"
)

// fixtureFile mirrors testdata/sessions.yaml: per-fixture simulated-meter
// table contents and the reads a session performs against them.
type fixtureFile struct {
	Fixtures []struct {
		Name   string `yaml:"name"`
		Tables []struct {
			Number uint16 `yaml:"number"`
			Data   string `yaml:"data"`
		} `yaml:"tables"`
		Reads []struct {
			Table  uint16 `yaml:"table"`
			Offset uint32 `yaml:"offset"`
			Length uint16 `yaml:"length"`
			Want   string `yaml:"want"`
		} `yaml:"reads"`
	} `yaml:"fixtures"`
}

func TestSessionFixtures(t *testing.T) {
	raw, err := os.ReadFile("testdata/sessions.yaml")
	require.NoError(t, err)

	var file fixtureFile
	require.NoError(t, yaml.Unmarshal(raw, &file))
	require.NotEmpty(t, file.Fixtures)

	for _, fx := range file.Fixtures {
		t.Run(fx.Name, func(t *testing.T) {
			tables := map[uint16][]byte{}
			for _, tab := range fx.Tables {
				data, err := hex.DecodeString(tab.Data)
				require.NoError(t, err)
				tables[tab.Number] = data
			}

			s, _ := newSession(t, app.DialectC1218, &meterScript{tables: tables})
			require.NoError(t, s.Connect())
			require.NoError(t, s.StartSession())

			for _, rd := range fx.Reads {
				want, err := hex.DecodeString(rd.Want)
				require.NoError(t, err)
				got, err := s.App.ReadPartial(rd.Table, rd.Offset, rd.Length)
				require.NoError(t, err)
				require.Equal(t, want, got)
			}
			require.NoError(t, s.EndSession())
		})
	}
}
