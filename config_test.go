package cardreset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		c, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, int64(2_000_000), c.SPI.Hertz)
		assert.Equal(t, 200*time.Millisecond, c.SettleDelay.Std())
		assert.Equal(t, "info", c.LogLevel)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeTemp(t, "config.yaml", `
spi:
  port: "SPI0.0"
  hertz: 1000000
pins:
  card_detect: GPIO5
log_level: debug
settle_delay: 500ms
`)
		c, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "SPI0.0", c.SPI.Port)
		assert.Equal(t, int64(1_000_000), c.SPI.Hertz)
		assert.Equal(t, "GPIO5", c.Pins.CardDetect)
		assert.Equal(t, "debug", c.LogLevel)
		assert.Equal(t, 500*time.Millisecond, c.SettleDelay.Std())
		// Untouched keys keep their defaults.
		assert.Equal(t, "GPIO17", c.SPI.CSPin)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadProfiles(t *testing.T) {
	path := writeTemp(t, "profiles.yaml", `
profiles:
  - name: patch-card
    fingerprint: b2dcb5077c68d2d540de10459a0618232a2117d348ac10f2898fb15c61468482
    id_region: {addr: 0x10, len: 0x22}
    flash_id: c22016
    protect_mask: 0x3c
    serial_region: {addr: 0x40, len: 0x04}
    patches:
      "01020304":
        orig_checksum: 0x7cf8
        new_checksum: 0x7cf9
        checksum_addr: 0x1000
        pages:
          - addr: 0x30000
            edits:
              - {off: 0x10, data: "cafe"}
          - addr: 0x30100
            edits:
              - {off: 0x00, data: "55"}
`)
	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, "patch-card", p.Name)
	assert.Equal(t, Region{Addr: 0x10, Len: 0x22}, p.IDRegion)
	require.NotNil(t, p.FlashID)
	assert.Equal(t, FlashID{0xC2, 0x20, 0x16}, *p.FlashID)
	assert.Equal(t, DefaultProtectMask, p.ProtectMask)

	st, ok := p.Strategy.(*PatchStrategy)
	require.True(t, ok)
	assert.Equal(t, Region{Addr: 0x40, Len: 0x04}, st.SerialRegion)

	ps := st.Variants["01020304"]
	require.NotNil(t, ps)
	assert.Equal(t, uint16(0x7CF8), ps.OrigChecksum)
	assert.Equal(t, uint16(0x7CF9), ps.NewChecksum)
	assert.Equal(t, 0x1000, ps.ChecksumAddr)
	require.Len(t, ps.Pages, 2)
	assert.Equal(t, []byte{0xCA, 0xFE}, ps.Pages[0].Edits[0].Data)
}

func TestLoadProfilesRejectsBadData(t *testing.T) {
	testCases := []struct {
		desc string
		yaml string
	}{
		{
			desc: "bad fingerprint",
			yaml: `
profiles:
  - name: x
    fingerprint: zz
    id_region: {addr: 0, len: 1}
    serial_region: {addr: 0, len: 1}
`,
		},
		{
			desc: "bad flash id",
			yaml: `
profiles:
  - name: x
    fingerprint: b2dcb5077c68d2d540de10459a0618232a2117d348ac10f2898fb15c61468482
    flash_id: c220
    id_region: {addr: 0, len: 1}
    serial_region: {addr: 0, len: 1}
`,
		},
		{
			desc: "out-of-order pages",
			yaml: `
profiles:
  - name: x
    fingerprint: b2dcb5077c68d2d540de10459a0618232a2117d348ac10f2898fb15c61468482
    id_region: {addr: 0, len: 1}
    serial_region: {addr: 0, len: 1}
    patches:
      "00":
        orig_checksum: 1
        new_checksum: 2
        checksum_addr: 0x1000
        pages:
          - addr: 0x30100
            edits: [{off: 0, data: "01"}]
          - addr: 0x30000
            edits: [{off: 0, data: "02"}]
`,
		},
		{
			desc: "checksum straddles the program unit",
			yaml: `
profiles:
  - name: x
    fingerprint: b2dcb5077c68d2d540de10459a0618232a2117d348ac10f2898fb15c61468482
    id_region: {addr: 0, len: 1}
    serial_region: {addr: 0, len: 1}
    patches:
      "00":
        orig_checksum: 1
        new_checksum: 2
        checksum_addr: 0x10ff
        pages:
          - addr: 0x30000
            edits: [{off: 0, data: "01"}]
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := LoadProfiles(writeTemp(t, "p.yaml", tc.yaml))
			assert.Error(t, err)
		})
	}
}
