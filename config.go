package cardreset

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration of the reset device.
type Config struct {
	SPI struct {
		// Port is the spireg port name; empty selects the first available.
		Port  string `yaml:"port"`
		Hertz int64  `yaml:"hertz"`
		CSPin string `yaml:"cs_pin"`
	} `yaml:"spi"`

	Pins struct {
		// CardDetect reads low while a card is present.
		CardDetect string `yaml:"card_detect"`
		LEDGreen   string `yaml:"led_green"`
		LEDRed     string `yaml:"led_red"`
	} `yaml:"pins"`

	// SettleDelay is waited after a card-present transition before the
	// first bus access, in case the card is still being seated.
	SettleDelay Duration `yaml:"settle_delay"`

	// PollInterval paces the card-presence polling loop.
	PollInterval Duration `yaml:"poll_interval"`

	LogLevel string `yaml:"log_level"`

	// ProfileFile optionally adds patch profiles to the builtin set.
	ProfileFile string `yaml:"profile_file"`
}

// Duration is a time.Duration that unmarshals from YAML scalars like
// "200ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	td, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", value.Value, err)
	}
	*d = Duration(td)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func DefaultConfig() Config {
	var c Config
	c.SPI.Hertz = 2_000_000
	c.SPI.CSPin = "GPIO17"
	c.Pins.CardDetect = "GPIO20"
	c.Pins.LEDGreen = "GPIO25"
	c.Pins.LEDRed = "GPIO1"
	c.SettleDelay = Duration(200 * time.Millisecond)
	c.PollInterval = Duration(50 * time.Millisecond)
	c.LogLevel = "info"
	return c
}

// LoadConfig reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// Patch profiles are authored in YAML so new card variants ship as data:
//
//	profiles:
//	  - name: example
//	    fingerprint: <hex sha-256 of the ID region content>
//	    id_region: {addr: 0x10, len: 0x22}
//	    flash_id: c22016
//	    protect_mask: 0x3c
//	    serial_region: {addr: 0x32, len: 0x08}
//	    patches:
//	      "0102030405060708":
//	        orig_checksum: 0x7cf8
//	        new_checksum: 0x7cf9
//	        checksum_addr: 0x1000
//	        pages:
//	          - addr: 0x30000
//	            edits:
//	              - {off: 0x10, data: "00000000"}
type profileFile struct {
	Profiles []profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	Name         string               `yaml:"name"`
	Fingerprint  string               `yaml:"fingerprint"`
	IDRegion     regionSpec           `yaml:"id_region"`
	FlashID      string               `yaml:"flash_id"`
	ProtectMask  byte                 `yaml:"protect_mask"`
	SerialRegion regionSpec           `yaml:"serial_region"`
	Patches      map[string]patchSpec `yaml:"patches"`
}

type regionSpec struct {
	Addr int `yaml:"addr"`
	Len  int `yaml:"len"`
}

func (r regionSpec) region() Region { return Region{Addr: r.Addr, Len: r.Len} }

type patchSpec struct {
	OrigChecksum uint16     `yaml:"orig_checksum"`
	NewChecksum  uint16     `yaml:"new_checksum"`
	ChecksumAddr int        `yaml:"checksum_addr"`
	Pages        []pageSpec `yaml:"pages"`
}

type pageSpec struct {
	Addr  int        `yaml:"addr"`
	Edits []editSpec `yaml:"edits"`
}

type editSpec struct {
	Off  int    `yaml:"off"`
	Data string `yaml:"data"` // hex
}

// LoadProfiles parses a patch profile file into card profiles. The result
// still goes through NewRegistry's validation.
func LoadProfiles(path string) ([]*CardProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf profileFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	profiles := make([]*CardProfile, 0, len(pf.Profiles))
	for _, spec := range pf.Profiles {
		p, err := spec.profile()
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", spec.Name, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (spec profileSpec) profile() (*CardProfile, error) {
	p := &CardProfile{
		Name:        spec.Name,
		IDRegion:    spec.IDRegion.region(),
		ProtectMask: spec.ProtectMask,
	}

	fp, err := hex.DecodeString(spec.Fingerprint)
	if err != nil || len(fp) != len(p.Fingerprint) {
		return nil, fmt.Errorf("bad fingerprint %q", spec.Fingerprint)
	}
	copy(p.Fingerprint[:], fp)

	if spec.FlashID != "" {
		id, err := hex.DecodeString(spec.FlashID)
		if err != nil || len(id) != 3 {
			return nil, fmt.Errorf("bad flash ID %q", spec.FlashID)
		}
		fid := FlashID(id)
		p.FlashID = &fid
	}

	st := &PatchStrategy{
		SerialRegion: spec.SerialRegion.region(),
		Variants:     make(map[string]*PatchSet, len(spec.Patches)),
	}
	for serial, ps := range spec.Patches {
		set, err := ps.patchSet()
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", serial, err)
		}
		st.Variants[serial] = set
	}
	p.Strategy = st
	return p, nil
}

func (ps patchSpec) patchSet() (*PatchSet, error) {
	set := &PatchSet{
		OrigChecksum: ps.OrigChecksum,
		NewChecksum:  ps.NewChecksum,
		ChecksumAddr: ps.ChecksumAddr,
	}
	for _, pg := range ps.Pages {
		page := Page{Addr: pg.Addr}
		for _, e := range pg.Edits {
			data, err := hex.DecodeString(e.Data)
			if err != nil {
				return nil, fmt.Errorf("page 0x%06X: bad edit data %q", pg.Addr, e.Data)
			}
			page.Edits = append(page.Edits, ByteEdit{Off: e.Off, Data: data})
		}
		set.Pages = append(set.Pages, page)
	}
	return set, set.Validate()
}
