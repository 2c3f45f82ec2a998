// Package config loads the user's drive/image configuration from a TOML
// file, adapted from the teacher's config package: same embedded-default,
// per-OS config path and global selected-drive state, extended with the
// Format fields a real drive profile needs (data rate, encoding,
// interleave/skew, gap3 and fill byte) instead of just geometry.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/format"
)

//go:embed floppy.toml
var defaultConfigData []byte

// Global state for the selected drive, matching the teacher's package
// shape: one process talks to one drive at a time.
var (
	DriveName string
	Cyls      int
	Heads     int
	RPM       int
	MaxKBps   int
	Images    []string
	ImageMap  map[string]string

	selectedFormat format.Format
)

// Config is the entire TOML configuration structure.
type Config struct {
	Default string  `toml:"default"`
	Drive   []Drive `toml:"drive"`
	Image   []Image `toml:"image"`
}

// Drive describes one floppy drive profile: its physical geometry plus
// the Format fields needed to schedule sectors and drive the encoder.
type Drive struct {
	Name    string   `toml:"name"`
	Cyls    int      `toml:"cyls"`
	Heads   int      `toml:"heads"`
	RPM     int      `toml:"rpm"`
	MaxKBps int      `toml:"maxkbps"`
	Images  []string `toml:"images"`

	SectorsPerTrack int    `toml:"sectors_per_track"`
	SizeCode        int    `toml:"size_code"`
	BaseID          int    `toml:"base_id"`
	Interleave      int    `toml:"interleave"`
	Skew            int    `toml:"skew"`
	Gap3            int    `toml:"gap3"`
	Fill            int    `toml:"fill"`
	DataRate        string `toml:"datarate"`
	Encoding        string `toml:"encoding"`
}

// Image is a built-in image name -> filename mapping.
type Image struct {
	Name string `toml:"name"`
	File string `toml:"file"`
}

func parseDataRate(s string) chs.DataRate {
	switch s {
	case "250k":
		return chs.DataRate250K
	case "300k":
		return chs.DataRate300K
	case "500k":
		return chs.DataRate500K
	case "1m":
		return chs.DataRate1M
	default:
		return chs.DataRateUnknown
	}
}

func parseEncoding(s string) chs.Encoding {
	switch s {
	case "mfm":
		return chs.EncodingMFM
	case "fm":
		return chs.EncodingFM
	case "amiga":
		return chs.EncodingAmiga
	case "gcr":
		return chs.EncodingGCR
	default:
		return chs.EncodingMFM
	}
}

// Format converts this TOML drive profile into a format.Format.
func (d Drive) Format() format.Format {
	return format.Format{
		Name:            d.Name,
		Cyls:            d.Cyls,
		Heads:           d.Heads,
		SectorsPerTrack: d.SectorsPerTrack,
		SizeCode:        d.SizeCode,
		BaseID:          d.BaseID,
		Interleave:      d.Interleave,
		Skew:            d.Skew,
		Gap3:            d.Gap3,
		Fill:            byte(d.Fill),
		DataRate:        parseDataRate(d.DataRate),
		Encoding:        parseEncoding(d.Encoding),
		FDC:             format.FDCPC,
	}
}

// configPath determines the config file path based on the operating system.
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "floppy")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".floppy"), nil
}

// Initialize loads and validates the configuration file, creating it from
// the embedded default on first run.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		configDir := filepath.Dir(path)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}

	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return fmt.Errorf("failed to parse TOML config at %s: %w", path, err)
	}

	if conf.Default == "" {
		return errors.New("`default` key is missing or empty in config")
	}

	var foundDrive *Drive
	for i := range conf.Drive {
		if conf.Drive[i].Name == conf.Default {
			foundDrive = &conf.Drive[i]
			break
		}
	}
	if foundDrive == nil {
		return fmt.Errorf("default drive %q not found in drive array", conf.Default)
	}

	if foundDrive.Cyls <= 0 {
		return fmt.Errorf("drive %q has invalid cyls: %d (must be positive)", conf.Default, foundDrive.Cyls)
	}
	if foundDrive.Heads <= 0 {
		return fmt.Errorf("drive %q has invalid heads: %d (must be positive)", conf.Default, foundDrive.Heads)
	}
	if foundDrive.RPM <= 0 {
		return fmt.Errorf("drive %q has invalid rpm: %d (must be positive)", conf.Default, foundDrive.RPM)
	}
	if foundDrive.MaxKBps <= 0 {
		return fmt.Errorf("drive %q has invalid maxkbps: %d (must be positive)", conf.Default, foundDrive.MaxKBps)
	}
	if foundDrive.SectorsPerTrack <= 0 {
		return fmt.Errorf("drive %q has invalid sectors_per_track: %d (must be positive)", conf.Default, foundDrive.SectorsPerTrack)
	}
	if len(foundDrive.Images) == 0 {
		return fmt.Errorf("drive %q has no images listed", conf.Default)
	}

	DriveName = conf.Default
	Cyls = foundDrive.Cyls
	Heads = foundDrive.Heads
	RPM = foundDrive.RPM
	MaxKBps = foundDrive.MaxKBps
	Images = make([]string, len(foundDrive.Images))
	copy(Images, foundDrive.Images)
	selectedFormat = foundDrive.Format()

	imageMap := make(map[string]bool)
	ImageMap = make(map[string]string)
	for _, img := range conf.Image {
		imageMap[img.Name] = true
		ImageMap[img.Name] = img.File
	}

	for _, imgName := range foundDrive.Images {
		if !imageMap[imgName] {
			return fmt.Errorf("image %q listed under drive %q not found in image array", imgName, conf.Default)
		}
	}

	return nil
}

// SelectedFormat returns the format.Format derived from the currently
// selected drive profile. Call only after a successful Initialize.
func SelectedFormat() format.Format { return selectedFormat }

// GetImageFilename returns the filename for a given image name.
func GetImageFilename(imageName string) (string, error) {
	filename, ok := ImageMap[imageName]
	if !ok {
		return "", fmt.Errorf("image %q not found in configuration", imageName)
	}
	return filename, nil
}
