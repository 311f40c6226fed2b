package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend implements EEPROM and Flash over plain files in a directory,
// one file per logical region (an EEPROM, or one flash sector). It is the
// portable stand-in for real silicon: Replace gets its atomicity from
// write-to-temp-then-rename, and Program enforces the same "can only clear
// bits, never set them" discipline driver/otp.go enforces for one-time-
// programmable rows (there, via AddBootKey/WriteBootKey's bitwise checks;
// here, via fileFlash.Program's per-byte check).
type FileBackend struct {
	dir string
}

// NewFileBackend opens (creating if necessary) a directory to hold regions.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(region string) string {
	return filepath.Join(b.dir, region+".bin")
}

// read returns the region's current contents, all-0xFF if the region file
// does not exist yet (an unprovisioned EEPROM or never-erased sector).
func (b *FileBackend) read(region string, size int) ([]byte, error) {
	data, err := os.ReadFile(b.path(region))
	if os.IsNotExist(err) {
		erased := make([]byte, size)
		for i := range erased {
			erased[i] = 0xFF
		}
		return erased, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", region, err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("store: read %s: want %d bytes, got %d", region, size, len(data))
	}
	return data, nil
}

func (b *FileBackend) readAt(region string, size, offset int, buf []byte) error {
	data, err := b.read(region, size)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(buf) > len(data) {
		return fmt.Errorf("store: read %s: out of range", region)
	}
	copy(buf, data[offset:])
	return nil
}

// writeAtomic replaces the region file's contents in one rename, so a
// reader never observes a partially-written file.
func (b *FileBackend) writeAtomic(region string, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, region+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: %w", err)
	}
	if err := os.Rename(tmpPath, b.path(region)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// EEPROMRegion returns an EEPROM view of a fixed-size region, addressed
// logically by name (e.g. "car-eeprom", "fob-eeprom") instead of by a raw
// physical address: FileBackend has no silicon to address.
func (b *FileBackend) EEPROMRegion(region string, size int) *fileEEPROM {
	return &fileEEPROM{b: b, region: region, size: size}
}

// FlashRegion returns a Flash view of a fixed-size sector, named the way
// EEPROMRegion names its region.
func (b *FileBackend) FlashRegion(region string, size int) *fileFlash {
	return &fileFlash{b: b, region: region, size: size}
}

// WriteEEPROMOnce writes region's full contents, simulating the factory
// provisioning step that burns an EEPROM image before first boot. Runtime
// firmware code never calls this — only cmd/provision and tests do.
func (b *FileBackend) WriteEEPROMOnce(region string, data []byte) error {
	return b.writeAtomic(region, data)
}

type fileEEPROM struct {
	b      *FileBackend
	region string
	size   int
}

func (e *fileEEPROM) Read(offset int, buf []byte) error {
	return e.b.readAt(e.region, e.size, offset, buf)
}

type fileFlash struct {
	b      *FileBackend
	region string
	size   int
}

func (f *fileFlash) Read(sectorAddr uint32, buf []byte) error {
	return f.b.readAt(f.region, f.size, 0, buf)
}

func (f *fileFlash) Replace(sectorAddr uint32, data []byte) error {
	if len(data) != f.size {
		return fmt.Errorf("store: replace %s: want %d bytes, got %d", f.region, f.size, len(data))
	}
	return f.b.writeAtomic(f.region, data)
}

func (f *fileFlash) Program(sectorAddr uint32, data []byte) error {
	if len(data) != f.size {
		return fmt.Errorf("store: program %s: want %d bytes, got %d", f.region, f.size, len(data))
	}
	old, err := f.b.read(f.region, f.size)
	if err != nil {
		return err
	}
	programmed := make([]byte, f.size)
	for i := range programmed {
		if data[i]&^old[i] != 0 {
			// data wants a bit set that's already clear in the sector:
			// impossible without an erase, exactly as driver/otp.go's
			// WriteBootKey refuses a 1-flip over an already-zero OTP bit.
			return fmt.Errorf("store: program %s: %w", f.region, ErrNotErased)
		}
		programmed[i] = old[i] & data[i]
	}
	return f.b.writeAtomic(f.region, programmed)
}
