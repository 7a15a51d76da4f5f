// Package blockdev stands in for the out-of-scope block device layer
// spec.md §1 names: a sector-addressed device, discovered by role
// (block_get_role), that package swap reads and writes whole pages
// through. Only the BLOCK_SWAP role is consumed by this core.
package blockdev

import (
	"sync"

	"github.com/sohnryang/pintos/kernelerr"
)

// Role identifies what a block device is used for.
type Role int

// RoleSwap is the only role this core looks up (spec.md §6: "Swap
// device: a block device discovered by role \"swap\"").
const RoleSwap Role = 0

// Device is a fixed-sector-size, randomly addressable block device.
type Device interface {
	// ReadSector copies one sector's worth of bytes into buf.
	ReadSector(sector uint64, buf []byte) error
	// WriteSector writes one sector's worth of bytes from buf.
	WriteSector(sector uint64, buf []byte) error
	// SectorSize returns the device's fixed sector size in bytes.
	SectorSize() int
	// NumSectors returns the device's total capacity in sectors.
	NumSectors() uint64
}

// MemDevice is an in-memory Device: a fixed-size slab of sectors, used in
// place of a real swap partition. Every seed test and the default kernel
// wiring use one of these for the swap role.
type MemDevice struct {
	sectorSize int
	sectors    [][]byte
}

// NewMemDevice returns a zeroed in-memory device with the given capacity.
func NewMemDevice(numSectors uint64, sectorSize int) *MemDevice {
	d := &MemDevice{sectorSize: sectorSize, sectors: make([][]byte, numSectors)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, sectorSize)
	}
	return d
}

func (d *MemDevice) checkSector(sector uint64, buf []byte) error {
	if sector >= uint64(len(d.sectors)) {
		return kernelerr.Wrapf(kernelerr.ErrIoFailure, "blockdev: sector %d out of range", sector)
	}
	if len(buf) != d.sectorSize {
		return kernelerr.Wrapf(kernelerr.ErrIoFailure, "blockdev: buffer length %d != sector size %d", len(buf), d.sectorSize)
	}
	return nil
}

// ReadSector implements Device.
func (d *MemDevice) ReadSector(sector uint64, buf []byte) error {
	if err := d.checkSector(sector, buf); err != nil {
		return err
	}
	copy(buf, d.sectors[sector])
	return nil
}

// WriteSector implements Device.
func (d *MemDevice) WriteSector(sector uint64, buf []byte) error {
	if err := d.checkSector(sector, buf); err != nil {
		return err
	}
	copy(d.sectors[sector], buf)
	return nil
}

// SectorSize implements Device.
func (d *MemDevice) SectorSize() int { return d.sectorSize }

// NumSectors implements Device.
func (d *MemDevice) NumSectors() uint64 { return uint64(len(d.sectors)) }

// Registry resolves devices by role, standing in for block_get_role.
type Registry struct {
	mu     sync.Mutex
	byRole map[Role]Device
}

// NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{byRole: make(map[Role]Device)}
}

// Register associates dev with role.
func (r *Registry) Register(role Role, dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRole[role] = dev
}

// ByRole returns the device registered for role, or nil if none was
// (block_get_role returning NULL; spec.md §4.6 "swap_present" in the
// original source becomes this nil check).
func (r *Registry) ByRole(role Role) Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byRole[role]
}
