package tiernet

// addr.go holds the address-block allocator.  Each tier family draws
// non-overlapping IPv4 blocks from its own counter space, advancing to
// the next network address on every request.

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// AddrFamily identifies an independent counter space for block issuance.
// The three families never share blocks even though each restarts its
// own counter from a caller-supplied base.
type AddrFamily int

const (
	BackboneFamily AddrFamily = iota
	SecondaryFamily
	WirelessFamily
)

var addrFamilyToStr map[AddrFamily]string = map[AddrFamily]string{
	BackboneFamily: "backbone", SecondaryFamily: "secondary", WirelessFamily: "wireless"}

var addrFamilyFromStr map[string]AddrFamily = map[string]AddrFamily{
	"backbone": BackboneFamily, "secondary": SecondaryFamily, "wireless": WirelessFamily}

// AddrFamilyToStr returns the textual form of an address family code
func AddrFamilyToStr(family AddrFamily) string {
	str, present := addrFamilyToStr[family]
	if !present {
		panic(fmt.Errorf("unrecognized address family %d", family))
	}
	return str
}

// AddrFamilyFromStr recovers an address family code from its textual form
func AddrFamilyFromStr(str string) (AddrFamily, error) {
	family, present := addrFamilyFromStr[str]
	if !present {
		return 0, fmt.Errorf("unrecognized address family %s: %w", str, ErrConfig)
	}
	return family, nil
}

// An AddrBlock struct holds one network address block, a base network
// address plus a mask.  A block is exclusively owned by one tier.
type AddrBlock struct {
	Base uint32 // network address, host bits all zero
	Mask uint32 // contiguous prefix mask
}

// span returns the number of addresses the block covers, network and
// broadcast addresses included
func (ab AddrBlock) span() uint64 {
	return uint64(^ab.Mask) + 1
}

// PrefixLen returns the number of leading one bits in the block's mask
func (ab AddrBlock) PrefixLen() int {
	return bits.OnesCount32(ab.Mask)
}

// HostCapacity returns the number of usable host addresses in the block.
// The network and broadcast addresses are excluded.
func (ab AddrBlock) HostCapacity() int {
	span := ab.span()
	if span < 2 {
		return 0
	}
	return int(span - 2)
}

// HostAddr returns the dotted-quad form of host n of the block.  Hosts
// are numbered from 1, matching the order interfaces join the tier.
func (ab AddrBlock) HostAddr(n int) (string, error) {
	if n < 1 || n > ab.HostCapacity() {
		return "", fmt.Errorf("host %d outside block %s: %w", n, ab, ErrExhausted)
	}
	return u32ToDotted(ab.Base + uint32(n)), nil
}

// Overlaps reports whether two blocks cover any common address
func (ab AddrBlock) Overlaps(other AddrBlock) bool {
	abTop := uint64(ab.Base) + ab.span()
	otherTop := uint64(other.Base) + other.span()
	return uint64(ab.Base) < otherTop && uint64(other.Base) < abTop
}

// String renders the block in base/prefix form, e.g. 172.16.1.0/24
func (ab AddrBlock) String() string {
	return fmt.Sprintf("%s/%d", u32ToDotted(ab.Base), ab.PrefixLen())
}

// parseDottedQuad converts a dotted-quad string to its 32 bit value
func parseDottedQuad(str string) (uint32, error) {
	pieces := strings.Split(str, ".")
	if len(pieces) != 4 {
		return 0, fmt.Errorf("malformed address %s: %w", str, ErrConfig)
	}

	var value uint32
	for _, piece := range pieces {
		octet, err := strconv.Atoi(piece)
		if err != nil || octet < 0 || octet > 255 {
			return 0, fmt.Errorf("malformed address %s: %w", str, ErrConfig)
		}
		value = value<<8 | uint32(octet)
	}
	return value, nil
}

// u32ToDotted converts a 32 bit address value to dotted-quad form
func u32ToDotted(value uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", value>>24, (value>>16)&0xff, (value>>8)&0xff, value&0xff)
}

// familyState remembers where a family's counter sits.  current is the
// block the next NextBlock call hands out.
type familyState struct {
	current   AddrBlock
	issued    int
	exhausted bool
}

// An AddrAllocator struct issues address blocks for the tier families.
// It owns no nodes, only the per-family counters, and is created fresh
// for every build.
type AddrAllocator struct {
	families     map[AddrFamily]*familyState
	checkOverlap bool
}

// CreateAddrAllocator is a constructor.  Overlap tracking between
// family ranges starts enabled.
func CreateAddrAllocator() *AddrAllocator {
	aa := new(AddrAllocator)
	aa.families = make(map[AddrFamily]*familyState)
	aa.checkOverlap = true
	return aa
}

// SetOverlapCheck turns rejection of overlapping family ranges on or off
func (aa *AddrAllocator) SetOverlapCheck(on bool) {
	aa.checkOverlap = on
}

// ResetFamily starts (or restarts) a family's counter from the given
// base network address and mask, both in dotted-quad form.  The mask
// must be a contiguous prefix and the base must sit on a block
// boundary.  When overlap tracking is enabled a range that collides
// with another family's current range is rejected.
func (aa *AddrAllocator) ResetFamily(family AddrFamily, base, mask string) error {
	baseValue, err := parseDottedQuad(base)
	if err != nil {
		return err
	}
	maskValue, err := parseDottedQuad(mask)
	if err != nil {
		return err
	}

	// a contiguous mask inverted is all ones in the low bits
	inv := ^maskValue
	if inv&(inv+1) != 0 {
		return fmt.Errorf("mask %s is not a contiguous prefix: %w", mask, ErrConfig)
	}

	if baseValue&inv != 0 {
		return fmt.Errorf("base %s not aligned to mask %s: %w", base, mask, ErrConfig)
	}

	blk := AddrBlock{Base: baseValue, Mask: maskValue}

	if aa.checkOverlap {
		for other, fs := range aa.families {
			if other == family || fs.exhausted {
				continue
			}
			if blk.Overlaps(fs.current) {
				return fmt.Errorf("family %s range %s overlaps family %s range %s: %w",
					AddrFamilyToStr(family), blk, AddrFamilyToStr(other), fs.current, ErrConfig)
			}
		}
	}

	aa.families[family] = &familyState{current: blk}
	return nil
}

// NextBlock returns the family's current block and advances the
// counter to the next network address.  Requesting a block before the
// family has been reset is a configuration error, and running off the
// top of the address space is exhaustion.
func (aa *AddrAllocator) NextBlock(family AddrFamily) (AddrBlock, error) {
	fs, present := aa.families[family]
	if !present {
		return AddrBlock{}, fmt.Errorf("family %s block requested before reset: %w",
			AddrFamilyToStr(family), ErrConfig)
	}
	if fs.exhausted {
		return AddrBlock{}, fmt.Errorf("family %s has no blocks left: %w",
			AddrFamilyToStr(family), ErrExhausted)
	}

	blk := fs.current
	fs.issued += 1

	// advance the counter by one block span, flagging 32 bit overflow
	nxt := uint64(blk.Base) + blk.span()
	if nxt > uint64(^uint32(0)) {
		fs.exhausted = true
	} else {
		fs.current.Base = uint32(nxt)
	}

	return blk, nil
}

// BlocksIssued reports how many blocks the family has handed out since
// its last reset
func (aa *AddrAllocator) BlocksIssued(family AddrFamily) int {
	fs, present := aa.families[family]
	if !present {
		return 0
	}
	return fs.issued
}
