// Package crc implements the CRC-16 used to check staged firmware images.
//
// The variant is CRC-16/XMODEM: polynomial 0x1021, initial value 0, no
// reflection, no final xor. It can be computed incrementally with Update.
package crc

const poly = 0x1021

var table [256]uint16

func init() {
	for i := range table {
		c := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		table[i] = c
	}
}

// Update returns the checksum after feeding p into a running checksum crc.
func Update(crc uint16, p []byte) uint16 {
	for _, b := range p {
		crc = crc<<8 ^ table[byte(crc>>8)^b]
	}
	return crc
}

// Checksum returns the checksum of p.
func Checksum(p []byte) uint16 {
	return Update(0, p)
}
