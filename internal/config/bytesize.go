// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/units"
)

// ByteSize is a base-2 byte quantity written like '512KiB', '16Mi' or '16MB' (1MB == 1MiB).
type ByteSize int64

const kibibyte = 1024.0

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

func ParseByteSize(input string) (ByteSize, error) {
	input = strings.TrimSpace(input)

	// plain numbers are bytes
	if plain, err := strconv.ParseInt(input, 10, 64); err == nil {
		if plain < 0 {
			return 0, fmt.Errorf("byte size '%s' must not be negative", input)
		}
		return ByteSize(plain), nil
	}

	// see https://physics.nist.gov/cuu/Units/binary.html
	if strings.HasSuffix(input, "i") {
		input += "B"
	}

	bytes, err := units.ParseBase2Bytes(input)
	if err != nil {
		return 0, fmt.Errorf("could not parse base-2 bytes '%s': %w", input, err)
	}
	if bytes < 0 {
		return 0, fmt.Errorf("byte size '%s' must not be negative", input)
	}
	return ByteSize(bytes), nil
}

func (size ByteSize) String() string {
	quantity := float64(size)
	for _, unit := range byteUnits {
		if math.Abs(quantity) < kibibyte || unit == byteUnits[len(byteUnits)-1] {
			return format(quantity, unit)
		}
		quantity /= kibibyte
	}
	return format(quantity, byteUnits[len(byteUnits)-1])
}

func format(quantity float64, unit string) string {
	if quantity == math.Trunc(quantity) {
		return fmt.Sprintf("%.0f%s", quantity, unit)
	}
	return fmt.Sprintf("%.1f%s", quantity, unit)
}
