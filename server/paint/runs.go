// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package paint

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Painted layers are mostly long runs of unset cells broken by strokes of a
// single color, so they compress well as runs.
//
// Each run is a uvarint count - 1 followed by a flag byte. Set runs are
// followed by 3 color bytes.
const (
	runUnset byte = 0
	runSet   byte = 1
)

var errRunsTruncated = errors.New("paint runs truncated")

// Encode packs l into a run length encoding.
func Encode(l *Layer) []byte {
	buf := make([]byte, 0, 64)
	var tmp [binary.MaxVarintLen64]byte

	cells := l.cells
	for i := 0; i < len(cells); {
		c := cells[i]
		j := i + 1
		for j < len(cells) && cells[j] == c {
			j++
		}

		n := binary.PutUvarint(tmp[:], uint64(j-i-1))
		buf = append(buf, tmp[:n]...)
		if c.Set {
			buf = append(buf, runSet, c.Color[0], c.Color[1], c.Color[2])
		} else {
			buf = append(buf, runUnset)
		}

		i = j
	}
	return buf
}

// Decode unpacks a width by height layer from Encode's output.
func Decode(width, height int, buf []byte) (*Layer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid layer size %dx%d", width, height)
	}

	l := NewLayer(width, height)
	off := 0 // in buf
	pos := 0 // in l.cells

	for off < len(buf) {
		countMinusOne, n := binary.Uvarint(buf[off:])
		if n <= 0 {
			return nil, errRunsTruncated
		}
		off += n

		if off >= len(buf) {
			return nil, errRunsTruncated
		}
		flag := buf[off]
		off++

		var cell Cell
		switch flag {
		case runUnset:
		case runSet:
			if off+3 > len(buf) {
				return nil, errRunsTruncated
			}
			cell = Cell{Set: true}
			copy(cell.Color[:], buf[off:off+3])
			off += 3
		default:
			return nil, fmt.Errorf("invalid paint run flag %d", flag)
		}

		count := countMinusOne + 1
		if count > uint64(len(l.cells)-pos) {
			return nil, fmt.Errorf("paint runs exceed %dx%d", width, height)
		}
		end := pos + int(count)
		for i := pos; i < end; i++ {
			l.cells[i] = cell
		}
		if cell.Set {
			l.count += int(count)
		}
		pos = end
	}

	if pos != len(l.cells) {
		return nil, fmt.Errorf("paint runs cover %d of %d cells", pos, len(l.cells))
	}
	return l, nil
}
