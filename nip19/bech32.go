package nip19

import (
	"errors"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var errInvalidChecksum = errors.New("nip19: invalid bech32 checksum position")

func decode(bech string) (hrp string, data []byte, err error) {
	if len(bech) < 8 {
		return "", nil, errors.New("nip19: bech32 string too short")
	}

	pos := strings.LastIndex(bech, "1")
	if pos < 1 || pos+7 > len(bech) {
		return "", nil, errInvalidChecksum
	}

	hrp = bech[:pos]
	body := bech[pos+1:]

	values := make([]byte, 0, len(body))
	for _, c := range body {
		idx := strings.IndexRune(charset, c)
		if idx == -1 {
			return "", nil, errors.New("nip19: invalid bech32 character")
		}
		values = append(values, byte(idx))
	}

	if len(values) < 6 {
		return "", nil, errors.New("nip19: too short for checksum")
	}
	return hrp, values[:len(values)-6], nil
}

func convertBits(data []byte, fromBits, toBits int, pad bool) ([]byte, error) {
	acc, bits := 0, 0
	var ret []byte
	maxv := (1 << toBits) - 1

	for _, value := range data {
		acc = (acc << fromBits) | int(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, errors.New("nip19: invalid padding")
	}
	return ret, nil
}

func encode(hrp string, data []byte) (string, error) {
	values := append([]byte{}, data...)
	checksum := createChecksum(hrp, values)
	combined := append(values, checksum...)

	var out strings.Builder
	out.WriteString(hrp)
	out.WriteByte('1')
	for _, v := range combined {
		out.WriteByte(charset[v])
	}
	return out.String(), nil
}

func polymod(values []int) int {
	gen := []int{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := 1
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ v
		for i := 0; i < 5; i++ {
			if (top>>i)&1 != 0 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []int {
	var ret []int
	for _, c := range hrp {
		ret = append(ret, int(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, int(c&31))
	}
	return ret
}

func createChecksum(hrp string, data []byte) []byte {
	values := hrpExpand(hrp)
	for _, d := range data {
		values = append(values, int(d))
	}
	for i := 0; i < 6; i++ {
		values = append(values, 0)
	}
	mod := polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> (5 * (5 - i))) & 31)
	}
	return checksum
}
