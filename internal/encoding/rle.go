package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// AppendRLE appends words to dst as varint pairs (word, run_len).
func AppendRLE(dst []byte, words []uint32) []byte {
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(words) {
		w := words[i]
		run := 1
		for j := i + 1; j < len(words) && words[j] == w && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(w))
		dst = append(dst, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(run))
		dst = append(dst, tmp[:n]...)

		i += run
	}
	return dst
}

// DecodeRLEInto expands raw into out, which must be exactly the decoded length.
func DecodeRLEInto(raw []byte, out []uint32) error {
	k := 0
	for i := 0; i < len(raw); {
		w, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if w > 0xFFFFFFFF {
			return fmt.Errorf("word too large: %d", w)
		}
		if run == 0 || run > uint64(len(out)-k) {
			return fmt.Errorf("run of %d at %d overflows %d words", run, i, len(out))
		}
		for end := k + int(run); k < end; k++ {
			out[k] = uint32(w)
		}
	}
	if k != len(out) {
		return fmt.Errorf("decoded %d words, want %d", k, len(out))
	}
	return nil
}

// EncodeRLE is AppendRLE rendered as base64, for logs and tooling.
func EncodeRLE(words []uint32) string {
	return base64.StdEncoding.EncodeToString(AppendRLE(nil, words))
}

func DecodeRLE(b64 string, n int) ([]uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	if err := DecodeRLEInto(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Runs counts the (word, run_len) pairs AppendRLE would emit.
func Runs(words []uint32) int {
	runs := 0
	for i := range words {
		if i == 0 || words[i] != words[i-1] {
			runs++
		}
	}
	return runs
}
