package elfpipe

import "github.com/managarm/lewis/compiler/elfobj"

// sysvHash implements the SysV ELF hash function (gABI elf_hash):
// h = (h<<4)+byte each step, folding any overflow into the low bits
// before masking back down to 28 bits.
func sysvHash(name string) uint32 {
	var h uint32

	for i := 0; i < len(name); i++ {
		h = (h << 4) + uint32(name[i])

		g := h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}

		h &= 0x0fffffff
	}

	return h
}

// ceil2Power returns the smallest power of two >= n (at least 1).
func ceil2Power(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

// layoutHash builds the SysV hash table's bucket/chain arrays per
// spec §4.4.2, bucketing every symbol (1-based: symbol 0 is the null
// entry and always chains to 0) by its name's hash mod bucketCount.
func layoutHash(obj *elfobj.Object) int64 {
	symbolCount := len(obj.Symbols)
	bucketCount := ceil2Power(symbolCount)

	if bucketCount == 0 {
		bucketCount = 1
	}

	buckets := make([]int, bucketCount)
	chains := make([]int, symbolCount+1)

	for i, sym := range obj.Symbols {
		symIdx := i + 1

		h := sysvHash(sym.Name.Value) % uint32(bucketCount)

		chains[symIdx] = buckets[h]
		buckets[h] = symIdx
	}

	obj.HashBuckets = buckets
	obj.HashChains = chains

	return int64(2+bucketCount+len(chains)) * 4
}
