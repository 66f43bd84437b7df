package normalize

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// DedupeLast collapses rows sharing the key formed by the cells at keyIdx,
// keeping the last occurrence. Survivors keep their relative input order.
// A multi-row upsert statement must not touch the same key twice, so this
// runs before every identity write.
//
// Keys are hashed with xxh3; the full key string is compared on a hash hit.
// With no key columns the input is returned unchanged.
func DedupeLast(rows []Row, keyIdx []int) []Row {
	if len(rows) < 2 || len(keyIdx) == 0 {
		return rows
	}

	type slot struct {
		key   string
		index int
	}
	last := make(map[uint64][]slot, len(rows))
	keys := make([]string, len(rows))

	for i, row := range rows {
		k := keyOf(row, keyIdx)
		keys[i] = k
		h := xxh3.HashString(k)
		bucket := last[h]
		found := false
		for j := range bucket {
			if bucket[j].key == k {
				bucket[j].index = i
				found = true
				break
			}
		}
		if !found {
			bucket = append(bucket, slot{key: k, index: i})
		}
		last[h] = bucket
	}

	out := make([]Row, 0, len(rows))
	for i, row := range rows {
		for _, s := range last[xxh3.HashString(keys[i])] {
			if s.key == keys[i] && s.index == i {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func keyOf(row Row, keyIdx []int) string {
	var b strings.Builder
	for n, i := range keyIdx {
		if n > 0 {
			b.WriteByte(0x1f)
		}
		if i < 0 || i >= len(row) || row[i] == nil {
			b.WriteByte(0)
			continue
		}
		fmt.Fprint(&b, row[i])
	}
	return b.String()
}
