package core

import (
	"fmt"
	"strconv"
)

// HashID derives a stable id from a scoping key (e.g. "cat:Mercado") using
// 32-bit FNV-1a. The same key always yields the same id, which is what makes
// schema migration idempotent: re-deriving an id from the same name converges
// instead of minting a new one.
func HashID(key string) string {
	h := uint32(2166136261)
	for _, r := range key {
		h ^= uint32(r)
		h *= 16777619
	}
	return "id_" + strconv.FormatUint(uint64(h), 36)
}

// ColorForID derives a stable HSL color from an id, so a category keeps its
// color across migrations and devices without storing a palette.
func ColorForID(id string) string {
	h := 0
	for _, r := range id {
		h = (h*31 + int(r)) % 360
	}
	return fmt.Sprintf("hsl(%d 70%% 48%%)", h)
}
