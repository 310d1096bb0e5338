package cpu

// CacheLineSize is the size of a data and instruction cache line in bytes.
const CacheLineSize = 32

// CacheOpKind identifies a cache maintenance instruction.
type CacheOpKind uint8

const (
	// OpDataStore is dcbst: write a data cache line back to memory.
	OpDataStore CacheOpKind = iota

	// OpInstInvalidate is icbi: invalidate an instruction cache line.
	OpInstInvalidate

	// OpSync is the sync;isync pair that orders the preceding operations.
	OpSync
)

// CacheOp records a cache maintenance instruction executed by the processor.
// Block operations are translated through the data MMU so they are tagged
// with the PID that was loaded when they executed.
type CacheOp struct {
	Kind CacheOpKind
	PID  uint8
	VA   uintptr
}

var cacheLog []CacheOp

// DataCacheBlockStore executes dcbst for the line containing va.
func DataCacheBlockStore(va uintptr) {
	cacheLog = append(cacheLog, CacheOp{Kind: OpDataStore, PID: pid, VA: va &^ (CacheLineSize - 1)})
}

// InstCacheBlockInvalidate executes icbi for the line containing va.
func InstCacheBlockInvalidate(va uintptr) {
	cacheLog = append(cacheLog, CacheOp{Kind: OpInstInvalidate, PID: pid, VA: va &^ (CacheLineSize - 1)})
}

// Sync executes sync followed by isync.
func Sync() {
	cacheLog = append(cacheLog, CacheOp{Kind: OpSync, PID: pid})
}

// CacheLog returns the cache maintenance operations executed since the last
// call to ResetCacheLog.
func CacheLog() []CacheOp { return cacheLog }

// ResetCacheLog empties the cache operation log.
func ResetCacheLog() { cacheLog = nil }
