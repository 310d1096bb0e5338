package mm

// Prot describes the access rights of a mapping. The same bits are used to
// describe the kind of access that caused a fault.
type Prot uint8

const (
	// ProtNone denies every access.
	ProtNone Prot = 0

	// ProtRead allows loads.
	ProtRead Prot = 1

	// ProtWrite allows stores.
	ProtWrite Prot = 2

	// ProtExecute allows instruction fetches.
	ProtExecute Prot = 4

	// ProtAll combines every access right.
	ProtAll = ProtRead | ProtWrite | ProtExecute
)

// MapFlag modifies how a mapping is established. The low bits of a MapFlag
// value carry the Prot of the access that triggered the mapping (if any);
// the remaining bits select mapping options.
type MapFlag uint16

// MapAccessMask extracts the access type from a MapFlag.
const MapAccessMask = MapFlag(ProtAll)

const (
	// MapWired marks the mapping as wired.
	MapWired MapFlag = 1 << (8 + iota)

	// MapCanFail makes resource exhaustion return an error instead of
	// halting the system.
	MapCanFail

	// MapNoCache establishes a cache-inhibited mapping.
	MapNoCache

	// MapWriteThrough establishes a write-through mapping.
	MapWriteThrough
)

// Access returns the access type recorded in the flags.
func (f MapFlag) Access() Prot {
	return Prot(f & MapAccessMask)
}
