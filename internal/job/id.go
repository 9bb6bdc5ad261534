package job

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const (
	timestampSize = 4
	pidSize       = 4
	counterSize   = 4

	// IDSize is the length of an ID in bytes.
	IDSize = timestampSize + pidSize + counterSize

	// counterModulus keeps the counter within 32 bits; the value 2^32-1 is never produced.
	counterModulus = 1<<32 - 1
)

var ErrInvalidID = errors.New("invalid job id")

// ID identifies a job: a 4-byte unix timestamp, a 4-byte process id and a
// 4-byte counter, all big endian. IDs compare with == and work as map keys.
type ID [IDSize]byte

// String renders the id as TTTTTTTT-PPPPPPPP-CCCCCCCC in lowercase hex.
func (id ID) String() string {
	s := hex.EncodeToString(id[:])
	return s[:8] + "-" + s[8:16] + "-" + s[16:]
}

func (id ID) Bytes() []byte {
	b := make([]byte, IDSize)
	copy(b, id[:])
	return b
}

func (id ID) IsZero() bool { return id == ID{} }

// Timestamp returns the second the id was generated.
func (id ID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[:timestampSize])), 0)
}

func (id ID) PID() uint32 { return binary.BigEndian.Uint32(id[timestampSize : timestampSize+pidSize]) }

func (id ID) Counter() uint32 { return binary.BigEndian.Uint32(id[timestampSize+pidSize:]) }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseID parses the String form. Dashes are optional.
func ParseID(s string) (ID, error) {
	var id ID
	raw := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if len(raw) != IDSize*2 {
		return id, ErrInvalidID
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return id, ErrInvalidID
	}
	return id, nil
}

// Generator produces IDs. The zero value is not usable; use NewGenerator.
type Generator struct {
	now     func() time.Time
	pid     uint32
	counter atomic.Uint32
}

// NewGenerator seeds the counter randomly and captures the current pid.
func NewGenerator() *Generator {
	g := &Generator{now: time.Now, pid: uint32(os.Getpid())}
	g.counter.Store(uint32(rand.Uint64() % counterModulus))
	return g
}

// NewGeneratorWith is NewGenerator with an injected clock, pid and counter seed.
func NewGeneratorWith(now func() time.Time, pid uint32, seed uint32) *Generator {
	if now == nil {
		now = time.Now
	}
	g := &Generator{now: now, pid: pid}
	g.counter.Store(seed % counterModulus)
	return g
}

// New returns a fresh ID. Safe for concurrent use.
func (g *Generator) New() ID {
	var c uint32
	for {
		old := g.counter.Load()
		c = uint32((uint64(old) + 1) % counterModulus)
		if g.counter.CompareAndSwap(old, c) {
			break
		}
	}

	var id ID
	binary.BigEndian.PutUint32(id[:timestampSize], uint32(g.now().Unix()))
	binary.BigEndian.PutUint32(id[timestampSize:timestampSize+pidSize], g.pid)
	binary.BigEndian.PutUint32(id[timestampSize+pidSize:], c)
	return id
}

var defaultGenerator = NewGenerator()

// NewID returns an ID from the process-wide generator.
func NewID() ID { return defaultGenerator.New() }
