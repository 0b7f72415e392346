// Package locks estimates which table lock a statement takes and how much it
// disturbs concurrent traffic.
package locks

// LockMode is a table lock mode, named as pg_locks.mode reports it.
// See https://www.postgresql.org/docs/current/explicit-locking.html
type LockMode string

const (
	AccessShare          LockMode = "AccessShareLock"
	RowShare             LockMode = "RowShareLock"
	RowExclusive         LockMode = "RowExclusiveLock"
	ShareUpdateExclusive LockMode = "ShareUpdateExclusiveLock"
	Share                LockMode = "ShareLock"
	ShareRowExclusive    LockMode = "ShareRowExclusiveLock"
	AccessExclusive      LockMode = "AccessExclusiveLock"
)

// Disruption buckets a lock by what concurrent sessions have to wait for.
type Disruption string

const (
	DisruptionNone   Disruption = "none"
	DisruptionLow    Disruption = "low"
	DisruptionMedium Disruption = "medium" // writers wait
	DisruptionHigh   Disruption = "high"   // readers and writers wait
)

type modeTraits struct {
	blocksReads  bool
	blocksWrites bool
	disruption   Disruption
}

// Modes not listed here are never returned by Detect.
var traits = map[LockMode]modeTraits{
	AccessShare:          {disruption: DisruptionNone},
	RowShare:             {disruption: DisruptionNone},
	RowExclusive:         {disruption: DisruptionNone},
	ShareUpdateExclusive: {disruption: DisruptionLow},
	Share:                {blocksWrites: true, disruption: DisruptionMedium},
	ShareRowExclusive:    {blocksWrites: true, disruption: DisruptionMedium},
	AccessExclusive:      {blocksReads: true, blocksWrites: true, disruption: DisruptionHigh},
}

// BlocksReads reports whether a plain SELECT waits behind the lock.
func (m LockMode) BlocksReads() bool { return traits[m].blocksReads }

// BlocksWrites reports whether INSERT, UPDATE or DELETE wait behind the lock.
func (m LockMode) BlocksWrites() bool { return traits[m].blocksWrites }

// Impact is the lock one statement of a script takes.
type Impact struct {
	Position     int        `json:"position"` // 0-based
	Statement    string     `json:"statement"`
	Mode         LockMode   `json:"lock_mode"`
	BlocksReads  bool       `json:"blocks_reads"`
	BlocksWrites bool       `json:"blocks_writes"`
	Disruption   Disruption `json:"disruption"`
	Explanation  string     `json:"explanation"`
}

func newImpact(position int, statement string, mode LockMode) Impact {
	t := traits[mode]
	return Impact{
		Position:     position,
		Statement:    statement,
		Mode:         mode,
		BlocksReads:  t.blocksReads,
		BlocksWrites: t.blocksWrites,
		Disruption:   t.disruption,
	}
}

// Disruptive reports whether the statement makes writers or readers wait.
func (i Impact) Disruptive() bool {
	return i.BlocksWrites || i.BlocksReads
}
