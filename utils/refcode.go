package utils

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	refMu      sync.Mutex
	seededRand *rand.Rand
)

func init() {
	seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// GenerateRefCode produces a unique-enough reference for a ledger entry or
// redemption. The point_entries.ref_code unique index is the real guard; a
// collision surfaces as an insert error and the caller retries.
func GenerateRefCode(userID uint) string {
	refMu.Lock()
	defer refMu.Unlock()

	nowNano := time.Now().UnixNano()
	nanoPart := nowNano % 1000000

	randPart := seededRand.Intn(900) + 100

	return fmt.Sprintf("CHP-%06d%03d%d", nanoPart, randPart, userID)
}
