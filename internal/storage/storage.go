package storage

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

// ProvisionRecord is the persisted trace of the most recent provisioning
// attempt for a dataset. One row per dataset; each attempt overwrites the
// previous one.
type ProvisionRecord struct {
	DatasetID  string
	Outcome    string
	Reason     string
	Bytes      int64
	DurationMS int64
	InstanceID string
	CheckedAt  time.Time
}

// ProvisionReadRepository reads back recorded outcomes for the readiness API.
type ProvisionReadRepository interface {
	LastResults() ([]ProvisionRecord, error)
	LastResult(datasetID string) (*ProvisionRecord, error)
}

// ProvisionWriteRepository records provisioning outcomes. Recording is
// advisory: a storage failure must never fail the provisioning itself.
type ProvisionWriteRepository interface {
	RecordResult(rec ProvisionRecord) error
}

// GenerateInstanceID returns a unique string for this process
// (hostname+pid+random), recorded so shared-filesystem deployments can tell
// which instance performed a download.
func GenerateInstanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}
