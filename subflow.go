package subflow

import (
	"database/sql"

	"github.com/subflow-io/subflow/internal/config"
	"github.com/subflow-io/subflow/internal/sigstore"
	"github.com/subflow-io/subflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Job                  = api.Job
	Result               = api.Result
	OutputSpec           = api.OutputSpec
	OutputMode           = api.OutputMode
	ExecutionContext     = api.ExecutionContext
	Failure              = api.Failure
	FailureKind          = api.FailureKind
	SignalKind           = api.SignalKind
	Section              = api.Section
	StepMessage          = api.StepMessage
	WorkflowMessage      = api.WorkflowMessage
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export output modes and failure kinds for convenience.

const (
	OutputDetermined   = api.OutputDetermined
	OutputUndetermined = api.OutputUndetermined
	OutputUnspecified  = api.OutputUnspecified

	KindSignal          = api.KindSignal
	KindExternalFailure = api.KindExternalFailure
	KindArgumentError   = api.KindArgumentError
	KindRuntimeFailure  = api.KindRuntimeFailure
)

// Configuration re-exports.

type (
	Config  = config.Config
	SigMode = config.SigMode
)

const (
	SigModeDefault = config.SigModeDefault
	SigModeIgnore  = config.SigModeIgnore
	SigModeForce   = config.SigModeForce
)

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Store constructors
// These wrap the internal/sigstore package so external callers never need
// to import internal packages.

// SignatureStore persists substep signatures and their locks.
type SignatureStore = sigstore.Store

// NewMemoryStore returns a non-durable in-process signature store, best
// for tests and single-run executions.
func NewMemoryStore() SignatureStore {
	return sigstore.NewMemoryStore()
}

// NewSQLiteStore returns a signature store persisted in the provided
// SQLite database. The schema is created on first use.
func NewSQLiteStore(db *sql.DB) (SignatureStore, error) {
	return sigstore.NewSQLiteStore(db)
}

// DialStore connects to a remote signature store service. Signature writes
// travel over the push address without waiting for acknowledgement; all
// other operations use the request address.
func DialStore(network, pushAddr, reqAddr string) (SignatureStore, error) {
	return sigstore.Dial(network, pushAddr, reqAddr)
}

