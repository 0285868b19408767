// Package signature implements content-derived memoization records for
// substeps: construction, validation against the signature store, the
// cross-process lock lifecycle, and persistence.
package signature

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/subflow-io/subflow/internal/sigstore"
	"github.com/subflow-io/subflow/pkg/api"
)

func init() {
	gob.Register(Content{})
	gob.Register(map[string]any{})
}

// Content is the payload persisted for a completed substep: the realized
// output, the shared context to echo back on a future skip, and the target
// fingerprints used to decide whether a prior record still applies.
type Content struct {
	Output []string
	Shared map[string]any

	InputFPs   map[string]string
	OutputFPs  map[string]string
	DependsFPs map[string]string
	VarsDigest string

	WrittenAt time.Time
}

// Record tracks one substep's signature through its lifecycle: constructed
// before execution, validated against the store, exclusively locked for the
// duration of execution, updated with the realized output, written on
// success, and released on every exit path.
type Record struct {
	stepID  string
	tokens  []string
	input   []string
	output  api.OutputSpec
	depends []string

	// sigVars holds the values of the signature variables at
	// construction time; they participate in the identity key.
	sigVars map[string]any

	key    string
	owner  string
	locked bool
}

// NewRecord builds a signature record from a job and its execution context.
func NewRecord(job api.Job, ec *api.ExecutionContext) *Record {
	return &Record{
		stepID:  job.StepID,
		tokens:  job.StepTokens,
		input:   job.Input,
		output:  job.Output,
		depends: job.Depends,
		sigVars: ec.Subset(job.SignatureVars),
	}
}

// Key returns the store key for this record: a digest over the step
// identity, step tokens, declared targets, and signature-variable values.
func (r *Record) Key() string {
	if r.key == "" {
		varNames := make([]string, 0, len(r.sigVars))
		for n := range r.sigVars {
			varNames = append(varNames, n)
		}
		sort.Strings(varNames)

		r.key = identityDigest(
			[]string{r.stepID},
			r.tokens,
			r.input,
			r.output.Targets,
			r.depends,
			varNames,
			[]string{varsDigest(r.sigVars)},
		)
	}
	return r.key
}

// Locked reports whether this record currently holds the store lock.
func (r *Record) Locked() bool { return r.locked }

// Validate checks whether a previously written record still applies: the
// stored record must exist, its input and dependency fingerprints must match
// the targets on disk, and its realized output targets must still exist
// unchanged. On a match it returns the stored content.
//
// Fingerprint mismatches and missing targets are a normal "no match", not
// an error; only store failures are reported as errors.
func (r *Record) Validate(ctx context.Context, store sigstore.Store) (*Content, bool, error) {
	raw, err := store.Get(ctx, r.Key())
	if errors.Is(err, sigstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	content, err := decodeContent(raw)
	if err != nil {
		// A record we cannot decode is treated as absent.
		return nil, false, nil
	}

	if content.VarsDigest != varsDigest(r.sigVars) {
		return nil, false, nil
	}
	if !fingerprintsMatch(content.InputFPs) || !fingerprintsMatch(content.DependsFPs) {
		return nil, false, nil
	}
	// The realized output of the prior run must still be present and
	// unchanged, otherwise the substep has to run again.
	if !fingerprintsMatch(content.OutputFPs) {
		return nil, false, nil
	}

	return content, true, nil
}

// fingerprintsMatch re-digests each recorded target and compares.
func fingerprintsMatch(fps map[string]string) bool {
	for path, want := range fps {
		got, err := FileDigest(path)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

// Lock acquires the cross-process lock for this signature, blocking up to
// timeout. Failure to acquire within the window is reported as an
// unavailable-lock signal.
func (r *Record) Lock(ctx context.Context, store sigstore.Store, owner string, ttl, timeout time.Duration) error {
	acquired, err := sigstore.AcquireLock(ctx, store, r.Key(), owner, ttl, timeout)
	if err != nil {
		return err
	}
	if !acquired {
		return api.NewUnavailableLockError(r.Key())
	}
	r.owner = owner
	r.locked = true
	return nil
}

// SetOutput records the realized output targets, replacing any declared but
// undetermined output.
func (r *Record) SetOutput(targets []string) {
	r.output = api.OutputSpec{Targets: targets, Mode: api.OutputDetermined}
}

// Write fingerprints the realized targets and persists the record. The
// signature may only be written by the worker holding its lock.
func (r *Record) Write(ctx context.Context, store sigstore.Store, shared map[string]any) (*Content, error) {
	if !r.locked {
		return nil, errors.New("signature write without lock")
	}

	inputFPs, err := Fingerprint(r.input)
	if err != nil {
		return nil, err
	}
	outputFPs, err := Fingerprint(r.output.Targets)
	if err != nil {
		return nil, err
	}
	// Dependencies that do not exist on disk are variable-only and carry
	// no content fingerprint.
	dependsFPs := make(map[string]string, len(r.depends))
	for _, d := range r.depends {
		if fp, err := FileDigest(d); err == nil {
			dependsFPs[d] = fp
		}
	}

	content := &Content{
		Output:     r.output.Targets,
		Shared:     shared,
		InputFPs:   inputFPs,
		OutputFPs:  outputFPs,
		DependsFPs: dependsFPs,
		VarsDigest: varsDigest(r.sigVars),
		WrittenAt:  time.Now(),
	}

	raw, err := encodeContent(content)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, r.Key(), raw); err != nil {
		return nil, err
	}
	return content, nil
}

// Release drops the lock if held. It is idempotent and quiet: releasing an
// unheld or already-released lock does nothing, and store errors during
// release are swallowed so that no exit path can fail on cleanup.
func (r *Record) Release(ctx context.Context, store sigstore.Store) {
	if r == nil || !r.locked {
		return
	}
	_ = store.ReleaseLock(ctx, r.Key(), r.owner)
	r.locked = false
}

func encodeContent(c *Content) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeContent(raw []byte) (*Content, error) {
	var c Content
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
