package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perluette/relist/engine"
	"github.com/perluette/relist/internal/listmodel"
	"github.com/perluette/relist/internal/testutil"
	"github.com/perluette/relist/op"
)

// FuzzOptions holds flags for the fuzz command.
type FuzzOptions struct {
	*RootOptions
	Seeds int // number of seeds to try
	Size  int // initial list size per seed
	Ops   int // operations per generated batch
}

// SeedResult holds the equivalence outcome for a single seed.
type SeedResult struct {
	Seed         uint64 `json:"seed"`
	Ops          int    `json:"ops"`
	CanonicalOps int    `json:"canonical_ops"`
	Equivalent   bool   `json:"equivalent"`
	Conserved    bool   `json:"conserved"`
	Error        string `json:"error,omitempty"`
}

func (r SeedResult) ok() bool {
	return r.Error == "" && r.Equivalent && r.Conserved
}

// FuzzResult holds the overall fuzz result. Only failing seeds are listed;
// a clean run is summarized by the counters alone.
type FuzzResult struct {
	Failures      []SeedResult `json:"failures,omitempty"`
	Total         int          `json:"total"`
	Failed        int          `json:"failed"`
	AllEquivalent bool         `json:"all_equivalent"`
}

// NewFuzzCommand creates the fuzz command.
func NewFuzzCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FuzzOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Fuzz canonical reordering for net-effect equivalence",
		Long: `Fuzz the canonical reorderer against a reference list model.

For each seed, a random operation batch is generated and applied to a
plain reference list. The same batch is then canonically reordered and the
canonical sequence applied to a second list. Both lists must end in
identical states, and every operation record must return to its pool.

Exit codes:
  0 - All seeds equivalent
  1 - Equivalence or conservation failure detected
  2 - Command error (bad flags)

Examples:
  relist fuzz
  relist fuzz --seeds 1000 --size 10 --ops 20
  relist fuzz --seeds 50 --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuzz(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Seeds, "seeds", 100, "number of seeds to try")
	cmd.Flags().IntVar(&opts.Size, "size", 6, "initial list size per seed")
	cmd.Flags().IntVar(&opts.Ops, "ops", 10, "operations per generated batch")

	return cmd
}

func runFuzz(opts *FuzzOptions, cmd *cobra.Command) error {
	if opts.Seeds < 1 || opts.Size < 0 || opts.Ops < 1 {
		return NewExitError(ExitCommandError, "seeds and ops must be >= 1, size must be >= 0")
	}

	w := cmd.OutOrStdout()
	result := FuzzResult{
		Total:         opts.Seeds,
		AllEquivalent: true,
	}

	for seed := uint64(1); seed <= uint64(opts.Seeds); seed++ {
		seedResult := fuzzSeed(seed, opts.Size, opts.Ops)

		if opts.Verbose && opts.Format != "json" {
			status := "✓"
			if !seedResult.ok() {
				status = "✗"
			}
			fmt.Fprintf(w, "%s seed %d: %d ops -> %d canonical\n",
				status, seedResult.Seed, seedResult.Ops, seedResult.CanonicalOps)
		}

		if !seedResult.ok() {
			result.Failed++
			result.AllEquivalent = false
			result.Failures = append(result.Failures, seedResult)
		}
	}

	if opts.Format == "json" {
		return outputFuzzJSON(cmd, result)
	}

	return outputFuzzText(cmd, result)
}

// fuzzSeed exercises one seed: generate a batch, apply it to a reference
// list, reorder it, apply the canonical form, and compare.
func fuzzSeed(seed uint64, size, n int) SeedResult {
	pool := op.NewPool(n)
	rng := testutil.Rand(seed)
	records, _ := testutil.RandomBatch(rng, pool, size, n)

	res := SeedResult{Seed: seed, Ops: len(records)}

	// Snapshot the original sequence; reordering mutates and recycles the
	// records it consumes.
	originals := make([]op.Op, len(records))
	for i, r := range records {
		originals[i] = *r
	}

	reference := listmodel.New(size)
	refPtrs := make([]*op.Op, len(originals))
	for i := range originals {
		refPtrs[i] = &originals[i]
	}
	if err := reference.ApplyAll(refPtrs); err != nil {
		res.Error = fmt.Sprintf("reference application failed: %v", err)
		return res
	}

	canonical, err := engine.NewReorderer(pool).Reorder(records)
	if err != nil {
		for _, o := range canonical {
			pool.Release(o)
		}
		res.Error = fmt.Sprintf("reorder failed: %v", err)
		return res
	}
	res.CanonicalOps = len(canonical)

	candidate := listmodel.New(size)
	applyErr := candidate.ApplyAll(canonical)
	for _, o := range canonical {
		pool.Release(o)
	}
	if applyErr != nil {
		res.Error = fmt.Sprintf("canonical application failed: %v", applyErr)
		return res
	}

	res.Equivalent = listmodel.Equal(reference, candidate)
	res.Conserved = pool.Outstanding() == 0
	return res
}

// outputFuzzJSON outputs the fuzz result as JSON.
func outputFuzzJSON(cmd *cobra.Command, result FuzzResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllEquivalent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_EQUIVALENCE",
			Message: fmt.Sprintf("%d seed(s) failed equivalence", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllEquivalent {
		// Equivalence failure = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d seed(s) failed equivalence", result.Failed))
	}
	return nil
}

// outputFuzzText outputs the fuzz result as text.
func outputFuzzText(cmd *cobra.Command, result FuzzResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Fuzz Summary: %d seed(s), %d failure(s)\n", result.Total, result.Failed)

	for _, f := range result.Failures {
		fmt.Fprintf(w, "✗ seed %d: %d ops -> %d canonical\n", f.Seed, f.Ops, f.CanonicalOps)
		if f.Error != "" {
			fmt.Fprintf(w, "  %s\n", f.Error)
			continue
		}
		if !f.Equivalent {
			fmt.Fprintln(w, "  canonical sequence diverged from the original net effect")
		}
		if !f.Conserved {
			fmt.Fprintln(w, "  operation records leaked during reordering")
		}
	}

	if result.AllEquivalent {
		fmt.Fprintln(w, "✓ All seeds equivalent")
		return nil
	}

	fmt.Fprintln(w, "✗ Equivalence verification failed")
	// Equivalence failure = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("%d seed(s) failed equivalence", result.Failed))
}
