// Package bootrepair writes UEFI boot files for a restored Windows volume
// with bcdboot and verifies the EFI partition was actually populated.
package bootrepair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/deploykit/winprov/lib/logger"
)

// DefaultTimeout bounds one bcdboot invocation. Boot file population is
// quick; anything past this is stuck.
const DefaultTimeout = 120 * time.Second

// ErrVerification is returned when bcdboot exited cleanly but the EFI
// partition holds no boot files.
var ErrVerification = errors.New("efi partition verification failed")

// Repairer populates the EFI partition with boot files for the Windows
// installation on the system volume.
type Repairer interface {
	Repair(ctx context.Context, systemLetter, efiLetter string) error
}

type bcdRepairer struct {
	// argv invokes bcdboot; the repair arguments are appended.
	argv    []string
	timeout time.Duration

	// efiRoot maps the EFI drive letter to the directory that must be
	// non-empty after a successful repair; swapped out in tests.
	efiRoot func(letter string) string
}

// Option customizes a Repairer.
type Option func(*bcdRepairer)

// WithTimeout overrides the bcdboot deadline.
func WithTimeout(d time.Duration) Option {
	return func(b *bcdRepairer) { b.timeout = d }
}

// NewRepairer builds a Repairer around the given bcdboot executable.
func NewRepairer(exe string, opts ...Option) Repairer {
	b := &bcdRepairer{
		argv:    []string{exe},
		timeout: DefaultTimeout,
		efiRoot: func(letter string) string { return letter + `:\EFI` },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *bcdRepairer) Repair(ctx context.Context, systemLetter, efiLetter string) error {
	if _, err := os.Stat(b.argv[0]); err != nil {
		return fmt.Errorf("boot repair tool not found at %s: %w", b.argv[0], err)
	}

	log := logger.FromContext(ctx).With("system_letter", systemLetter, "efi_letter", efiLetter)
	log.Info("writing boot files")

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// bcdboot N:\Windows /s M: /f UEFI /l zh-cn
	args := append(append([]string{}, b.argv[1:]...),
		systemLetter+`:\Windows`, "/s", efiLetter+":", "/f", "UEFI", "/l", "zh-cn")
	out, err := exec.CommandContext(ctx, b.argv[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("bcdboot failed: %w: %s", err, trim(string(out)))
	}

	if err := b.verify(efiLetter); err != nil {
		return err
	}
	log.Info("boot repair complete")
	return nil
}

// verify requires a non-empty EFI directory; bcdboot's zero exit alone is
// not trusted.
func (b *bcdRepairer) verify(efiLetter string) error {
	root := b.efiRoot(efiLetter)
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("%w: cannot read %s: %v", ErrVerification, root, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrVerification, root)
	}
	return nil
}

func trim(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
