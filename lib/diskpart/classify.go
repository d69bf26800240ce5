package diskpart

import (
	"fmt"
	"strings"
)

// Verdict is the classified outcome of a diskpart run.
type Verdict int

const (
	VerdictSuccess Verdict = iota
	VerdictFailure
)

func (v Verdict) String() string {
	if v == VerdictSuccess {
		return "success"
	}
	return "failure"
}

// diskpart's exit code is not a reliable success signal, so the textual
// output is scanned as well. Failure indicators win over everything else;
// this precedence is a compatibility shim for the tool's behavior, not a
// design goal. The localized strings match the Chinese-language builds the
// tool ships on.
var failureIndicators = []string{
	"failed",
	"error",
	"access denied",
	"cannot",
	"失败",
	"错误",
	"拒绝访问",
	"无法",
}

var successIndicators = []string{
	"successfully",
	"succeeded",
	"成功",
}

// Classify derives a verdict from exit code and combined output. It is a
// pure function: the same inputs always produce the same verdict.
func Classify(exitCode int, stdout, stderr string) Verdict {
	if exitCode != 0 {
		return VerdictFailure
	}

	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, ind := range failureIndicators {
		if strings.Contains(combined, ind) {
			return VerdictFailure
		}
	}
	for _, ind := range successIndicators {
		if strings.Contains(combined, ind) {
			return VerdictSuccess
		}
	}
	// Zero exit without failure markers counts as success even when the
	// output carries no explicit confirmation.
	return VerdictSuccess
}

// HasGPTMarker scans raw "list disk" output for the GPT column marker on the
// given disk's row. Used as the secondary verification when the style probe
// cannot confirm the conversion.
func HasGPTMarker(output string, disk int) bool {
	needle := fmt.Sprintf("disk %d", disk)
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, needle) && strings.Contains(line, "*") {
			return true
		}
	}
	return false
}
