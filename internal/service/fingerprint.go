package service

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/junhao/promptflow/internal/domain"
)

// fingerprintDelimiter separates the request fields inside the digest
// input. Pipe is not expected inside free-text fields, and even if it
// appears the fixed field order keeps the encoding unambiguous enough for
// cache-key purposes.
const fingerprintDelimiter = "|"

// Fingerprint derives the stable cache key for a generation request: the
// seven request fields, trimmed, joined in fixed order and hashed with MD5.
// Two requests that are field-wise equal after trimming always produce the
// same fingerprint.
// Parameters:
//   - req: generation request; must be non-nil.
// Returns:
//   - string: 32-character lowercase hex digest.
func Fingerprint(req *domain.PromptRequest) string {
	fields := []string{
		strings.TrimSpace(req.TaskDescription),
		strings.TrimSpace(req.TargetAudience),
		strings.TrimSpace(req.OutputFormat),
		strings.TrimSpace(req.Constraints),
		strings.TrimSpace(req.Examples),
		strings.TrimSpace(req.Tone),
		strings.TrimSpace(req.Length),
	}
	sum := md5.Sum([]byte(strings.Join(fields, fingerprintDelimiter)))
	return hex.EncodeToString(sum[:])
}
