package analyzer

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
	"golang.org/x/crypto/blake2b"
)

type fingerprintInput struct {
	Owner     uuid.UUID             `json:"owner"`
	APIID     int16                 `json:"api_id"`
	Query     string                `json:"query"`
	PreviewID string                `json:"preview_id"`
	Items     []string              `json:"items"`
	Config    models.AnalyzerConfig `json:"config"`
}

// Fingerprint computes the idempotency key of a submission: a hex blake2b-256 digest of
// the canonical JSON encoding of owner, source, sorted item selection and normalized
// analyzer configuration. The source display name does not participate.
func Fingerprint(owner uuid.UUID, src models.Source, cfg models.AnalyzerConfig) string {
	in := fingerprintInput{
		Owner:     owner,
		APIID:     src.APIID,
		Query:     strings.TrimSpace(src.Query),
		PreviewID: strings.TrimSpace(src.PreviewID),
		Items:     sortedItems(src.Items),
		Config:    Normalize(cfg),
	}
	// Struct fields encode in declaration order, so the encoding is canonical.
	b, _ := json.Marshal(in)
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func sortedItems(items []string) []string {
	out := append([]string{}, items...)
	sort.Strings(out)
	return out
}
