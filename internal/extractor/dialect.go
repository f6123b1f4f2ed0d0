package extractor

import (
	"regexp"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/lines"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

var (
	lambdaPlatform = regexp.MustCompile(`(?m)^(?:\S+\s+)?(?:START|END|REPORT|INIT_START) RequestId:`)
	lambdaRuntime  = regexp.MustCompile(`(?m)^` + lines.TimestampExpr + `\t[0-9a-fA-F]{8}-[0-9a-fA-F\-]+\t(?:INFO|WARN|ERROR|DEBUG|TRACE|FATAL)`)
	keyValueLine   = regexp.MustCompile(`(?m)^\[?` + lines.TimestampExpr + `\]?\s+.*\b[A-Za-z_]+=\S`)
	plainLine      = regexp.MustCompile(`(?m)^\[?` + lines.TimestampExpr)
)

// classifyDialect inspects a sample of decoded text. It returns "" when the
// sample holds no timestamped lines at all.
func classifyDialect(sample string) models.Dialect {
	switch {
	case lambdaPlatform.MatchString(sample), lambdaRuntime.MatchString(sample):
		return models.DialectLambda
	case keyValueLine.MatchString(sample):
		return models.DialectKeyValue
	case plainLine.MatchString(sample):
		return models.DialectPlain
	default:
		return ""
	}
}
