// Package harvest defines core types shared across the pipeline.
package harvest

// DiscoveryMethod records which strategy surfaced a candidate link.
type DiscoveryMethod string

// Discovery strategies in priority order.
const (
	DiscoveryDirectLink       DiscoveryMethod = "direct_link"
	DiscoveryContentTypeProbe DiscoveryMethod = "content_type_probe"
	DiscoveryPageScan         DiscoveryMethod = "page_scan"
)

// ExtractionMethod tags a record with the extractor that produced it.
type ExtractionMethod string

// Extraction outcomes.
const (
	ExtractionAI       ExtractionMethod = "ai"
	ExtractionFallback ExtractionMethod = "fallback"
)

// CandidateLink is a URL suspected, not yet confirmed, to reference a PDF
// resume. Produced by the Collector, consumed once by the Fetcher.
type CandidateLink struct {
	URL        string          `json:"url"`
	Method     DiscoveryMethod `json:"discovery_method"`
	SourcePage string          `json:"source_page"`
}

// FetchedDocument describes a PDF landed on local disk. The hash is computed
// over the raw bytes; the struct is immutable once created.
type FetchedDocument struct {
	ContentHash string `json:"content_hash"`
	LocalPath   string `json:"local_path"`
	SourceURL   string `json:"source_url"`
	ByteSize    int64  `json:"byte_size"`
}

// ResumeFields is the structured payload produced by either extractor.
type ResumeFields struct {
	Name        *string  `json:"name"`
	Email       *string  `json:"email"`
	GitHub      *string  `json:"github"`
	Education   *string  `json:"education"`
	Experiences []string `json:"experiences"`
}

// ResumeRecord is the terminal artifact of the pipeline, one JSON object per
// output line. Immutable once emitted.
type ResumeRecord struct {
	ID          string           `json:"id"`
	Name        *string          `json:"name"`
	Email       *string          `json:"email"`
	GitHub      *string          `json:"github"`
	Education   *string          `json:"education"`
	Experiences []string         `json:"experiences"`
	SourceURL   string           `json:"source_url"`
	PDFPath     string           `json:"pdf_path"`
	Method      ExtractionMethod `json:"extraction_method"`
}

// recordIDLen is the number of leading hash chars used as a record ID.
const recordIDLen = 12

// RecordID derives the short record identifier from a content hash.
func RecordID(contentHash string) string {
	if len(contentHash) <= recordIDLen {
		return contentHash
	}
	return contentHash[:recordIDLen]
}

// QuerySpec names one search of a batch run.
type QuerySpec struct {
	Name       string `mapstructure:"name" json:"name"`
	Query      string `mapstructure:"query" json:"query"`
	ResultsURL string `mapstructure:"results_url" json:"results_url"`
	MaxResults int    `mapstructure:"max_results" json:"max_results"`
}

// RunSummary aggregates per-run counters reported at the end of each query.
type RunSummary struct {
	LinksDirect     int64 `json:"links_direct"`
	LinksProbed     int64 `json:"links_probed"`
	LinksScanned    int64 `json:"links_scanned"`
	Fetched         int64 `json:"fetched"`
	Duplicates      int64 `json:"duplicates"`
	FetchFailures   int64 `json:"fetch_failures"`
	RecordsAI       int64 `json:"records_ai"`
	RecordsFallback int64 `json:"records_fallback"`
}
