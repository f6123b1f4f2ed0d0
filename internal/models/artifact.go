package models

// ContainerKind identifies how an uploaded artifact is packaged.
type ContainerKind string

const (
	ContainerSingle   ContainerKind = "single"
	ContainerGzip     ContainerKind = "gzip"
	ContainerZip      ContainerKind = "zip"
	ContainerDocument ContainerKind = "document"
)

// Valid reports whether k is one of the known container kinds.
func (k ContainerKind) Valid() bool {
	switch k {
	case ContainerSingle, ContainerGzip, ContainerZip, ContainerDocument:
		return true
	}
	return false
}

// RawArtifact is an uploaded input as received from the CLI or HTTP boundary.
// Kind may be left empty, in which case it is sniffed from Name and Data.
type RawArtifact struct {
	Name string
	Data []byte
	Kind ContainerKind
	Hint string // declared MIME type or extension, optional
}

// Member is one logical file yielded by the unpacker. Data is still raw:
// compressed members stay compressed and documents are not yet converted.
type Member struct {
	Name   string
	Folder string // "root" for top-level members
	Data   []byte
}

// Dialect is the log flavour recognized in a decoded stream.
type Dialect string

const (
	DialectLambda   Dialect = "lambda"   // CloudWatch / Lambda runtime output
	DialectKeyValue Dialect = "keyvalue" // key=value structured lines
	DialectPlain    Dialect = "plain"    // timestamped free text
)

// SourceStream is the decoded text of one member, owned by a single run.
type SourceStream struct {
	Name     string  `json:"name"`
	Folder   string  `json:"folder"`
	Format   string  `json:"format"` // text, gzip+text, docx, pdf, doc
	Encoding string  `json:"encoding"`
	Dialect  Dialect `json:"dialect"`
	Text     string  `json:"-"`
}

// LineSpan is one candidate record, possibly spanning several physical
// lines joined with "\n". Offset is the 1-based line number of its first line.
type LineSpan struct {
	Text   string
	Source string
	Offset int
}
