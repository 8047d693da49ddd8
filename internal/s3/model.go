package s3

type Document struct {
	ID   string       `json:"id"`
	Data []byte       `json:"data"`
	Kind DocumentKind `json:"kind"`
	Type DocumentType `json:"type"`
}

type DocumentKind string

const (
	DocumentKindHTML DocumentKind = "html"
)

type DocumentType string

const (
	DocumentTypeInvoice DocumentType = "invoice"
)

func NewHTMLDocument(id string, data []byte, docType DocumentType) *Document {
	return &Document{
		ID:   id,
		Data: data,
		Kind: DocumentKindHTML,
		Type: docType,
	}
}
