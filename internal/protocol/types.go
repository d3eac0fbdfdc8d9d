package protocol

import "fmt"

// MessageType discriminates wire messages. Ordinals are part of the wire
// format and must never be reordered; new types append only.
type MessageType uint64

const (
	TypeIndexRequest MessageType = iota
	TypeIndexResponse
	TypeFileRequest
	TypeFileResponse
	TypeNotify

	// typeSentinel marks the end of the closed enumeration.
	typeSentinel
)

// Known reports whether t is inside the closed enumeration.
func (t MessageType) Known() bool {
	return t < typeSentinel
}

func (t MessageType) String() string {
	switch t {
	case TypeIndexRequest:
		return "index_request"
	case TypeIndexResponse:
		return "index_response"
	case TypeFileRequest:
		return "file_request"
	case TypeFileResponse:
		return "file_response"
	case TypeNotify:
		return "notify"
	default:
		return fmt.Sprintf("message_type(%d)", uint64(t))
	}
}

// Message is implemented by every wire message. MessageType must return the
// same tag the type serializes into its envelope's first element.
type Message interface {
	MessageType() MessageType
}

// IndexRequest asks the server to refresh its workspace file index. PrevHash
// is the last fingerprint the client observed, zero on first contact.
type IndexRequest struct {
	_         struct{} `cbor:",toarray"`
	Type      MessageType
	PrevHash  uint64
	Workspace string
}

// NewIndexRequest builds an IndexRequest with its tag filled in.
func NewIndexRequest(prevHash uint64, workspace string) IndexRequest {
	return IndexRequest{Type: TypeIndexRequest, PrevHash: prevHash, Workspace: workspace}
}

func (IndexRequest) MessageType() MessageType { return TypeIndexRequest }

// IndexResponse reports the fingerprint of the freshly refreshed index.
// Changed is false when the fingerprint equals the request's PrevHash.
type IndexResponse struct {
	_         struct{} `cbor:",toarray"`
	Type      MessageType
	Hash      uint64
	FileCount int64
	Changed   bool
}

// NewIndexResponse builds an IndexResponse with its tag filled in.
func NewIndexResponse(hash uint64, fileCount int64, changed bool) IndexResponse {
	return IndexResponse{Type: TypeIndexResponse, Hash: hash, FileCount: fileCount, Changed: changed}
}

func (IndexResponse) MessageType() MessageType { return TypeIndexResponse }

// FileRequest is reserved for fetching a file's content from the server.
// The tag is valid on the wire but no handler is wired yet.
type FileRequest struct {
	_    struct{} `cbor:",toarray"`
	Type MessageType
	Path string
}

// NewFileRequest builds a FileRequest with its tag filled in.
func NewFileRequest(path string) FileRequest {
	return FileRequest{Type: TypeFileRequest, Path: path}
}

func (FileRequest) MessageType() MessageType { return TypeFileRequest }

// FileResponse is the reserved counterpart of FileRequest.
type FileResponse struct {
	_    struct{} `cbor:",toarray"`
	Type MessageType
	Path string
	Data []byte
}

// NewFileResponse builds a FileResponse with its tag filled in.
func NewFileResponse(path string, data []byte) FileResponse {
	return FileResponse{Type: TypeFileResponse, Path: path, Data: data}
}

func (FileResponse) MessageType() MessageType { return TypeFileResponse }

// Notify is reserved for server-initiated pushes to the client's listen
// port, such as announcing that the index fingerprint moved.
type Notify struct {
	_     struct{} `cbor:",toarray"`
	Type  MessageType
	Event string
	Hash  uint64
}

// NewNotify builds a Notify with its tag filled in.
func NewNotify(event string, hash uint64) Notify {
	return Notify{Type: TypeNotify, Event: event, Hash: hash}
}

func (Notify) MessageType() MessageType { return TypeNotify }
